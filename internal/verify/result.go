package verify

const (
	ExitPass             = 0
	ExitMissing          = 10
	ExitCountMismatch    = 11
	ExitRateMismatch     = 12
	ExitTaxonomyMismatch = 13
	ExitFormatFail       = 14
)

type CheckResult struct {
	Section string `json:"section"`
	Check   string `json:"check"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

type Report struct {
	RunLabel   string        `json:"run_label"`
	Passed     bool          `json:"passed"`
	ExitCode   int           `json:"exit_code"`
	Checks     []CheckResult `json:"checks"`
	Violations []string      `json:"violations"`
}
