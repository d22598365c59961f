package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oguzcantas/benchsum/internal/aggregate"
	"github.com/oguzcantas/benchsum/internal/collect"
	"github.com/oguzcantas/benchsum/internal/compare"
	"github.com/oguzcantas/benchsum/internal/config"
	"github.com/oguzcantas/benchsum/internal/hook"
	"github.com/oguzcantas/benchsum/internal/httpapi"
	"github.com/oguzcantas/benchsum/internal/report"
	"github.com/oguzcantas/benchsum/internal/store"
	"github.com/oguzcantas/benchsum/internal/verify"
	"github.com/oguzcantas/benchsum/internal/watch"
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	// Load .env overrides if present.
	_ = godotenv.Load()

	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "benchsum",
		Short: "AI-agent benchmark collection, summary, and verification",
	}
	root.AddCommand(newInitCommand())
	root.AddCommand(newCollectCommand())
	root.AddCommand(newSummarizeCommand())
	root.AddCommand(newVerifyCommand())
	root.AddCommand(newCompareCommand())
	root.AddCommand(newWatchCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newHookCommand())
	return root
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize benchsum configuration and runs directory",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !fileExists(config.DefaultPath) {
				if err := os.WriteFile(config.DefaultPath, []byte(defaultConfigYAML), 0o644); err != nil {
					return err
				}
			}
			cfg, err := config.Load(config.DefaultPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.RunsRoot, 0o755); err != nil {
				return err
			}
			fmt.Println("initialized benchsum config and runs directory")
			return nil
		},
	}
}

func newCollectCommand() *cobra.Command {
	var runLabel, source, cfgPath string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Validate and ingest harness job records for a run",
		RunE: func(_ *cobra.Command, _ []string) error {
			if runLabel == "" || source == "" {
				return fmt.Errorf("--run and --records are required")
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			res, err := collect.Run(collect.Options{
				RunLabel: runLabel,
				Source:   source,
				Config:   cfg,
				Store:    store.New(cfg.RunsRoot),
			})
			if err != nil {
				return err
			}
			fmt.Println(res.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&runLabel, "run", "", "run label")
	cmd.Flags().StringVar(&source, "records", "", "record file or directory of record files")
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath, "config file path")
	return cmd
}

func newSummarizeCommand() *cobra.Command {
	var runLabel, format, outPath, cfgPath string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Aggregate a run's records into collected/summary.md",
		RunE: func(_ *cobra.Command, _ []string) error {
			if runLabel == "" {
				return fmt.Errorf("--run is required")
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			st := store.New(cfg.RunsRoot)
			records, err := st.ReadRecords(runLabel)
			if err != nil {
				return err
			}
			s := aggregate.Build(runLabel, time.Now(), records)

			switch format {
			case "md":
				if outPath == "" {
					path, err := st.WriteSummary(runLabel, []byte(report.BuildMarkdown(s)))
					if err != nil {
						return err
					}
					fmt.Println(path)
					return nil
				}
				if err := report.WriteMarkdown(outPath, s); err != nil {
					return err
				}
			case "json":
				if outPath == "" {
					outPath = st.SummaryJSONPath(runLabel)
					if err := st.EnsureRunDir(runLabel); err != nil {
						return err
					}
				}
				if err := report.WriteJSON(outPath, s); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported format %s", format)
			}
			fmt.Println(outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&runLabel, "run", "", "run label")
	cmd.Flags().StringVar(&format, "format", "md", "output format (md|json)")
	cmd.Flags().StringVar(&outPath, "out", "", "output path (defaults to the run's collected dir)")
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath, "config file path")
	return cmd
}

func newVerifyCommand() *cobra.Command {
	var runLabel, summaryPath, format, outPath, cfgPath string
	var withRecords bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a summary against the format's consistency contract",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			st := store.New(cfg.RunsRoot)

			opts := verify.Options{SummaryPath: summaryPath}
			if runLabel != "" {
				opts.SummaryPath = st.SummaryPath(runLabel)
				if withRecords {
					opts.RecordsPath = st.RecordsPath(runLabel)
				}
			}
			if opts.SummaryPath == "" {
				return fmt.Errorf("--run or --summary is required")
			}

			r := verify.Run(opts)

			switch format {
			case "json":
				if outPath != "" {
					if err := verify.WriteJSON(outPath, r); err != nil {
						return err
					}
					fmt.Println(outPath)
				}
			case "md":
				if outPath == "" {
					outPath = "verify.md"
				}
				if err := verify.WriteMarkdown(outPath, r); err != nil {
					return err
				}
				fmt.Println(outPath)
			default:
				return fmt.Errorf("unsupported format %s", format)
			}

			if !r.Passed {
				for _, v := range r.Violations {
					fmt.Fprintln(os.Stderr, v)
				}
				return cliError{code: r.ExitCode, err: fmt.Errorf("summary verification failed")}
			}
			fmt.Println("summary verified")
			return nil
		},
	}
	cmd.Flags().StringVar(&runLabel, "run", "", "run label (uses the run's summary and records)")
	cmd.Flags().StringVar(&summaryPath, "summary", "", "summary.md path (alternative to --run)")
	cmd.Flags().BoolVar(&withRecords, "records", true, "cross-check against the run's records.json")
	cmd.Flags().StringVar(&format, "format", "json", "report format (json|md)")
	cmd.Flags().StringVar(&outPath, "out", "", "report output path")
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath, "config file path")
	return cmd
}

func newCompareCommand() *cobra.Command {
	var runsCSV, outPath, cfgPath string
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Render a cross-run system comparison",
		RunE: func(_ *cobra.Command, _ []string) error {
			labels := splitCSV(runsCSV)
			if len(labels) < 2 {
				return fmt.Errorf("--runs must list at least two run labels")
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			runs, err := compare.Load(store.New(cfg.RunsRoot), labels)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = "compare.md"
			}
			if err := compare.WriteMarkdown(outPath, runs); err != nil {
				return err
			}
			fmt.Println(outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&runsCSV, "runs", "", "comma-separated run labels")
	cmd.Flags().StringVar(&outPath, "out", "compare.md", "comparison output path")
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath, "config file path")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var cfgPath, runsRoot string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-summarize runs as new records land",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if runsRoot != "" {
				cfg.RunsRoot = runsRoot
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := os.MkdirAll(cfg.RunsRoot, 0o755); err != nil {
				return err
			}
			w, err := watch.New(store.New(cfg.RunsRoot), time.Duration(cfg.WatchDebounceMS)*time.Millisecond, logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := w.Start(ctx); err != nil {
				return err
			}
			logger.Info("watching runs root", zap.String("root", cfg.RunsRoot))
			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&runsRoot, "runs-root", "", "runs root to watch (defaults to runs_root from config)")
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath, "config file path")
	return cmd
}

func newServeCommand() *cobra.Command {
	var port int
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run summaries over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.ServePort
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			mux := httpapi.NewMux(httpapi.Config{
				Store:           store.New(cfg.RunsRoot),
				CacheTTLSeconds: cfg.CacheTTLSeconds,
			}, logger)
			addr := fmt.Sprintf(":%d", port)
			logger.Info("listening", zap.String("addr", addr), zap.String("root", cfg.RunsRoot))
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to serve_port from config)")
	cmd.Flags().StringVar(&cfgPath, "config", config.DefaultPath, "config file path")
	return cmd
}

func newHookCommand() *cobra.Command {
	hookCmd := &cobra.Command{Use: "hook", Short: "Pre-commit hook operations"}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Mark staged .sh and .py files executable and re-stage them",
		RunE: func(_ *cobra.Command, _ []string) error {
			res := hook.Run("")
			for _, f := range res.Marked {
				fmt.Println(f)
			}
			// Never block a commit.
			return nil
		},
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install the pre-commit hook into .git/hooks",
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := hook.Install(".")
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}

	hookCmd.AddCommand(runCmd)
	hookCmd.AddCommand(installCmd)
	return hookCmd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

const defaultConfigYAML = `runs_root: runs
serve_port: 8099
cache_ttl_seconds: 60
watch_debounce_ms: 500
systems: {}
# Map workflow ids to system names when the workflow id prefix is not
# the system, e.g.:
#   systems:
#     modelmapped_headless: opencode
`
