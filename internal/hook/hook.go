package hook

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Result lists what the hook touched. The hook never fails: chmod and
// re-stage errors are swallowed so a commit is never blocked.
type Result struct {
	Marked  []string
	Skipped []string
}

// Run marks staged .sh and .py files executable and re-stages them.
// dir is the repository to operate in; empty means the current directory.
func Run(dir string) Result {
	res := Result{}
	for _, path := range StagedFiles(dir) {
		if !isScript(path) {
			res.Skipped = append(res.Skipped, path)
			continue
		}
		full := filepath.Join(dir, path)
		if err := markExecutable(full); err != nil {
			continue
		}
		cmd := exec.Command("git", "add", "--", path)
		cmd.Dir = dir
		_ = cmd.Run()
		res.Marked = append(res.Marked, path)
	}
	return res
}

// StagedFiles returns the staged paths of the repository at dir, empty
// outside a repository or on any git failure.
func StagedFiles(dir string) []string {
	cmd := exec.Command("git", "diff", "--cached", "--name-only", "--diff-filter=ACM")
	cmd.Dir = dir
	raw, err := cmd.Output()
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, filepath.ToSlash(line))
	}
	return out
}

func isScript(path string) bool {
	return strings.HasSuffix(path, ".sh") || strings.HasSuffix(path, ".py")
}

func markExecutable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, fi.Mode().Perm()|0o111)
}

const hookScript = `#!/bin/sh
# benchsum pre-commit hook: mark staged scripts executable.
benchsum hook run || true
exit 0
`

// Install writes the pre-commit hook into the repository at dir.
func Install(dir string) (string, error) {
	hooksDir := filepath.Join(dir, ".git", "hooks")
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return "", fmt.Errorf("not a git repository: %s", dir)
	}
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(hooksDir, "pre-commit")
	if err := os.WriteFile(path, []byte(hookScript), 0o755); err != nil {
		return "", err
	}
	return path, nil
}
