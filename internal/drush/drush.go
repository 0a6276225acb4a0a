// Package drush wraps the external drush binary for checking and applying
// contrib-module updates on a remote site environment.
package drush

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Options are pass-through arguments for pm-update.
type Options struct {
	SecurityOnly bool
	Projects     []string
}

// CheckResult is the structured outcome of a dry-run update check.
type CheckResult struct {
	UpdatesAvailable bool
	Projects         []string
}

// Runner invokes drush as a subprocess against remote site aliases.
type Runner struct {
	bin string
}

// NewRunner verifies the drush binary exists and returns a runner.
// A missing binary is fatal for the whole run.
func NewRunner(bin string) (*Runner, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("drush binary %q not found in PATH: %w", bin, err)
	}
	return &Runner{bin: path}, nil
}

// Target builds the drush alias for a site environment.
func Target(siteName, envID string) string {
	return fmt.Sprintf("@%s.%s", siteName, envID)
}

// CheckUpdates runs a simulated pm-update and parses its output for pending
// contrib updates. Anything written to stderr aborts the check.
func (r *Runner) CheckUpdates(ctx context.Context, target string, opts Options) (CheckResult, error) {
	output, err := r.run(ctx, target, append([]string{"pm-update", "-n", "--no-core"}, opts.args()...))
	if err != nil {
		return CheckResult{}, err
	}
	return ParseCheck(output), nil
}

// ApplyUpdates runs pm-update for real and returns the tool output verbatim.
// Never retries.
func (r *Runner) ApplyUpdates(ctx context.Context, target string, opts Options) (string, error) {
	output, err := r.run(ctx, target, append([]string{"pm-update", "-y", "--no-core"}, opts.args()...))
	if err != nil {
		return "", err
	}
	return output, nil
}

func (o Options) args() []string {
	var args []string
	if o.SecurityOnly {
		args = append(args, "--security-only")
	}
	if len(o.Projects) > 0 {
		args = append(args, strings.Join(o.Projects, ","))
	}
	return args
}

func (r *Runner) run(ctx context.Context, target string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, append([]string{target}, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("invoking drush", "target", target, "args", args)

	err := cmd.Run()
	if stderr.Len() > 0 {
		return "", fmt.Errorf("drush wrote to stderr: %s", strings.TrimSpace(stderr.String()))
	}
	if err != nil {
		return "", fmt.Errorf("drush failed: %w", err)
	}

	return stdout.String(), nil
}

// pendingUpdatesPhrase is the exact English phrase drush prints when a
// simulated pm-update finds pending project updates. The byte-for-byte
// dependency on tool output lives only in ParseCheck.
const pendingUpdatesPhrase = "updates will be made to the following projects"

// ParseCheck scans simulated pm-update output for pending updates and
// extracts the affected project names.
func ParseCheck(output string) CheckResult {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, pendingUpdatesPhrase)
		if idx < 0 {
			continue
		}
		return CheckResult{
			UpdatesAvailable: true,
			Projects:         parseProjects(line[idx+len(pendingUpdatesPhrase):]),
		}
	}
	return CheckResult{}
}

// parseProjects extracts project machine names from the tail of the phrase
// line, e.g. ": Chaos tools (ctools), Views (views)" -> [ctools views].
func parseProjects(tail string) []string {
	tail = strings.TrimLeft(tail, ": ")
	if tail == "" {
		return nil
	}

	var projects []string
	for _, entry := range strings.Split(tail, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// Prefer the machine name in parentheses when present.
		if open := strings.LastIndex(entry, "("); open >= 0 {
			if end := strings.Index(entry[open:], ")"); end > 0 {
				projects = append(projects, entry[open+1:open+end])
				continue
			}
		}
		projects = append(projects, entry)
	}
	return projects
}
