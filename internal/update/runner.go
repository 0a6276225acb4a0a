package update

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/libops/fleetctl/internal/drush"
	"github.com/libops/fleetctl/internal/filter"
	"github.com/libops/fleetctl/internal/logging"
	"github.com/libops/fleetctl/internal/platform"
	"github.com/libops/fleetctl/internal/report"
)

// DefaultCommitMessage is used when no --message is supplied.
const DefaultCommitMessage = "Updates applied by fleetctl mass-update."

// Options carries the flags of one mass-update invocation.
type Options struct {
	Env          string
	Report       bool
	Message      string
	Confirm      bool
	SkipBackup   bool
	SecurityOnly bool
	Projects     []string
	Reset        bool
	Team         bool
	Owner        string
	Org          string
	Name         string
	Cached       bool
	Yes          bool
}

// Runner drives one mass-update run: filter sites, validate the target
// environment, then process each site sequentially.
type Runner struct {
	session *Session
	opts    Options
	report  *report.Report
	cache   *platform.SiteCache
	out     io.Writer
	confirm func(prompt string) bool
}

// NewRunner assembles a runner writing its summary to out. Confirmation
// prompts read from stdin unless overridden for tests.
func NewRunner(session *Session, opts Options, out io.Writer) *Runner {
	return &Runner{
		session: session,
		opts:    opts,
		report:  report.New(),
		out:     out,
		confirm: stdinConfirm,
	}
}

// WithCache enables the site list cache used by --cached runs.
func (r *Runner) WithCache(cache *platform.SiteCache) *Runner {
	r.cache = cache
	return r
}

// Run executes the whole mass-update sequence. Usage errors abort the run;
// per-site failures are logged, recorded in the report, and the loop
// continues.
func (r *Runner) Run(ctx context.Context) error {
	ctx = logging.WithRunID(ctx, r.session.RunID)

	sites, err := r.gatherSites(ctx)
	if err != nil {
		return err
	}

	owner := r.opts.Owner
	if owner == "me" {
		owner = r.session.User.ID
	}

	filtered, err := filter.Apply(sites, filter.Options{
		Team:  r.opts.Team,
		Org:   r.opts.Org,
		Name:  r.opts.Name,
		Owner: owner,
	})
	if err != nil {
		return &UsageError{Err: err}
	}

	if len(filtered) == 0 {
		slog.Warn("no sites matched the requested filters")
		r.report.Render(r.out)
		return nil
	}

	envName := ResolveEnvironment(r.opts.Env, r.opts.Report)
	if err := ValidateEnvironment(ctx, r.session.Client, filtered, envName); err != nil {
		return err
	}

	slog.Info("starting mass update",
		"sites", len(filtered),
		"environment", envName,
		"report_only", r.opts.Report)

	for _, site := range filtered {
		siteCtx := logging.WithSite(logging.WithEnvironment(ctx, envName), site.Name)

		status, err := r.processSite(siteCtx, site, envName)
		switch {
		case err == nil:
			r.report.Add(site.Name, status)
		case errors.Is(err, errSkipped):
			slog.InfoContext(siteCtx, "site skipped by operator")
		default:
			slog.ErrorContext(siteCtx, "site update failed", "err", err)
			r.report.Add(site.Name, err.Error())
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	r.report.Render(r.out)
	return nil
}

// Report exposes the accumulated per-site outcomes.
func (r *Runner) Report() *report.Report {
	return r.report
}

// gatherSites returns the fleet's site list, from the cache when --cached
// was given and the cache is fresh enough, otherwise from the API.
func (r *Runner) gatherSites(ctx context.Context) ([]platform.Site, error) {
	if r.opts.Cached && r.cache != nil {
		if sites, ok := r.cache.Load(); ok {
			slog.Debug("using cached site list", "sites", len(sites))
			return sites, nil
		}
		slog.Debug("site cache unusable, fetching fresh")
	}

	sites, err := r.session.Client.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Store(sites)
	}
	return sites, nil
}

// processSite runs the per-site state machine and returns the terminal
// status for the report. A returned error means the site was skipped:
// PreconditionError before any mutation, OperationError at the failing step.
func (r *Runner) processSite(ctx context.Context, site platform.Site, envName string) (string, error) {
	if !site.SupportsContribUpdates() {
		return "", NewPreconditionError("framework %q does not support contrib updates", site.Framework)
	}
	if site.Frozen {
		return "", NewPreconditionError("site is frozen")
	}

	if r.opts.Confirm && !r.opts.Yes {
		if !r.confirm(fmt.Sprintf("Apply updates to %s (%s)?", site.Name, envName)) {
			return "", errSkipped
		}
	}

	envs, err := r.session.Client.ListEnvironments(ctx, site.ID)
	if err != nil {
		return "", NewOperationError(err)
	}

	createdFresh := false
	if !r.opts.Report && envName == PreviewEnvironment {
		createdFresh, err = r.ensurePreviewEnvironment(ctx, site, envs, r.opts.Reset)
		if err != nil {
			return "", err
		}
		if createdFresh {
			envs, err = r.session.Client.ListEnvironments(ctx, site.ID)
			if err != nil {
				return "", NewOperationError(err)
			}
		}
	}

	env, ok := findEnvironment(envs, envName)
	if !ok {
		return "", NewPreconditionError("environment %q not found", envName)
	}

	// Never apply updates over uncommitted direct-edit changes.
	if env.ConnectionMode == platform.ConnectionModeSFTP {
		diff, err := r.session.Client.DiffStat(ctx, site.ID, env.ID)
		if err != nil {
			return "", NewOperationError(err)
		}
		if diff.HasChanges() {
			return "", NewPreconditionError("environment %q has uncommitted changes; commit or discard them first", envName)
		}
	}

	target := drush.Target(site.Name, envName)
	toolOpts := drush.Options{
		SecurityOnly: r.opts.SecurityOnly,
		Projects:     r.opts.Projects,
	}

	check, err := r.session.Tool.CheckUpdates(ctx, target, toolOpts)
	if err != nil {
		return "", NewOperationError(err)
	}
	if !check.UpdatesAvailable {
		return report.StatusUpToDate, nil
	}

	slog.InfoContext(ctx, "updates available", "projects", check.Projects)
	if r.opts.Report {
		return report.StatusNeedsUpdate, nil
	}

	if r.opts.SkipBackup || createdFresh {
		slog.DebugContext(ctx, "skipping backup",
			"skip_flag", r.opts.SkipBackup,
			"fresh_environment", createdFresh)
	} else if err := r.backup(ctx, site, env); err != nil {
		// Backup failure aborts before any update subprocess runs.
		slog.ErrorContext(ctx, "backup failed", "err", err)
		return report.StatusBackupFailed, nil
	}

	if err := r.applyAndCommit(ctx, site, env, target, toolOpts); err != nil {
		return "", err
	}

	return report.StatusUpdated, nil
}

// backup requests a full backup and waits for it.
func (r *Runner) backup(ctx context.Context, site platform.Site, env platform.Environment) error {
	slog.InfoContext(ctx, "backing up environment")
	wf, err := r.session.Client.CreateBackup(ctx, site.ID, env.ID)
	if err != nil {
		return err
	}
	return r.waitWorkflow(ctx, site.ID, wf)
}

// applyAndCommit toggles the environment into direct-edit mode if needed,
// applies the updates, commits them, and toggles the mode back.
func (r *Runner) applyAndCommit(ctx context.Context, site platform.Site, env platform.Environment, target string, toolOpts drush.Options) error {
	toggled := false
	if env.ConnectionMode == platform.ConnectionModeGit {
		if err := r.setConnectionMode(ctx, site.ID, env.ID, platform.ConnectionModeSFTP); err != nil {
			return err
		}
		toggled = true
	}

	output, err := r.session.Tool.ApplyUpdates(ctx, target, toolOpts)
	if err != nil {
		return NewOperationError(err)
	}
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		slog.InfoContext(ctx, "drush", "line", line)
	}

	message := r.opts.Message
	if message == "" {
		message = DefaultCommitMessage
	}

	slog.InfoContext(ctx, "committing updates", "message", message)
	wf, err := r.session.Client.Commit(ctx, site.ID, env.ID, message)
	if err != nil {
		return NewOperationError(err)
	}
	if err := r.waitWorkflow(ctx, site.ID, wf); err != nil {
		return err
	}

	if toggled {
		if err := r.setConnectionMode(ctx, site.ID, env.ID, platform.ConnectionModeGit); err != nil {
			return err
		}
	}

	return nil
}

// setConnectionMode switches the environment's connection mode and waits
// for the workflow.
func (r *Runner) setConnectionMode(ctx context.Context, siteID, envID, mode string) error {
	slog.DebugContext(ctx, "setting connection mode", "mode", mode)
	wf, err := r.session.Client.SetConnectionMode(ctx, siteID, envID, mode)
	if err != nil {
		return NewOperationError(err)
	}
	return r.waitWorkflow(ctx, siteID, wf)
}

func findEnvironment(envs []platform.Environment, name string) (platform.Environment, bool) {
	for _, env := range envs {
		if env.ID == name {
			return env, true
		}
	}
	return platform.Environment{}, false
}

// stdinConfirm asks a yes/no question on the terminal.
func stdinConfirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
