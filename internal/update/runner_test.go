package update

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libops/fleetctl/internal/drush"
	"github.com/libops/fleetctl/internal/platform"
	"github.com/libops/fleetctl/internal/report"
)

// fakePlatform is an in-memory PlatformClient recording every mutating call.
type fakePlatform struct {
	user  platform.User
	sites []platform.Site
	envs  map[string][]platform.Environment
	diffs map[string]platform.DiffStat

	failBackup bool

	calls []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		user:  platform.User{ID: "11111111-1111-1111-1111-111111111111", Email: "ops@example.com"},
		envs:  map[string][]platform.Environment{},
		diffs: map[string]platform.DiffStat{},
	}
}

func (f *fakePlatform) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakePlatform) mutations() []string {
	var out []string
	for _, c := range f.calls {
		switch {
		case strings.HasPrefix(c, "create-env"), strings.HasPrefix(c, "delete-env"),
			strings.HasPrefix(c, "backup"), strings.HasPrefix(c, "commit"),
			strings.HasPrefix(c, "mode"):
			out = append(out, c)
		}
	}
	return out
}

func doneWorkflow(id string) platform.Workflow {
	return platform.Workflow{ID: id, Status: platform.WorkflowStatusSucceeded}
}

func (f *fakePlatform) CurrentUser(ctx context.Context) (platform.User, error) {
	return f.user, nil
}

func (f *fakePlatform) ListSites(ctx context.Context) ([]platform.Site, error) {
	return f.sites, nil
}

func (f *fakePlatform) ListEnvironments(ctx context.Context, siteID string) ([]platform.Environment, error) {
	return f.envs[siteID], nil
}

func (f *fakePlatform) DiffStat(ctx context.Context, siteID, envID string) (platform.DiffStat, error) {
	return f.diffs[siteID+"/"+envID], nil
}

func (f *fakePlatform) CreateEnvironment(ctx context.Context, siteID, envID, source string) (platform.Workflow, error) {
	f.record("create-env %s %s from %s", siteID, envID, source)
	f.envs[siteID] = append(f.envs[siteID], platform.Environment{
		ID:             envID,
		ConnectionMode: platform.ConnectionModeGit,
		Initialized:    true,
	})
	return doneWorkflow("wf-create"), nil
}

func (f *fakePlatform) DeleteEnvironment(ctx context.Context, siteID, envID string, deleteBranch bool) (platform.Workflow, error) {
	f.record("delete-env %s %s", siteID, envID)
	var kept []platform.Environment
	for _, env := range f.envs[siteID] {
		if env.ID != envID {
			kept = append(kept, env)
		}
	}
	f.envs[siteID] = kept
	return doneWorkflow("wf-delete"), nil
}

func (f *fakePlatform) SetConnectionMode(ctx context.Context, siteID, envID, mode string) (platform.Workflow, error) {
	f.record("mode %s %s %s", siteID, envID, mode)
	return doneWorkflow("wf-mode"), nil
}

func (f *fakePlatform) Commit(ctx context.Context, siteID, envID, message string) (platform.Workflow, error) {
	f.record("commit %s %s %q", siteID, envID, message)
	return doneWorkflow("wf-commit"), nil
}

func (f *fakePlatform) CreateBackup(ctx context.Context, siteID, envID string) (platform.Workflow, error) {
	f.record("backup %s %s", siteID, envID)
	if f.failBackup {
		return platform.Workflow{ID: "wf-backup", Status: platform.WorkflowStatusFailed, Result: "storage unavailable"}, nil
	}
	return doneWorkflow("wf-backup"), nil
}

func (f *fakePlatform) SetDrushVersion(ctx context.Context, siteID, envID string, version int) error {
	f.record("drush-version %s %s %d", siteID, envID, version)
	return nil
}

func (f *fakePlatform) WaitForWorkflow(ctx context.Context, siteID string, wf platform.Workflow) (platform.WorkflowResult, error) {
	if wf.Succeeded() {
		return platform.WorkflowResult{Outcome: platform.OutcomeSucceeded, Workflow: wf}, nil
	}
	return platform.WorkflowResult{Outcome: platform.OutcomeFailed, Workflow: wf}, nil
}

// fakeTool is a canned UpdateTool.
type fakeTool struct {
	check    drush.CheckResult
	checkErr error

	checkCalls []string
	applyCalls []string
}

func (f *fakeTool) CheckUpdates(ctx context.Context, target string, opts drush.Options) (drush.CheckResult, error) {
	f.checkCalls = append(f.checkCalls, target)
	if f.checkErr != nil {
		return drush.CheckResult{}, f.checkErr
	}
	return f.check, nil
}

func (f *fakeTool) ApplyUpdates(ctx context.Context, target string, opts drush.Options) (string, error) {
	f.applyCalls = append(f.applyCalls, target)
	return "Project views was updated successfully.", nil
}

func newTestRunner(fake *fakePlatform, tool *fakeTool, opts Options) (*Runner, *bytes.Buffer) {
	session := &Session{
		Client: fake,
		Tool:   tool,
		User:   fake.user,
		RunID:  "run-test",
	}
	var out bytes.Buffer
	runner := NewRunner(session, opts, &out)
	runner.confirm = func(string) bool { return true }
	return runner, &out
}

func drupalSite(id, name, owner string) platform.Site {
	return platform.Site{
		ID:           id,
		Name:         name,
		OwnerID:      owner,
		Framework:    platform.FrameworkDrupal8,
		Capabilities: []string{"multidev"},
	}
}

func coreEnvs() []platform.Environment {
	return []platform.Environment{
		{ID: "dev", ConnectionMode: platform.ConnectionModeGit, Initialized: true},
		{ID: "test", ConnectionMode: platform.ConnectionModeGit, Initialized: true},
		{ID: "live", ConnectionMode: platform.ConnectionModeGit, Initialized: true},
	}
}

func rows(r *Runner) []report.Row {
	return r.Report().Rows()
}

func TestReportModeUpToDate(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{
		drupalSite("s-1", "my-site", "owner-1"),
		drupalSite("s-2", "other-site", "owner-2"),
	}
	fake.envs["s-1"] = coreEnvs()
	fake.envs["s-2"] = coreEnvs()
	tool := &fakeTool{check: drush.CheckResult{UpdatesAvailable: false}}

	runner, out := newTestRunner(fake, tool, Options{Report: true, Name: "my-site"})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Equal(t, "my-site", got[0].SiteName)
	assert.Equal(t, report.StatusUpToDate, got[0].Status)

	// Report mode must not mutate anything.
	assert.Empty(t, fake.mutations())
	assert.Equal(t, []string{"@my-site.dev"}, tool.checkCalls)
	assert.Empty(t, tool.applyCalls)
	assert.Contains(t, out.String(), "my-site")
}

func TestReportModeNeedsUpdate(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
	fake.envs["s-1"] = coreEnvs()
	tool := &fakeTool{check: drush.CheckResult{UpdatesAvailable: true, Projects: []string{"views"}}}

	runner, _ := newTestRunner(fake, tool, Options{Report: true})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Equal(t, report.StatusNeedsUpdate, got[0].Status)
	assert.Empty(t, fake.mutations())
	assert.Empty(t, tool.applyCalls)
}

func TestEnvironmentValidation(t *testing.T) {
	t.Run("unknown environment fails fast with no site processed", func(t *testing.T) {
		fake := newFakePlatform()
		fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
		fake.envs["s-1"] = coreEnvs()
		tool := &fakeTool{}

		runner, _ := newTestRunner(fake, tool, Options{Env: "qa"})

		err := runner.Run(context.Background())

		var usageErr *UsageError
		require.ErrorAs(t, err, &usageErr)
		assert.Empty(t, tool.checkCalls)
		assert.Empty(t, fake.mutations())
	})

	t.Run("live is always accepted", func(t *testing.T) {
		fake := newFakePlatform()
		fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
		fake.envs["s-1"] = coreEnvs()
		tool := &fakeTool{check: drush.CheckResult{}}

		runner, _ := newTestRunner(fake, tool, Options{Report: true, Env: "live"})

		require.NoError(t, runner.Run(context.Background()))
		assert.Equal(t, []string{"@my-site.live"}, tool.checkCalls)
	})

	t.Run("custom environment accepted when a site has it", func(t *testing.T) {
		fake := newFakePlatform()
		fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
		fake.envs["s-1"] = append(coreEnvs(), platform.Environment{
			ID:             "qa",
			ConnectionMode: platform.ConnectionModeGit,
			Initialized:    true,
		})
		tool := &fakeTool{check: drush.CheckResult{}}

		runner, _ := newTestRunner(fake, tool, Options{Report: true, Env: "qa"})

		require.NoError(t, runner.Run(context.Background()))
		assert.Equal(t, []string{"@my-site.qa"}, tool.checkCalls)
	})
}

func TestBackupFailureShortCircuits(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
	fake.envs["s-1"] = coreEnvs()
	fake.failBackup = true
	tool := &fakeTool{check: drush.CheckResult{UpdatesAvailable: true, Projects: []string{"views"}}}

	runner, _ := newTestRunner(fake, tool, Options{Env: "dev"})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Equal(t, report.StatusBackupFailed, got[0].Status)

	// No update subprocess after a failed backup.
	assert.Empty(t, tool.applyCalls)
}

func TestFullUpdateTogglesConnectionMode(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
	fake.envs["s-1"] = coreEnvs()
	tool := &fakeTool{check: drush.CheckResult{UpdatesAvailable: true, Projects: []string{"views"}}}

	runner, _ := newTestRunner(fake, tool, Options{Env: "dev", Message: "update contribs"})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Equal(t, report.StatusUpdated, got[0].Status)

	assert.Equal(t, []string{
		"backup s-1 dev",
		"mode s-1 dev sftp",
		`commit s-1 dev "update contribs"`,
		"mode s-1 dev git",
	}, fake.mutations())
	assert.Equal(t, []string{"@my-site.dev"}, tool.applyCalls)
}

func TestResetRecreatesPreviewEnvironment(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
	fake.envs["s-1"] = append(coreEnvs(), platform.Environment{
		ID:             PreviewEnvironment,
		ConnectionMode: platform.ConnectionModeGit,
		Initialized:    true,
	})
	tool := &fakeTool{check: drush.CheckResult{UpdatesAvailable: true, Projects: []string{"views"}}}

	runner, _ := newTestRunner(fake, tool, Options{Reset: true})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Equal(t, report.StatusUpdated, got[0].Status)

	// The stale preview environment goes away before the fresh clone from dev,
	// and the update runs against the clone with no backup of it.
	assert.Equal(t, []string{
		"delete-env s-1 mcu",
		"create-env s-1 mcu from dev",
		"mode s-1 mcu sftp",
		`commit s-1 mcu "` + DefaultCommitMessage + `"`,
		"mode s-1 mcu git",
	}, fake.mutations())
	assert.Equal(t, []string{"@my-site.mcu"}, tool.applyCalls)
}

func TestPendingChangesGuard(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
	fake.envs["s-1"] = []platform.Environment{
		{ID: "dev", ConnectionMode: platform.ConnectionModeSFTP, Initialized: true},
	}
	fake.diffs["s-1/dev"] = platform.DiffStat{Files: []string{"sites/default/settings.php"}}
	tool := &fakeTool{}

	runner, _ := newTestRunner(fake, tool, Options{Env: "dev"})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Status, "uncommitted changes")

	assert.Empty(t, tool.checkCalls)
	assert.Empty(t, fake.mutations())
}

func TestOwnerMeResolution(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{
		drupalSite("s-1", "mine", fake.user.ID),
		drupalSite("s-2", "theirs", "22222222-2222-2222-2222-222222222222"),
	}
	fake.envs["s-1"] = coreEnvs()
	fake.envs["s-2"] = coreEnvs()
	tool := &fakeTool{check: drush.CheckResult{}}

	runner, _ := newTestRunner(fake, tool, Options{Report: true, Owner: "me"})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].SiteName)
}

func TestUnsupportedFrameworkSkipped(t *testing.T) {
	fake := newFakePlatform()
	site := drupalSite("s-1", "blog", "owner-1")
	site.Framework = "wordpress"
	fake.sites = []platform.Site{site}
	tool := &fakeTool{}

	runner, _ := newTestRunner(fake, tool, Options{Report: true})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Status, "does not support contrib updates")
	assert.Empty(t, tool.checkCalls)
}

func TestFrozenSiteSkipped(t *testing.T) {
	fake := newFakePlatform()
	site := drupalSite("s-1", "frozen-site", "owner-1")
	site.Frozen = true
	fake.sites = []platform.Site{site}
	tool := &fakeTool{}

	runner, _ := newTestRunner(fake, tool, Options{Report: true})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Status, "frozen")
	assert.Empty(t, tool.checkCalls)
}

func TestConfirmDeclinedSkipsSite(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{
		drupalSite("s-1", "first", "owner-1"),
		drupalSite("s-2", "second", "owner-2"),
	}
	fake.envs["s-1"] = coreEnvs()
	fake.envs["s-2"] = coreEnvs()
	tool := &fakeTool{check: drush.CheckResult{}}

	runner, _ := newTestRunner(fake, tool, Options{Report: true, Confirm: true})
	runner.confirm = func(prompt string) bool {
		// Decline the first site, accept the rest.
		return !strings.HasPrefix(prompt, "Apply updates to first")
	}

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].SiteName)
}

func TestNoSitesMatchedIsAWarningNotAFailure(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{drupalSite("s-1", "my-site", "owner-1")}
	tool := &fakeTool{}

	runner, out := newTestRunner(fake, tool, Options{Name: "no-such"})

	require.NoError(t, runner.Run(context.Background()))
	assert.True(t, runner.Report().Empty())
	assert.Contains(t, out.String(), "No sites in need of updating.")
}

func TestMultipleSitesOneFailureContinues(t *testing.T) {
	fake := newFakePlatform()
	fake.sites = []platform.Site{
		drupalSite("s-1", "a-site", "owner-1"),
		drupalSite("s-2", "b-site", "owner-2"),
	}
	// a-site is missing the dev environment; b-site is fine.
	fake.envs["s-1"] = nil
	fake.envs["s-2"] = coreEnvs()
	tool := &fakeTool{check: drush.CheckResult{}}

	runner, _ := newTestRunner(fake, tool, Options{Report: true})

	require.NoError(t, runner.Run(context.Background()))

	got := rows(runner)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Status, "not found")
	assert.Equal(t, report.StatusUpToDate, got[1].Status)
}
