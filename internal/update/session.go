// Package update orchestrates a mass contrib-module update run across a
// fleet of hosted sites: filter, validate, provision, back up, update via
// the external tool, commit, report.
package update

import (
	"context"
	"fmt"

	"github.com/libops/fleetctl/internal/config"
	"github.com/libops/fleetctl/internal/drush"
	"github.com/libops/fleetctl/internal/logging"
	"github.com/libops/fleetctl/internal/platform"
)

// PlatformClient is the slice of the site-management API a run needs.
// *platform.Client satisfies it; tests substitute fakes.
type PlatformClient interface {
	CurrentUser(ctx context.Context) (platform.User, error)
	ListSites(ctx context.Context) ([]platform.Site, error)
	ListEnvironments(ctx context.Context, siteID string) ([]platform.Environment, error)
	DiffStat(ctx context.Context, siteID, envID string) (platform.DiffStat, error)
	CreateEnvironment(ctx context.Context, siteID, envID, source string) (platform.Workflow, error)
	DeleteEnvironment(ctx context.Context, siteID, envID string, deleteBranch bool) (platform.Workflow, error)
	SetConnectionMode(ctx context.Context, siteID, envID, mode string) (platform.Workflow, error)
	Commit(ctx context.Context, siteID, envID, message string) (platform.Workflow, error)
	CreateBackup(ctx context.Context, siteID, envID string) (platform.Workflow, error)
	SetDrushVersion(ctx context.Context, siteID, envID string, version int) error
	WaitForWorkflow(ctx context.Context, siteID string, wf platform.Workflow) (platform.WorkflowResult, error)
}

// UpdateTool is the external update tool boundary. *drush.Runner satisfies
// it; tests substitute fakes.
type UpdateTool interface {
	CheckUpdates(ctx context.Context, target string, opts drush.Options) (drush.CheckResult, error)
	ApplyUpdates(ctx context.Context, target string, opts drush.Options) (string, error)
}

// Session is the explicit per-run context: the authenticated client, the
// resolved identity behind it, and the run's identity for logging. It is
// passed to every component instead of ambient global state.
type Session struct {
	Client PlatformClient
	Tool   UpdateTool
	User   platform.User
	RunID  string
	Config *config.Config
}

// NewSession resolves the authenticated user and assembles a session.
func NewSession(ctx context.Context, client PlatformClient, tool UpdateTool, cfg *config.Config) (*Session, error) {
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	return &Session{
		Client: client,
		Tool:   tool,
		User:   user,
		RunID:  logging.GenerateRunID(),
		Config: cfg,
	}, nil
}
