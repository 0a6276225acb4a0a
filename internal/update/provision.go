package update

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/libops/fleetctl/internal/platform"
)

// multidevCapability gates preview environment creation.
const multidevCapability = "multidev"

// pinnedDrushVersion is set on freshly created preview environments so the
// update tool behaves the same across the fleet.
const pinnedDrushVersion = 8

// ensurePreviewEnvironment makes sure the preview environment exists on the
// site, recreating it from dev when reset is requested. It returns true when
// the environment was created (or recreated) during this run, which lets the
// caller skip the pre-update backup of a clone nobody has touched.
func (r *Runner) ensurePreviewEnvironment(ctx context.Context, site platform.Site, envs []platform.Environment, reset bool) (bool, error) {
	exists := false
	for _, env := range envs {
		if env.ID == PreviewEnvironment {
			exists = true
			break
		}
	}

	if exists && !reset {
		return false, nil
	}

	if !site.HasCapability(multidevCapability) {
		return false, NewPreconditionError("site %s cannot create preview environments (no %s capability)", site.Name, multidevCapability)
	}

	if exists {
		if err := r.deleteEnvironment(ctx, site, envs, PreviewEnvironment); err != nil {
			return false, err
		}
	}

	slog.Info("creating preview environment", "source", "dev")
	wf, err := r.session.Client.CreateEnvironment(ctx, site.ID, PreviewEnvironment, "dev")
	if err != nil {
		return false, NewOperationError(err)
	}
	if err := r.waitWorkflow(ctx, site.ID, wf); err != nil {
		return false, err
	}

	if err := r.session.Client.SetDrushVersion(ctx, site.ID, PreviewEnvironment, pinnedDrushVersion); err != nil {
		return false, NewOperationError(err)
	}

	return true, nil
}

// deleteEnvironment deletes a non-core environment with branch cleanup and
// waits for the workflow.
func (r *Runner) deleteEnvironment(ctx context.Context, site platform.Site, envs []platform.Environment, name string) error {
	hasNonCore := false
	for _, env := range envs {
		if !env.IsCore() {
			hasNonCore = true
			break
		}
	}
	if !hasNonCore {
		return NewPreconditionError("site %s has no deletable environments", site.Name)
	}

	slog.Info("deleting environment", "name", name)
	wf, err := r.session.Client.DeleteEnvironment(ctx, site.ID, name, true)
	if err != nil {
		return NewOperationError(err)
	}
	return r.waitWorkflow(ctx, site.ID, wf)
}

// waitWorkflow blocks until the workflow reaches a terminal state and maps
// failure or timeout to an OperationError.
func (r *Runner) waitWorkflow(ctx context.Context, siteID string, wf platform.Workflow) error {
	result, err := r.session.Client.WaitForWorkflow(ctx, siteID, wf)
	if err != nil {
		return NewOperationError(fmt.Errorf("workflow wait aborted: %w", err))
	}
	if resultErr := result.Err(); resultErr != nil {
		return NewOperationError(resultErr)
	}
	return nil
}
