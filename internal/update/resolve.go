package update

import (
	"context"

	"github.com/libops/fleetctl/internal/platform"
)

// PreviewEnvironment is the name of the preview environment this tool
// creates for plain (non-report) runs.
const PreviewEnvironment = "mcu"

// ResolveEnvironment picks the target environment name from the --env flag
// and the run mode. Plain runs default to the preview environment; report
// runs default to dev.
func ResolveEnvironment(envFlag string, reportMode bool) string {
	if envFlag != "" {
		return envFlag
	}
	if reportMode {
		return "dev"
	}
	return PreviewEnvironment
}

// ValidateEnvironment checks the target environment name against the
// candidate sites. dev, test, live, and the preview name are always valid;
// any other name is valid only if at least one site already has an
// environment with that exact id. Failure aborts the whole run before any
// site is processed.
func ValidateEnvironment(ctx context.Context, client PlatformClient, sites []platform.Site, name string) error {
	if platform.IsCoreEnvironment(name) || name == PreviewEnvironment {
		return nil
	}

	for _, site := range sites {
		envs, err := client.ListEnvironments(ctx, site.ID)
		if err != nil {
			return NewOperationError(err)
		}
		for _, env := range envs {
			if env.ID == name {
				return nil
			}
		}
	}

	return NewUsageError("environment %q does not exist on any selected site", name)
}
