package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libops/fleetctl/internal/config"
	"github.com/libops/fleetctl/internal/drush"
	"github.com/libops/fleetctl/internal/platform"
	"github.com/libops/fleetctl/internal/update"
)

var massUpdateOpts update.Options

// massUpdateCmd checks and applies contrib-module updates across the fleet.
var massUpdateCmd = &cobra.Command{
	Use:   "mass-update",
	Short: "Check and apply contrib-module updates across many sites",
	Long: `mass-update enumerates the fleet, narrows it by the requested filters,
validates the target environment, and then per site: optionally creates a
preview environment, checks for pending contrib updates with drush, backs
the environment up, applies the updates, and commits the result.

A plain run works against the "` + update.PreviewEnvironment + `" preview environment; --report
checks dev without mutating anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		tool, err := drush.NewRunner(cfg.DrushBin)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := platform.NewClient(cfg)
		session, err := update.NewSession(ctx, client, tool, cfg)
		if err != nil {
			return err
		}

		runner := update.NewRunner(session, massUpdateOpts, cmd.OutOrStdout())

		cache, err := platform.NewSiteCache(cfg.CacheMaxAge)
		if err != nil {
			slog.Warn("site cache unavailable", "err", err)
		} else {
			runner.WithCache(cache)
		}

		return runner.Run(ctx)
	},
}

func init() {
	f := massUpdateCmd.Flags()

	f.StringVar(&massUpdateOpts.Env, "env", "",
		"target environment (default: \""+update.PreviewEnvironment+"\", or \"dev\" with --report)")
	f.BoolVar(&massUpdateOpts.Report, "report", false,
		"only report pending updates, mutate nothing")
	f.StringVar(&massUpdateOpts.Message, "message", "",
		"commit message for applied updates")
	f.BoolVar(&massUpdateOpts.Confirm, "confirm", false,
		"ask before updating each site")
	f.BoolVar(&massUpdateOpts.SkipBackup, "skip-backup", false,
		"skip the pre-update backup")
	f.BoolVar(&massUpdateOpts.SecurityOnly, "security-only", false,
		"only apply security updates")
	f.StringSliceVar(&massUpdateOpts.Projects, "projects", nil,
		"restrict updates to these projects")
	f.BoolVar(&massUpdateOpts.Reset, "reset", false,
		"recreate the preview environment from dev before updating")
	f.BoolVar(&massUpdateOpts.Team, "team", false,
		"only team sites")
	f.StringVar(&massUpdateOpts.Owner, "owner", "",
		"only sites owned by this user UUID (\"me\" for the session user)")
	f.StringVar(&massUpdateOpts.Org, "org", "",
		"only sites in this organization (\"all\" for any organization)")
	f.StringVar(&massUpdateOpts.Name, "name", "",
		"only sites whose name matches this regular expression")
	f.BoolVar(&massUpdateOpts.Cached, "cached", false,
		"use the cached site list when fresh enough")
	f.BoolVar(&massUpdateOpts.Yes, "yes", false,
		"answer yes to every prompt")
}
