// Package cli wires the fleetctl command surface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var configPath string

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "Fleet operations for hosted Drupal and Backdrop sites",
	Long: `fleetctl runs fleet-wide operations against hosted Drupal and Backdrop
sites. Its mass-update subcommand checks for and applies contrib-module
updates across many sites in one invocation, backing up and committing
along the way.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd prints the build version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fleetctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fleetctl %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config file (default: ~/.config/fleetctl/fleetctl.toml)")
	rootCmd.AddCommand(massUpdateCmd)
	rootCmd.AddCommand(versionCmd)
}
