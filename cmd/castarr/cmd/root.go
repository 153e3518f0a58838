// Package cmd implements the CLI commands for castarr.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castarr/castarr/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "castarr",
	Short:   "Continuous linear TV channels from your media library",
	Version: version.Short(),
	Long: `castarr turns a media library into persistent HLS channels that behave
like broadcast television: each channel follows a wall-clock schedule,
keeps playing (virtually) while nobody watches, and resumes mid-program
when a viewer tunes in.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/castarr, $HOME/.castarr)")
}
