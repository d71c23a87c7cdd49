package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/archtower/aptsync/internal/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	verbose    bool
	realStdout *os.File // Real stdout saved before redirection
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aptsync",
	Short: "Another APT Repository Generator",
	Long: `aptsync aggregates packages from multiple sources into APT repositories.

It downloads packages from GitHub releases, APT repositories, and OBS builds,
verifies signatures, applies retention policies, and syncs newer versions
into a dak-managed archive suite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Save the real stdout before redirecting
		realStdout = os.Stdout

		// Redirect os.Stdout to discard to suppress unwanted library output (e.g., aptly's fmt.Printf)
		os.Stdout, _ = os.Open(os.DevNull)

		// Configure logging based on verbose flag
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		handler := log.NewHandler(realStdout, level)
		slog.SetDefault(slog.New(handler))

		// Set Cobra's output to real stdout (not redirected)
		cmd.SetOut(realStdout)
		cmd.SetErr(realStdout)
	},
}

// ExecuteContext runs the root command with context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/aptsync/config.yaml or /etc/aptsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "", "v", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(autosyncCmd)
	rootCmd.AddCommand(configCmd)
}
