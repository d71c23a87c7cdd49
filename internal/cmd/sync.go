package cmd

import (
	"fmt"

	"github.com/archtower/aptsync/internal/app"
	"github.com/archtower/aptsync/internal/config"
	"github.com/spf13/cobra"
)

var (
	syncComponent string
	syncForce     bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [names...]",
	Short: "Sync specific packages from the source archive into the target suite",
	Long: `Sync copies the named packages from the configured upstream source archive
into the dak-managed target suite, importing each source package and (unless
sync.sync_binaries is false) its binaries for every target architecture.

Examples:
  aptsync sync --component main foo bar     # Sync foo and bar from component main
  aptsync sync --force --component main lib # Re-import lib even if the target is newer`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncComponent, "component", "", "component to sync packages within (required)")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "import even if the target already has an equal or newer version")
	_ = syncCmd.MarkFlagRequired("component")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if !cfg.Sync.Enabled {
		return fmt.Errorf("sync is disabled in configuration")
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Shutdown()

	ok, err := application.SyncPackages(ctx, syncComponent, args, syncForce)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sync failed, see logs for details")
	}

	return nil
}
