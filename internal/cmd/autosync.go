package cmd

import (
	"fmt"

	"github.com/archtower/aptsync/internal/app"
	"github.com/archtower/aptsync/internal/config"
	"github.com/spf13/cobra"
)

// autosyncCmd represents the autosync command
var autosyncCmd = &cobra.Command{
	Use:   "autosync",
	Short: "Sync every newer, non-forked package into the target suite",
	Long: `Autosync walks every component of the target suite, importing each source
package that is newer upstream than the target's, skipping any whose target
version's Debian revision carries the configured distro_tag (a locally
modified fork), along with their binaries.

Examples:
  aptsync autosync    # Sync all eligible packages across every target component`,
	RunE: runAutosync,
}

func runAutosync(cmd *cobra.Command, args []string) error {
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

	ok, err := application.Autosync(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("autosync failed, see logs for details")
	}

	return nil
}
