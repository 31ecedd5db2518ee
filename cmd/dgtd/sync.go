package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Run a single foreground sync cycle:

  1. Push local changes to the remote store
  2. Pull remote changes since the last cursor
  3. Check for silent drift if nothing came back
  4. Purge expired tombstones`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		st := mustOpenStore(cfg)
		defer st.Close()

		engine := newEngine(cfg, st)

		fmt.Printf("%s Syncing...\n", ui.RenderAccent("🔄"))
		stats, err := engine.SyncOnce(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Sync failed: %v\n", ui.RenderErr("✗"), err)
			os.Exit(1)
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), stats.Duration.Round(time.Millisecond))
		fmt.Printf("   Pushed: %d\n", stats.Pushed)
		fmt.Printf("   Pulled: %d\n", stats.Pulled)
		if stats.Purged > 0 {
			fmt.Printf("   Purged: %d tombstones\n", stats.Purged)
		}
		if stats.DriftRepaired {
			fmt.Printf("   %s Drift detected and repaired\n", ui.RenderWarn("⚠"))
		}
	},
}

var syncEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable background sync",
	Run:   func(cmd *cobra.Command, args []string) { setSyncEnabled(true) },
}

var syncDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable background sync",
	Run:   func(cmd *cobra.Command, args []string) { setSyncEnabled(false) },
}

func setSyncEnabled(enabled bool) {
	cfg := mustLoadConfig()
	st := mustOpenStore(cfg)
	defer st.Close()

	if err := st.SetMetaBool(context.Background(), store.MetaSyncEnabled, enabled); err != nil {
		fmt.Fprintf(os.Stderr, "Error updating sync setting: %v\n", err)
		os.Exit(1)
	}
	if enabled {
		fmt.Printf("%s Sync enabled\n", ui.RenderPass("✓"))
	} else {
		fmt.Printf("%s Sync disabled\n", ui.RenderWarn("⚠"))
	}
}

func init() {
	syncCmd.AddCommand(syncEnableCmd)
	syncCmd.AddCommand(syncDisableCmd)
	rootCmd.AddCommand(syncCmd)
}
