package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and sync status",
	Long: `Display the local database location and size, live record counts,
pending changes, and when the last sync completed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		ctx := context.Background()

		info, err := os.Stat(cfg.DBPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s No database yet at %s\n", ui.RenderWarn("⚠"), cfg.DBPath)
			fmt.Printf("   Run 'dgtd add' to create one\n\n")
			return
		}

		st := mustOpenStore(cfg)
		defer st.Close()

		fmt.Printf("\n%s DirectGTD Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Database: %s (%.1f KB)\n", cfg.DBPath, float64(info.Size())/1024)

		labels := map[model.Variant]string{
			model.VariantItem:        "Items",
			model.VariantTag:         "Tags",
			model.VariantItemTag:     "Item-tag links",
			model.VariantTimeEntry:   "Time entries",
			model.VariantSavedSearch: "Saved searches",
		}
		for _, v := range model.Variants() {
			n, err := st.LiveCount(ctx, v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error counting %s: %v\n", v, err)
				os.Exit(1)
			}
			fmt.Printf("   %-15s %d\n", labels[v]+":", n)
		}

		dirty, err := st.DirtyRecords(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading pending changes: %v\n", err)
			os.Exit(1)
		}

		enabled, _ := st.GetMetaBool(ctx, store.MetaSyncEnabled)
		lastSync, _ := st.GetMetaInt64(ctx, store.MetaLastSyncTimestamp)

		fmt.Println()
		if !enabled {
			fmt.Printf("   Sync: %s\n", ui.RenderWarn("disabled"))
		} else if len(dirty) > 0 {
			fmt.Printf("   Sync: %s (%d pending changes)\n", ui.RenderWarn("behind"), len(dirty))
		} else {
			fmt.Printf("   Sync: %s\n", ui.RenderPass("up to date"))
		}
		if lastSync > 0 {
			fmt.Printf("   Last sync: %s\n", ui.RenderMuted(time.Unix(lastSync, 0).Format(time.RFC1123)))
		} else {
			fmt.Printf("   Last sync: %s\n", ui.RenderMuted("never"))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
