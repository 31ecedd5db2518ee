package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/internal/ui"
)

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark an item complete",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := mustLoadConfig()
		st := mustOpenStore(cfg)
		defer st.Close()

		item := mustFindItem(ctx, st, args[0])
		now := time.Now().Unix()
		item.CompletedAt = &now
		item.ModifiedAt = now
		item.NeedsPush = true

		if err := st.SaveRecord(ctx, item); err != nil {
			fmt.Fprintf(os.Stderr, "Error updating item: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Completed %s\n", ui.RenderPass("✓"), ui.RenderAccent(item.Title))
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an item",
	Long: `Delete an item. The deletion propagates to other devices on the next
sync and is permanently purged after the retention window.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := mustLoadConfig()
		st := mustOpenStore(cfg)
		defer st.Close()

		item := mustFindItem(ctx, st, args[0])
		now := time.Now().Unix()
		item.DeletedAt = &now
		item.ModifiedAt = now
		item.NeedsPush = true

		if err := st.UpdateSyncMeta(ctx, item); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting item: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderWarn("✗"), item.Title)
	},
}

// mustFindItem resolves an item by full id or unique prefix, or exits.
func mustFindItem(ctx context.Context, st *store.Store, id string) *model.Item {
	if rec, err := st.GetRecord(ctx, model.VariantItem, id); err == nil {
		return rec.(*model.Item)
	}

	recs, err := st.LiveRecords(ctx, model.VariantItem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error looking up item: %v\n", err)
		os.Exit(1)
	}

	var matches []*model.Item
	for _, r := range recs {
		item := r.(*model.Item)
		if strings.HasPrefix(item.ID, id) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		fmt.Fprintf(os.Stderr, "Error: no item matches %q\n", id)
	default:
		fmt.Fprintf(os.Stderr, "Error: %q is ambiguous (%d matches)\n", id, len(matches))
	}
	os.Exit(1)
	return nil
}

func init() {
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(rmCmd)
}
