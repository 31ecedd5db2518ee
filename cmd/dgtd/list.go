package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/ui"
)

var (
	listType string
	listAll  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	Long:  `List live items, most recently created first. Completed items are hidden unless --all is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		st := mustOpenStore(cfg)
		defer st.Close()

		recs, err := st.LiveRecords(context.Background(), model.VariantItem)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing items: %v\n", err)
			os.Exit(1)
		}

		var filterType string
		if listType != "" {
			t, ok := normalizeItemType(listType)
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: unknown item type %q\n", listType)
				os.Exit(1)
			}
			filterType = t
		}

		shown := 0
		for _, r := range recs {
			item := r.(*model.Item)
			if filterType != "" && item.ItemType != filterType {
				continue
			}
			if item.CompletedAt != nil && !listAll {
				continue
			}
			printItem(item)
			shown++
		}
		if shown == 0 {
			fmt.Printf("%s Nothing to show\n", ui.RenderMuted("∅"))
		}
	},
}

func printItem(item *model.Item) {
	mark := " "
	if item.CompletedAt != nil {
		mark = ui.RenderPass("✓")
	}
	line := fmt.Sprintf("[%s] %s %s", mark, ui.RenderMuted(shortID(item.ID)), item.Title)
	if item.ItemType != model.ItemTypeTask {
		line += " " + ui.RenderAccent("("+item.ItemType+")")
	}
	if item.DueDate != nil {
		due := time.Unix(*item.DueDate, 0)
		label := "due " + due.Format("Jan 2")
		if due.Before(time.Now()) && item.CompletedAt == nil {
			line += " " + ui.RenderErr(label)
		} else {
			line += " " + ui.RenderMuted(label)
		}
	}
	if item.NeedsPush {
		line += " " + ui.RenderWarn("•")
	}
	fmt.Println(line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "only show items of this type")
	listCmd.Flags().BoolVar(&listAll, "all", false, "include completed items")
	rootCmd.AddCommand(listCmd)
}
