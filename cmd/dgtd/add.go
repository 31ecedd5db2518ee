package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/model"
	"github.com/zendegi/directgtd/internal/ui"
)

var (
	addType   string
	addParent string
	addNotes  string
	addDue    string
	addStart  string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task or other item",
	Long: `Add an item to the local database. It syncs on the next cycle.

Due dates and start times accept natural language:

  dgtd add "File taxes" --due "next friday"
  dgtd add "Call dentist" --due "tomorrow 9am"
  dgtd add "Quarterly review" --type project`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		st := mustOpenStore(cfg)
		defer st.Close()

		itemType, ok := normalizeItemType(addType)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown item type %q\n", addType)
			os.Exit(1)
		}

		now := time.Now()
		item := &model.Item{
			ID:        newLocalID(),
			Title:     strings.Join(args, " "),
			ItemType:  itemType,
			Notes:     addNotes,
			ParentID:  addParent,
			CreatedAt: now.Unix(),
			SyncMeta: model.SyncMeta{
				ModifiedAt: now.Unix(),
				NeedsPush:  true,
			},
		}

		if addDue != "" {
			due, err := parseWhen(addDue, now)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			item.DueDate = &due
		}
		if addStart != "" {
			start, err := parseWhen(addStart, now)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			item.EarliestStartTime = &start
		}

		if err := item.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := st.SaveRecord(context.Background(), item); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving item: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), item.ItemType, ui.RenderAccent(item.Title))
		if item.DueDate != nil {
			fmt.Printf("   Due: %s\n", time.Unix(*item.DueDate, 0).Format("Mon Jan 2 15:04"))
		}
	},
}

// normalizeItemType maps a case-insensitive type name to its canonical
// form.
func normalizeItemType(t string) (string, bool) {
	for _, known := range []string{
		model.ItemTypeTask, model.ItemTypeNote, model.ItemTypeFolder,
		model.ItemTypeTemplate, model.ItemTypeProject, model.ItemTypeHeading,
		model.ItemTypeLink,
	} {
		if strings.EqualFold(t, known) {
			return known, true
		}
	}
	return "", false
}

// newLocalID mints a random record identifier.
func newLocalID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// parseWhen resolves a natural-language time expression relative to base.
func parseWhen(text string, base time.Time) (int64, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, base)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q: %w", text, err)
	}
	if result == nil {
		return 0, fmt.Errorf("could not understand %q", text)
	}
	return result.Time.Unix(), nil
}

func init() {
	addCmd.Flags().StringVar(&addType, "type", model.ItemTypeTask, "item type (task, note, folder, template, project, heading, link)")
	addCmd.Flags().StringVar(&addParent, "parent", "", "parent item id")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "notes text")
	addCmd.Flags().StringVar(&addDue, "due", "", "due date (natural language)")
	addCmd.Flags().StringVar(&addStart, "start", "", "earliest start time (natural language)")
	rootCmd.AddCommand(addCmd)
}
