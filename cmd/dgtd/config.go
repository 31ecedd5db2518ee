package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/config"
	"github.com/zendegi/directgtd/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Run: func(cmd *cobra.Command, args []string) {
		path := cfgPath
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.WriteStarter(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Printf("   Set remote.base_url (and DGTD_REMOTE_TOKEN) to enable sync\n")
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
