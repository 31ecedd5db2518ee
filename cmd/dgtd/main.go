// Command dgtd is the DirectGTD command line: local task capture plus the
// background sync daemon that mirrors the database to the remote record
// store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/config"
	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/store"
	"github.com/zendegi/directgtd/internal/sync"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "dgtd",
	Short: "DirectGTD: offline-first task management with background sync",
	Long: `DirectGTD keeps your tasks, tags, time entries and saved searches in a
local SQLite database and syncs them to the remote record store in the
background. Every command works offline; sync catches up when it can.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.directgtd/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustLoadConfig loads configuration or exits.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// mustOpenStore opens the database or exits. The caller owns Close.
func mustOpenStore(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := st.InitSchema(context.Background()); err != nil {
		st.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return st
}

// mustRemote builds the remote client or exits when sync is unconfigured.
func mustRemote(cfg *config.Config) remote.Service {
	if cfg.Remote.BaseURL == "" {
		fmt.Fprintf(os.Stderr, "Error: remote.base_url is not configured (run 'dgtd config init')\n")
		os.Exit(1)
	}
	return remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token)
}

// newEngine wires a sync engine from config.
func newEngine(cfg *config.Config, st *store.Store) *sync.Engine {
	engine := sync.New(st, mustRemote(cfg), nil)
	if cfg.Sync.TombstoneRetention > 0 {
		engine.Retention = cfg.Sync.TombstoneRetention
	}
	return engine
}
