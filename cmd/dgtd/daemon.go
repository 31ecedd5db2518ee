package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zendegi/directgtd/internal/config"
	"github.com/zendegi/directgtd/internal/daemon"
	"github.com/zendegi/directgtd/internal/remote"
	"github.com/zendegi/directgtd/internal/sync"
	"github.com/zendegi/directgtd/internal/ui"
)

var daemonForeground bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground.

The daemon bootstraps the remote connection, performs the initial full
download if needed, then keeps the local database converged: change
notifications and local edits trigger debounced sync cycles, with a
periodic timer as fallback. Logs rotate under the configured log file
unless --foreground sends them to stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		st := mustOpenStore(cfg)
		defer st.Close()

		var logOut io.Writer = os.Stderr
		if !daemonForeground && cfg.Log.File != "" {
			logOut = &lumberjack.Logger{
				Filename:   cfg.Log.File,
				MaxSize:    cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
			}
		}
		logger := log.New(logOut, "[daemon] ", log.LstdFlags)

		engine := sync.New(st, mustRemote(cfg), log.New(logOut, "[sync] ", log.LstdFlags))
		if cfg.Sync.TombstoneRetention > 0 {
			engine.Retention = cfg.Sync.TombstoneRetention
		}

		dcfg := daemon.DefaultConfig()
		dcfg.Logger = logger
		if cfg.Sync.DebounceInterval > 0 {
			dcfg.DebounceInterval = cfg.Sync.DebounceInterval
		}
		if cfg.Sync.PeriodicInterval > 0 {
			dcfg.PeriodicInterval = cfg.Sync.PeriodicInterval
		}
		dcfg.ConfigPath = cfgPath
		if dcfg.ConfigPath == "" {
			dcfg.ConfigPath = config.DefaultPath()
		}

		d, err := daemon.New(st, engine, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		// Change pings from other devices feed straight into the debounced
		// request path. DeviceID mints the identity if this is the first
		// run, so the self-echo filter works from the very first ping.
		if cfg.Remote.NotifyURL != "" {
			deviceID, err := d.DeviceID(ctx)
			if err != nil {
				logger.Printf("notification listener unavailable: %v", err)
			} else {
				listener := remote.NewListener(
					cfg.Remote.NotifyURL, cfg.Remote.Token, deviceID,
					d.RequestSync,
					log.New(logOut, "[notify] ", log.LstdFlags),
				)
				go listener.Run(ctx)
			}
		}

		fmt.Printf("%s Sync daemon running (Ctrl-C to stop)\n", ui.RenderAccent("🚀"))
		if err := d.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s Daemon exited with error: %v\n", ui.RenderErr("✗"), err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "log to stderr instead of the rotating log file")
	rootCmd.AddCommand(daemonCmd)
}
