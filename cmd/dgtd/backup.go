package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/ui"
)

var restoreYes bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the database",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: no database at %s\n", cfg.DBPath)
			os.Exit(1)
		}

		// Opening and closing checkpoints the WAL so the copy is complete.
		st := mustOpenStore(cfg)
		st.Close()

		if err := os.MkdirAll(cfg.BackupsDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating backups directory: %v\n", err)
			os.Exit(1)
		}

		name := fmt.Sprintf("directgtd-%s.db", time.Now().Format("20060102-150405"))
		dest := filepath.Join(cfg.BackupsDir, name)
		if err := copyFile(cfg.DBPath, dest); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing backup: %v\n", err)
			os.Exit(1)
		}

		info, _ := os.Stat(dest)
		fmt.Printf("%s Backed up to %s (%.1f KB)\n", ui.RenderPass("✓"), dest, float64(info.Size())/1024)
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		backups, err := listBackups(cfg.BackupsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading backups: %v\n", err)
			os.Exit(1)
		}
		if len(backups) == 0 {
			fmt.Printf("%s No backups in %s\n", ui.RenderWarn("⚠"), cfg.BackupsDir)
			return
		}

		fmt.Printf("\n%s Backups (newest first)\n\n", ui.RenderAccent("🗂"))
		for _, b := range backups {
			info, err := os.Stat(b)
			if err != nil {
				continue
			}
			fmt.Printf("   %s  %8.1f KB  %s\n",
				filepath.Base(b),
				float64(info.Size())/1024,
				ui.RenderMuted(info.ModTime().Format("2006-01-02 15:04:05")))
		}
		fmt.Println()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [backup-file]",
	Short: "Restore the database from a backup",
	Long: `Restore the database from a backup file. With no argument the newest
backup is used. The current database is backed up first, so a restore is
always reversible.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		var src string
		if len(args) == 1 {
			src = args[0]
			if !strings.Contains(src, string(os.PathSeparator)) {
				src = filepath.Join(cfg.BackupsDir, src)
			}
		} else {
			backups, err := listBackups(cfg.BackupsDir)
			if err != nil || len(backups) == 0 {
				fmt.Fprintf(os.Stderr, "Error: no backups found in %s\n", cfg.BackupsDir)
				os.Exit(1)
			}
			src = backups[0]
		}
		if _, err := os.Stat(src); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot read backup %s: %v\n", src, err)
			os.Exit(1)
		}

		if !restoreYes {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Replace the current database with %s?", filepath.Base(src))).
					Description("The current database is backed up first.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil || !confirmed {
				fmt.Println("Restore cancelled")
				return
			}
		}

		// Safety copy of whatever is there now.
		if _, err := os.Stat(cfg.DBPath); err == nil {
			if err := os.MkdirAll(cfg.BackupsDir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "Error creating backups directory: %v\n", err)
				os.Exit(1)
			}
			pre := filepath.Join(cfg.BackupsDir,
				fmt.Sprintf("pre-restore-%s.db", time.Now().Format("20060102-150405")))
			if err := copyFile(cfg.DBPath, pre); err != nil {
				fmt.Fprintf(os.Stderr, "Error saving pre-restore backup: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("   Current database saved to %s\n", pre)
		}

		// Stale WAL/SHM files would shadow the restored database.
		os.Remove(cfg.DBPath + "-wal")
		os.Remove(cfg.DBPath + "-shm")

		if err := copyFile(src, cfg.DBPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error restoring database: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Restored from %s\n", ui.RenderPass("✓"), filepath.Base(src))
	},
}

// listBackups returns backup file paths, newest first.
func listBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var backups []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		backups = append(backups, filepath.Join(dir, e.Name()))
	}
	sort.Slice(backups, func(i, j int) bool {
		fi, _ := os.Stat(backups[i])
		fj, _ := os.Stat(backups[j])
		if fi == nil || fj == nil {
			return backups[i] > backups[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return backups, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func init() {
	backupRestoreCmd.Flags().BoolVar(&restoreYes, "yes", false, "skip the confirmation prompt")
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
