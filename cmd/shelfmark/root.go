package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/kvarea"
	"github.com/shelfmark/shelfmark/internal/store"
)

var (
	cfgFile string
	dataDir string
	backend string
	cfg     *config.Config
	appLog  *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shelfmark",
	Short: "Personal bookmark manager",
	Long: `shelfmark is a personal bookmark manager.

Bookmarks carry a URL, title, note, and free-form tags. Everything persists
in a single shared store (a JSON file or a SQLite database) that multiple
processes can read and write; a derived tag index with usage counts is kept
consistent with the bookmark records it was computed from.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if backend != "" {
			cfg.Backend = backend
		}
		if cfg.Backend != "file" && cfg.Backend != "sqlite" {
			return fmt.Errorf("unknown backend %q (want file or sqlite)", cfg.Backend)
		}
		appLog = cfg.NewLogger("[shelfmark] ")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "storage backend: file or sqlite (overrides config)")
}

// openArea constructs the configured key-value area.
// The caller must Close() it.
func openArea() (kvarea.Area, error) {
	switch cfg.Backend {
	case "sqlite":
		return kvarea.OpenSQLite(cfg.StorePath(), cfg.PollInterval, appLog)
	default:
		return kvarea.NewFile(cfg.StorePath(), appLog)
	}
}

// openManager constructs the store manager over the configured area.
func openManager(area kvarea.Area) *store.Manager {
	mc := store.DefaultConfig()
	mc.Logger = appLog
	if len(cfg.StarterTags) > 0 {
		mc.StarterTags = cfg.StarterTags
	}
	return store.NewManager(area, mc)
}

// fatalf prints an error and exits, matching the CLI's failure style.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
