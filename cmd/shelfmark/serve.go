package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shelfmark/shelfmark/internal/daemon"
	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/internal/surfaces"
)

var (
	servePort     int
	serveHeadless bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the change propagation daemon",
	Long: `Run the long-lived daemon: watch the store's change feed, keep the
in-memory cache fresh, and fan each reloaded document out to connected UI
surfaces over WebSocket.

Other shelfmark processes (and other machines' editors pointed at the same
data directory) can keep writing; this process observes every write through
the backend's change feed.`,
	Run: func(cmd *cobra.Command, args []string) {
		area, err := openArea()
		if err != nil {
			fatalf("opening store: %v", err)
		}
		defer area.Close()

		mgr := openManager(area)

		dc := daemon.DefaultConfig()
		dc.Logger = appLog
		dc.Propagator = &store.PropagatorConfig{
			SettleDelay: cfg.SettleDelay,
			Logger:      appLog,
		}
		if !serveHeadless {
			port := servePort
			if port == 0 {
				port = cfg.ServePort
			}
			dc.Surfaces = &surfaces.Config{Port: port, Logger: appLog}
		}

		d, err := daemon.New(area, mgr, dc)
		if err != nil {
			fatalf("creating daemon: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			fatalf("daemon: %v", err)
		}
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "surfaces server port (default from config)")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the surfaces server")
	rootCmd.AddCommand(serveCmd)
}
