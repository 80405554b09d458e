package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/permadrive/permadrive/internal/config"
	"github.com/permadrive/permadrive/internal/downloader"
	"github.com/permadrive/permadrive/internal/engine"
	"github.com/permadrive/permadrive/internal/ledger"
	"github.com/permadrive/permadrive/internal/poller"
	"github.com/permadrive/permadrive/internal/ui"
	"github.com/permadrive/permadrive/internal/watcher"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the sync daemon",
	Long: `Watch the sync folder, classify changes into the state store,
poll submitted transactions for confirmation, and pull down files
published from other machines.

Uploads are not submitted automatically; run 'permadrive upload' to
review and publish pending changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		st := mustOpenStore()
		defer st.Close()

		profile := mustProfile(st)
		session := mustSession(profile)
		lc := ledger.NewGatewayClient(cfg.GatewayURL)

		w, err := watcher.New(profile.SyncFolderPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
			os.Exit(1)
		}

		classifier := watcher.NewClassifier(st, profile.SyncFolderPath,
			profile.DriveID, config.AppName, config.AppVersion, cfg.NewLogger("classifier"))
		p := poller.New(st, lc, cfg, cfg.NewLogger("poller"))
		d := downloader.New(st, lc, session, cfg, &promptResolver{}, cfg.NewLogger("downloader"))
		eng := engine.New(w, classifier, p, d, cfg, cfg.NewLogger("engine"))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := eng.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting sync engine: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Watching %s\n", ui.RenderAccent("🚀"), profile.SyncFolderPath)
		fmt.Printf("   Drive %s on %s\n", ui.RenderSubtle(profile.DriveID), cfg.GatewayURL)
		fmt.Printf("   Press Ctrl+C to stop\n")

		<-ctx.Done()
		fmt.Printf("\nShutting down...\n")
		if err := eng.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping sync engine: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
	},
}
