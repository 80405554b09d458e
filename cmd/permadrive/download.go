package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/permadrive/permadrive/internal/downloader"
	"github.com/permadrive/permadrive/internal/ledger"
	"github.com/permadrive/permadrive/internal/ui"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Pull the drive's remote state down once",
	Long: `Import every metadata transaction the drive's wallet has
published and materialize missing files locally. The sync daemon does
this continuously; this command runs a single sweep.`,
	Run: func(cmd *cobra.Command, args []string) {
		st := mustOpenStore()
		defer st.Close()

		profile := mustProfile(st)
		session := mustSession(profile)
		lc := ledger.NewGatewayClient(cfg.GatewayURL)
		d := downloader.New(st, lc, session, cfg, &promptResolver{}, cfg.NewLogger("downloader"))
		ctx := context.Background()

		fmt.Printf("%s Importing drive metadata...\n", ui.RenderAccent("🔄"))
		if err := d.FetchRemoteMetadata(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing metadata: %v\n", err)
			os.Exit(1)
		}
		if err := d.DownloadPending(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error downloading files: %v\n", err)
			os.Exit(1)
		}

		remaining, err := st.GetCompletedNotLocal(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading download state: %v\n", err)
			os.Exit(1)
		}
		if len(remaining) > 0 {
			fmt.Printf("%s %d file(s) still pending (conflicts or fetch errors)\n", ui.RenderWarn("⚠"), len(remaining))
			return
		}
		fmt.Printf("%s Local folder is up to date\n", ui.RenderPass("✓"))
	},
}
