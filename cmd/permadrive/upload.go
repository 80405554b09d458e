package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/permadrive/permadrive/internal/ledger"
	"github.com/permadrive/permadrive/internal/ui"
	"github.com/permadrive/permadrive/internal/uploader"
)

var uploadYes bool

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Price the pending uploads without submitting anything",
	Run: func(cmd *cobra.Command, args []string) {
		st := mustOpenStore()
		defer st.Close()

		profile := mustProfile(st)
		session := mustSession(profile)
		lc := ledger.NewGatewayClient(cfg.GatewayURL)
		up := uploader.New(st, lc, session, cfg, cfg.NewLogger("uploader"))

		est, err := up.EstimateBatch(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error estimating: %v\n", err)
			os.Exit(1)
		}
		printEstimate(est)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Publish pending changes to the ledger",
	Long: `Submit every pending file and folder record: data transactions
for changed content, metadata transactions for everything, plus the
service fee. The price is shown first and nothing is submitted until it
is confirmed (or --yes is given).`,
	Run: func(cmd *cobra.Command, args []string) {
		st := mustOpenStore()
		defer st.Close()

		profile := mustProfile(st)
		session := mustSession(profile)
		lc := ledger.NewGatewayClient(cfg.GatewayURL)
		up := uploader.New(st, lc, session, cfg, cfg.NewLogger("uploader"))
		ctx := context.Background()

		est, err := up.EstimateBatch(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error estimating: %v\n", err)
			os.Exit(1)
		}
		if est.FileCount == 0 && est.MetadataOnlyCount == 0 {
			fmt.Printf("%s Nothing to upload\n", ui.RenderPass("✓"))
			return
		}
		printEstimate(est)

		if !uploadYes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Fprintf(os.Stderr, "Refusing to upload without confirmation; pass --yes.\n")
				os.Exit(1)
			}
			proceed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Publish %d file(s) for %.8f?", est.FileCount+est.MetadataOnlyCount, est.TotalPrice)).
				Value(&proceed).
				Run()
			if err != nil || !proceed {
				fmt.Printf("Upload cancelled.\n")
				return
			}
		}

		res, err := up.UploadPending(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s Upload complete\n", ui.RenderPass("✓"))
		fmt.Printf("   Files:         %d\n", res.Uploaded)
		fmt.Printf("   Metadata only: %d\n", res.MetadataOnly)
		if res.Failed > 0 {
			fmt.Printf("   %s %d file(s) failed; they stay queued for the next run\n", ui.RenderWarn("⚠"), res.Failed)
		}
		if res.FeePaid > 0 {
			fmt.Printf("   Service fee:   %.8f\n", res.FeePaid)
		}
		fmt.Printf("\nConfirmations land while 'permadrive sync' is running.\n")
	},
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadYes, "yes", false, "submit without the confirmation prompt")
}

func printEstimate(est *uploader.Estimate) {
	fmt.Printf("\n%s Pending uploads\n\n", ui.RenderAccent("📦"))
	fmt.Printf("   Files to upload:  %d (%s)\n", est.FileCount, formatBytes(est.TotalSize))
	fmt.Printf("   Metadata only:    %d\n", est.MetadataOnlyCount)
	fmt.Printf("   Data price:       %.8f\n", est.DataPrice)
	fmt.Printf("   Service fee:      %.8f\n", est.ServiceFee)
	fmt.Printf("   %s       %.8f\n", ui.RenderAccent("Total:"), est.TotalPrice)
	fmt.Println()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
