package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/permadrive/permadrive/internal/store"
	"github.com/permadrive/permadrive/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show drive and queue state",
	Run: func(cmd *cobra.Command, args []string) {
		st := mustOpenStore()
		defer st.Close()

		profile := mustProfile(st)
		ctx := context.Background()

		pending, err := st.CountSyncByStatus(ctx, store.StatusNeedsUpload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading state: %v\n", err)
			os.Exit(1)
		}
		submitted, err := st.GetSubmittedFiles(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading state: %v\n", err)
			os.Exit(1)
		}
		queued, err := st.CountQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading state: %v\n", err)
			os.Exit(1)
		}
		completed, err := st.CountCompleted(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading state: %v\n", err)
			os.Exit(1)
		}
		toDownload, err := st.GetCompletedNotLocal(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading state: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s PermaDrive Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   %s\n", ui.RenderHeader("Drive"))
		fmt.Printf("   Owner:  %s\n", profile.Owner)
		fmt.Printf("   Drive:  %s\n", ui.RenderSubtle(profile.DriveID))
		fmt.Printf("   Folder: %s\n", profile.SyncFolderPath)
		fmt.Printf("   Wallet: %s\n\n", ui.RenderSubtle(profile.WalletPublicKey))

		fmt.Printf("   %s\n", ui.RenderHeader("Queues"))
		fmt.Printf("   Pending upload:        %d\n", pending)
		fmt.Printf("   Awaiting confirmation: %d (%d queue entries)\n", len(submitted), queued)
		fmt.Printf("   Completed:             %d\n", completed)
		fmt.Printf("   Pending download:      %d\n\n", len(toDownload))

		if len(submitted) > 0 {
			fmt.Printf("   %s\n", ui.RenderHeader("Awaiting confirmation"))
			for i, rec := range submitted {
				if i == 5 {
					fmt.Printf("   ... and %d more\n", len(submitted)-i)
					break
				}
				name := rec.DrivePath + rec.FileName
				if rec.FileHash == store.FolderHashSentinel {
					name = rec.DrivePath
				}
				fmt.Printf("   %s\n", ui.RenderSubtle(name))
			}
			fmt.Println()
		}

		switch {
		case pending > 0:
			fmt.Printf("%s Run '%s' to publish pending changes\n", ui.RenderWarn("⚠"), ui.RenderAccent("permadrive upload"))
		case len(submitted) > 0:
			fmt.Printf("%s Waiting for the ledger; keep '%s' running\n", ui.RenderAccent("⏳"), ui.RenderAccent("permadrive sync"))
		default:
			fmt.Printf("%s Everything is in sync\n", ui.RenderPass("✓"))
		}
	},
}
