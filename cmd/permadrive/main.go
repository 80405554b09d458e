package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/permadrive/permadrive/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "permadrive",
	Short: "Sync a local folder to permanent ledger storage",
	Long: `PermaDrive keeps a local folder continuously synchronized with
permanent, content-addressed ledger storage.

Files outside the Public subfolder are encrypted before they leave the
machine. Run 'permadrive setup' once, then 'permadrive sync' to start
the daemon.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: permadrive.yaml in the user config dir)")
	rootCmd.AddCommand(setupCmd, syncCmd, estimateCmd, uploadCmd, downloadCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
