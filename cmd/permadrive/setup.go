package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/permadrive/permadrive/internal/store"
	"github.com/permadrive/permadrive/internal/ui"
	"github.com/permadrive/permadrive/internal/wallet"
)

var setupWalletFile string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the sync profile, wallet and drive",
	Long: `Create the local profile: the sync folder (with its Public
subfolder), a wallet, the drive id, and the passphrase that protects
private content.

An existing wallet can be imported with --wallet-file; otherwise a new
one is generated and saved next to the state database.`,
	Run: func(cmd *cobra.Command, args []string) {
		st := mustOpenStore()
		defer st.Close()

		ctx := context.Background()
		if _, err := st.GetProfile(ctx); err == nil {
			fmt.Fprintf(os.Stderr, "A profile already exists. Delete %s to start over.\n", cfg.DatabasePath)
			os.Exit(1)
		} else if !errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Error checking profile: %v\n", err)
			os.Exit(1)
		}

		home, _ := os.UserHomeDir()
		owner := ""
		email := ""
		folder := filepath.Join(home, "PermaDrive")
		passphrase := ""
		confirm := ""

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Owner name").
					Value(&owner).
					Validate(nonEmpty("owner name")),
				huh.NewInput().
					Title("Email (optional)").
					Value(&email),
				huh.NewInput().
					Title("Sync folder").
					Value(&folder).
					Validate(nonEmpty("sync folder")),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Drive passphrase").
					Description("Protects everything outside the Public subfolder. It cannot be recovered.").
					EchoMode(huh.EchoModePassword).
					Value(&passphrase).
					Validate(nonEmpty("passphrase")),
				huh.NewInput().
					Title("Repeat passphrase").
					EchoMode(huh.EchoModePassword).
					Value(&confirm),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Setup cancelled: %v\n", err)
			os.Exit(1)
		}
		if passphrase != confirm {
			fmt.Fprintf(os.Stderr, "Passphrases do not match.\n")
			os.Exit(1)
		}

		if err := os.MkdirAll(filepath.Join(folder, "Public"), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating sync folder: %v\n", err)
			os.Exit(1)
		}

		w, err := loadOrGenerateWallet()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error preparing wallet: %v\n", err)
			os.Exit(1)
		}

		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating key material: %v\n", err)
			os.Exit(1)
		}

		profile := &store.Profile{
			Owner:             owner,
			DriveID:           uuid.NewString(),
			Email:             email,
			DataProtectionKey: base64.StdEncoding.EncodeToString(salt),
			WalletPrivateKey:  w.PrivateKey,
			WalletPublicKey:   w.PublicKey,
			SyncFolderPath:    filepath.Clean(folder),
		}
		if err := st.SaveProfile(ctx, profile); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving profile: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n%s Profile created\n", ui.RenderPass("✓"))
		fmt.Printf("   Drive:  %s\n", ui.RenderAccent(profile.DriveID))
		fmt.Printf("   Folder: %s\n", profile.SyncFolderPath)
		fmt.Printf("   Wallet: %s\n", ui.RenderSubtle(w.PublicKey))
		fmt.Printf("\nFiles under %s will be published unencrypted.\n", filepath.Join(profile.SyncFolderPath, "Public"))
		fmt.Printf("Run '%s' to start syncing.\n", ui.RenderAccent("permadrive sync"))
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupWalletFile, "wallet-file", "", "import an existing wallet instead of generating one")
}

// loadOrGenerateWallet imports the wallet named by --wallet-file, or mints
// a new one and writes it next to the state database.
func loadOrGenerateWallet() (*wallet.Wallet, error) {
	if setupWalletFile != "" {
		return wallet.Load(setupWalletFile)
	}

	w, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(filepath.Dir(cfg.DatabasePath), "wallet.json")
	if err := w.Save(path); err != nil {
		return nil, err
	}
	return w, nil
}

func nonEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s must not be empty", field)
		}
		return nil
	}
}
