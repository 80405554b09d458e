package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/permadrive/permadrive/internal/cryptox"
	"github.com/permadrive/permadrive/internal/store"
	"github.com/permadrive/permadrive/internal/wallet"
)

// mustOpenStore opens the state store or exits.
func mustOpenStore() *store.Store {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state store: %v\n", err)
		os.Exit(1)
	}
	return st
}

// mustProfile loads the profile created by setup, or exits with a hint.
func mustProfile(st *store.Store) *store.Profile {
	profile, err := st.GetProfile(context.Background())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "No profile found. Run 'permadrive setup' first.\n")
		} else {
			fmt.Fprintf(os.Stderr, "Error loading profile: %v\n", err)
		}
		os.Exit(1)
	}
	return profile
}

// mustSession builds a session from the profile, prompting for the drive
// passphrase so private content can be sealed and unsealed.
func mustSession(profile *store.Profile) *wallet.Session {
	salt, err := base64.StdEncoding.DecodeString(profile.DataProtectionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding key material: %v\n", err)
		os.Exit(1)
	}

	passphrase, err := promptPassphrase("Drive passphrase")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading passphrase: %v\n", err)
		os.Exit(1)
	}

	return &wallet.Session{
		Owner:          profile.Owner,
		OwnerPublicKey: profile.WalletPublicKey,
		DriveID:        profile.DriveID,
		SyncFolderPath: profile.SyncFolderPath,
		ContentKey:     cryptox.DeriveKey([]byte(passphrase), salt),
	}
}

// promptPassphrase reads a passphrase without echo. Outside a terminal it
// falls back to the PERMADRIVE_PASSPHRASE environment variable.
func promptPassphrase(title string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if pass := os.Getenv("PERMADRIVE_PASSPHRASE"); pass != "" {
			return pass, nil
		}
		return "", errors.New("stdin is not a terminal and PERMADRIVE_PASSPHRASE is unset")
	}

	var passphrase string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&passphrase).
		Run()
	if err != nil {
		return "", err
	}
	if passphrase == "" {
		return "", errors.New("empty passphrase")
	}
	return passphrase, nil
}
