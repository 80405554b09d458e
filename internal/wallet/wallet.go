// Package wallet handles the local wallet keypair and the immutable session
// value the engine components consume. Wallet cryptography stays opaque to
// the core: the engine only needs a stable owner identity and the key
// material that salts content encryption.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// Wallet is one keypair, as stored in a wallet JSON file.
type Wallet struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// Generate creates a new wallet keypair.
func Generate() (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate wallet keypair: %w", err)
	}
	return &Wallet{
		PublicKey:  base64.RawURLEncoding.EncodeToString(pub),
		PrivateKey: base64.RawURLEncoding.EncodeToString(priv),
	}, nil
}

// Load reads a wallet JSON file.
func Load(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file %s: %w", path, err)
	}
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse wallet file %s: %w", path, err)
	}
	if w.PublicKey == "" || w.PrivateKey == "" {
		return nil, fmt.Errorf("wallet file %s is missing keys", path)
	}
	return &w, nil
}

// Save writes the wallet to a JSON file, readable by the owner only.
func (w *Wallet) Save(path string) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write wallet file %s: %w", path, err)
	}
	return nil
}

// Session is the immutable per-sweep identity value supplied to the engine
// components: who owns the drive, where it syncs, and the key material for
// content encryption.
type Session struct {
	Owner          string
	OwnerPublicKey string
	DriveID        string
	SyncFolderPath string
	ContentKey     []byte // derived AES key for private content
}
