// Package cryptox provides content hashing and symmetric encryption for the
// sync engine: SHA-256 checksums used as file identity keys, AES-256-GCM
// encryption of file bytes and metadata tags, and argon2id key derivation
// from the user's data-protection passphrase salted with wallet material.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
)

// EncSuffix is the conventional extension of an encrypted sibling file.
// The watcher skips paths carrying it and the downloader strips it after
// decryption.
const EncSuffix = ".enc"

const nonceSize = 12

// ErrImplausibleCiphertext signals that encryption produced output no larger
// than its plaintext, which a correct AES-GCM encryption never does. Treated
// as a corruption signal: callers retry once, then fail the file.
var ErrImplausibleCiphertext = errors.New("cryptox: ciphertext not larger than plaintext")

// ChecksumFile computes the SHA-256 digest of a file's full contents,
// hex encoded. This is the primary identity key for dedup, rename and move
// detection, so a cheap hash is never acceptable here.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Checksum computes the SHA-256 digest of a byte slice, hex encoded.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DeriveKey derives the 32-byte AES key from the data-protection passphrase
// and wallet-derived salt material. Deterministic: the same inputs always
// produce the same key, so remote content stays decryptable across sessions.
func DeriveKey(passphrase, keyMaterial []byte) []byte {
	return argon2.IDKey(passphrase, keyMaterial, 1, 64*1024, 4, 32)
}

// EncryptFile encrypts the file at path with AES-256-GCM and writes the
// result to a sibling file with the conventional suffix, returning the
// sibling's path. The output layout is nonce followed by ciphertext; the
// nonce is random, so output bytes differ between runs, but decryption is
// always lossless.
//
// Output that is not strictly larger than the plaintext is treated as a
// corruption signal and returns ErrImplausibleCiphertext.
func EncryptFile(path string, key []byte) (string, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	sealed, err := seal(plaintext, key)
	if err != nil {
		return "", err
	}
	if len(sealed) <= len(plaintext) {
		return "", ErrImplausibleCiphertext
	}

	encPath := path + EncSuffix
	if err := os.WriteFile(encPath, sealed, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", encPath, err)
	}
	return encPath, nil
}

// DecryptFile decrypts an encrypted sibling file and writes the plaintext
// to the path with the suffix stripped, returning that path.
func DecryptFile(encPath string, key []byte) (string, error) {
	sealed, err := os.ReadFile(encPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", encPath, err)
	}

	plaintext, err := open(sealed, key)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s: %w", encPath, err)
	}

	path := strings.TrimSuffix(encPath, EncSuffix)
	if err := os.WriteFile(path, plaintext, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// DecryptBytes decrypts sealed bytes produced by EncryptFile/EncryptBytes.
func DecryptBytes(sealed, key []byte) ([]byte, error) {
	return open(sealed, key)
}

// EncryptBytes seals a byte slice with the same nonce-prefixed layout as
// EncryptFile.
func EncryptBytes(plaintext, key []byte) ([]byte, error) {
	return seal(plaintext, key)
}

// TagEnvelope is the wire form of an encrypted metadata value: both fields
// base64 encoded. The presence of the iv field is how the download path
// recognizes private records.
type TagEnvelope struct {
	IV            string `json:"iv"`
	EncryptedText string `json:"encryptedText"`
}

// EncryptTag seals a small metadata value (a JSON blob of file attributes)
// into an envelope.
func EncryptTag(value, key []byte) (*TagEnvelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, value, nil)
	return &TagEnvelope{
		IV:            base64.StdEncoding.EncodeToString(nonce),
		EncryptedText: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// DecryptTag opens an envelope back into the original metadata value.
func DecryptTag(env *TagEnvelope, key []byte) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("failed to decode iv: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	value, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tag: %w", err)
	}
	return value, nil
}

// IsEncryptedPayload reports whether raw JSON bytes carry the envelope's
// encryption marker.
func IsEncryptedPayload(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, ok := probe["iv"]
	return ok
}

func seal(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return append(nonce, aesgcm.Seal(nil, nonce, plaintext, nil)...), nil
}

func open(sealed, key []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, errors.New("cryptox: sealed data too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aesgcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
}
