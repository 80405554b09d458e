package store

import (
	"context"
	"database/sql"
	"fmt"
)

const profileColumns = `id, owner, driveId, email, dataProtectionKey,
	walletPrivateKey, walletPublicKey, syncSchedule, syncFolderPath`

// SaveProfile creates or replaces the wallet identity, keyed by the unique
// owner nickname. Called once during onboarding.
func (s *Store) SaveProfile(ctx context.Context, p *Profile) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := `
	REPLACE INTO Profile (
		owner, driveId, email, dataProtectionKey, walletPrivateKey,
		walletPublicKey, syncSchedule, syncFolderPath
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		p.Owner,
		p.DriveID,
		p.Email,
		p.DataProtectionKey,
		p.WalletPrivateKey,
		p.WalletPublicKey,
		p.SyncSchedule,
		p.SyncFolderPath,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile for %s: %w", p.Owner, err)
	}
	return nil
}

// GetProfile returns the active profile. Returns ErrNotFound when
// onboarding has not run yet.
func (s *Store) GetProfile(ctx context.Context) (*Profile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + profileColumns + ` FROM Profile ORDER BY id ASC LIMIT 1`
	return scanProfile(s.conn.QueryRowContext(ctx, query))
}

// GetProfileByPublicKey returns the profile for a wallet public key.
func (s *Store) GetProfileByPublicKey(ctx context.Context, publicKey string) (*Profile, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + profileColumns + ` FROM Profile WHERE walletPublicKey = ?`
	return scanProfile(s.conn.QueryRowContext(ctx, query, publicKey))
}

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.Owner,
		&p.DriveID,
		&p.Email,
		&p.DataProtectionKey,
		&p.WalletPrivateKey,
		&p.WalletPublicKey,
		&p.SyncSchedule,
		&p.SyncFolderPath,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	return &p, nil
}
