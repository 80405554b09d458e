package store

import (
	"context"
	"database/sql"
	"fmt"
)

const queueColumns = `id, txId, owner, filePath, fileName, fileHash, fileSize,
	syncStatus, ignored, isPublic, fileModifiedDate, drivePath, fileVersion,
	keywords, permawebLink, prevTxId, blockHash`

// AddQueueEntry records an in-flight submission, replacing any stale entry
// for the same local path.
func (s *Store) AddQueueEntry(ctx context.Context, entry *QueueEntry) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := `
	REPLACE INTO Queue (
		txId, owner, filePath, fileName, fileHash, fileSize, syncStatus,
		ignored, isPublic, fileModifiedDate, drivePath, fileVersion,
		keywords, permawebLink, prevTxId, blockHash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		entry.TxID,
		entry.Owner,
		entry.FilePath,
		entry.FileName,
		entry.FileHash,
		entry.FileSize,
		int(entry.SyncStatus),
		boolToInt(entry.Ignore),
		boolToInt(entry.IsPublic),
		entry.ModifiedTime,
		entry.DrivePath,
		entry.FileVersion,
		entry.Keywords,
		entry.PermawebLink,
		entry.PrevTxID,
		entry.BlockHash,
	)
	if err != nil {
		return fmt.Errorf("failed to add queue entry for %s: %w", entry.FilePath, err)
	}
	return nil
}

// RemoveQueueEntry deletes the entry for a local path. Idempotent: removing
// an already-resolved entry is a no-op.
func (s *Store) RemoveQueueEntry(ctx context.Context, filePath string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM Queue WHERE filePath = ?`, filePath); err != nil {
		return fmt.Errorf("failed to remove queue entry for %s: %w", filePath, err)
	}
	return nil
}

// GetQueueEntryByPath returns the in-flight entry for a local path.
func (s *Store) GetQueueEntryByPath(ctx context.Context, filePath string) (*QueueEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + queueColumns + ` FROM Queue WHERE filePath = ?`
	return scanQueueEntry(s.conn.QueryRowContext(ctx, query, filePath))
}

// GetSubmittedQueueEntries returns every entry whose transaction has been
// submitted, the working set for the confirmation poller.
func (s *Store) GetSubmittedQueueEntries(ctx context.Context) ([]*QueueEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + queueColumns + ` FROM Queue
		WHERE syncStatus = ? AND txId != '' ORDER BY id ASC`
	rows, err := s.conn.QueryContext(ctx, query, int(StatusSubmitted))
	if err != nil {
		return nil, fmt.Errorf("failed to query submitted queue entries: %w", err)
	}
	defer rows.Close()
	return scanQueueEntries(rows)
}

// CountQueue returns the number of in-flight entries.
func (s *Store) CountQueue(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM Queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

func scanQueueEntry(row *sql.Row) (*QueueEntry, error) {
	var e QueueEntry
	var syncStatus, ignored, isPublic int
	err := row.Scan(
		&e.ID,
		&e.TxID,
		&e.Owner,
		&e.FilePath,
		&e.FileName,
		&e.FileHash,
		&e.FileSize,
		&syncStatus,
		&ignored,
		&isPublic,
		&e.ModifiedTime,
		&e.DrivePath,
		&e.FileVersion,
		&e.Keywords,
		&e.PermawebLink,
		&e.PrevTxID,
		&e.BlockHash,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	e.SyncStatus = SyncStatus(syncStatus)
	e.Ignore = ignored != 0
	e.IsPublic = isPublic != 0
	return &e, nil
}

func scanQueueEntries(rows *sql.Rows) ([]*QueueEntry, error) {
	var entries []*QueueEntry
	for rows.Next() {
		var e QueueEntry
		var syncStatus, ignored, isPublic int
		err := rows.Scan(
			&e.ID,
			&e.TxID,
			&e.Owner,
			&e.FilePath,
			&e.FileName,
			&e.FileHash,
			&e.FileSize,
			&syncStatus,
			&ignored,
			&isPublic,
			&e.ModifiedTime,
			&e.DrivePath,
			&e.FileVersion,
			&e.Keywords,
			&e.PermawebLink,
			&e.PrevTxID,
			&e.BlockHash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.SyncStatus = SyncStatus(syncStatus)
		e.Ignore = ignored != 0
		e.IsPublic = isPublic != 0
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}
	return entries, nil
}
