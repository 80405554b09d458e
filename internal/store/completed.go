package store

import (
	"context"
	"database/sql"
	"fmt"
)

const completedColumns = `id, txId, isLocal, fileName, fileHash, owner,
	permawebLink, isPublic, fileModifiedDate, drivePath, fileVersion,
	ignored, keywords, prevTxId, blockHash`

// AddCompletedRecord records ledger finality for a transaction, replacing
// any existing row with the same transaction id so the poller and
// downloader can both import the same record idempotently.
func (s *Store) AddCompletedRecord(ctx context.Context, rec *CompletedRecord) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := `
	REPLACE INTO Completed (
		txId, isLocal, fileName, fileHash, owner, permawebLink, isPublic,
		fileModifiedDate, drivePath, fileVersion, ignored, keywords,
		prevTxId, blockHash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		rec.TxID,
		boolToInt(rec.IsLocal),
		rec.FileName,
		rec.FileHash,
		rec.Owner,
		rec.PermawebLink,
		boolToInt(rec.IsPublic),
		rec.ModifiedTime,
		rec.DrivePath,
		rec.FileVersion,
		boolToInt(rec.Ignore),
		rec.Keywords,
		rec.PrevTxID,
		rec.BlockHash,
	)
	if err != nil {
		return fmt.Errorf("failed to add completed record for tx %s: %w", rec.TxID, err)
	}
	return nil
}

// GetCompletedByTx finds a completed record by transaction id.
func (s *Store) GetCompletedByTx(ctx context.Context, txID string) (*CompletedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + completedColumns + ` FROM Completed WHERE txId = ?`
	return scanCompletedRecord(s.conn.QueryRowContext(ctx, query, txID))
}

// GetCompletedByName finds a completed record by file name, used by the
// poller to drop queue entries duplicating an already-published file.
func (s *Store) GetCompletedByName(ctx context.Context, fileName string) (*CompletedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + completedColumns + ` FROM Completed WHERE fileName = ?`
	return scanCompletedRecord(s.conn.QueryRowContext(ctx, query, fileName))
}

// GetCompletedForDownload returns every record not flagged ignore, the
// working set for the download sweep.
func (s *Store) GetCompletedForDownload(ctx context.Context) ([]*CompletedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + completedColumns + ` FROM Completed WHERE ignored = 0 ORDER BY id ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed records: %w", err)
	}
	defer rows.Close()
	return scanCompletedRecords(rows)
}

// GetCompletedNotLocal returns records known on the ledger but not yet
// materialized on disk.
func (s *Store) GetCompletedNotLocal(ctx context.Context) ([]*CompletedRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + completedColumns + ` FROM Completed
		WHERE isLocal = 0 AND ignored = 0 ORDER BY id ASC`
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query non-local completed records: %w", err)
	}
	defer rows.Close()
	return scanCompletedRecords(rows)
}

// SetCompletedLocal marks a record as materialized on disk.
func (s *Store) SetCompletedLocal(ctx context.Context, txID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, `UPDATE Completed SET isLocal = 1 WHERE txId = ?`, txID); err != nil {
		return fmt.Errorf("failed to mark completed record %s local: %w", txID, err)
	}
	return nil
}

// SetCompletedIgnore suppresses a record from future download attempts,
// the terminal outcome of an ignore-permanently conflict decision.
func (s *Store) SetCompletedIgnore(ctx context.Context, txID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, `UPDATE Completed SET ignored = 1 WHERE txId = ?`, txID); err != nil {
		return fmt.Errorf("failed to set ignore on completed record %s: %w", txID, err)
	}
	return nil
}

// CountCompleted returns the number of completed records.
func (s *Store) CountCompleted(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM Completed`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completed records: %w", err)
	}
	return count, nil
}

func scanCompletedRecord(row *sql.Row) (*CompletedRecord, error) {
	var rec CompletedRecord
	var isLocal, isPublic, ignored int
	err := row.Scan(
		&rec.ID,
		&rec.TxID,
		&isLocal,
		&rec.FileName,
		&rec.FileHash,
		&rec.Owner,
		&rec.PermawebLink,
		&isPublic,
		&rec.ModifiedTime,
		&rec.DrivePath,
		&rec.FileVersion,
		&ignored,
		&rec.Keywords,
		&rec.PrevTxID,
		&rec.BlockHash,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan completed record: %w", err)
	}
	rec.IsLocal = isLocal != 0
	rec.IsPublic = isPublic != 0
	rec.Ignore = ignored != 0
	return &rec, nil
}

func scanCompletedRecords(rows *sql.Rows) ([]*CompletedRecord, error) {
	var recs []*CompletedRecord
	for rows.Next() {
		var rec CompletedRecord
		var isLocal, isPublic, ignored int
		err := rows.Scan(
			&rec.ID,
			&rec.TxID,
			&isLocal,
			&rec.FileName,
			&rec.FileHash,
			&rec.Owner,
			&rec.PermawebLink,
			&isPublic,
			&rec.ModifiedTime,
			&rec.DrivePath,
			&rec.FileVersion,
			&ignored,
			&rec.Keywords,
			&rec.PrevTxID,
			&rec.BlockHash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completed record: %w", err)
		}
		rec.IsLocal = isLocal != 0
		rec.IsPublic = isPublic != 0
		rec.Ignore = ignored != 0
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completed records: %w", err)
	}
	return recs, nil
}
