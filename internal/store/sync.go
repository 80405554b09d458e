package store

import (
	"context"
	"database/sql"
	"fmt"
)

const syncColumns = `id, metaDataTxId, dataTxId, appName, appVersion, unixTime,
	contentType, entityType, driveId, parentFolderId, fileId, filePath,
	drivePath, fileName, fileHash, fileSize, fileModifiedDate, fileVersion,
	permawebLink, fileDataSyncStatus, fileMetaDataSyncStatus, isPublic, isLocal`

// AddSyncRecord inserts a sync record, replacing any existing row with the
// same (filePath, fileHash). REPLACE semantics make the write idempotent and
// remove a stale version row superseded by an exact match.
func (s *Store) AddSyncRecord(rec *SyncRecord) error {
	return s.AddSyncRecordContext(context.Background(), rec)
}

// AddSyncRecordContext inserts a sync record with context support.
func (s *Store) AddSyncRecordContext(ctx context.Context, rec *SyncRecord) error {
	if err := s.ready(); err != nil {
		return err
	}

	query := `
	REPLACE INTO Sync (
		metaDataTxId, dataTxId, appName, appVersion, unixTime, contentType,
		entityType, driveId, parentFolderId, fileId, filePath, drivePath,
		fileName, fileHash, fileSize, fileModifiedDate, fileVersion,
		permawebLink, fileDataSyncStatus, fileMetaDataSyncStatus,
		isPublic, isLocal
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		rec.MetaTxID,
		rec.DataTxID,
		rec.AppName,
		rec.AppVersion,
		rec.UnixTime,
		rec.ContentType,
		rec.EntityType,
		rec.DriveID,
		rec.ParentFolderID,
		rec.FileID,
		rec.FilePath,
		rec.DrivePath,
		rec.FileName,
		rec.FileHash,
		rec.FileSize,
		rec.ModifiedTime,
		rec.FileVersion,
		rec.PermawebLink,
		int(rec.DataStatus),
		int(rec.MetaStatus),
		boolToInt(rec.IsPublic),
		boolToInt(rec.IsLocal),
	)
	if err != nil {
		return fmt.Errorf("failed to add sync record for %s: %w", rec.FilePath, err)
	}
	return nil
}

// GetSyncByPathAndHash finds the record for an exact (path, content) match.
// Returns ErrNotFound when the file version is not tracked.
func (s *Store) GetSyncByPathAndHash(ctx context.Context, filePath, fileHash string) (*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync WHERE filePath = ? AND fileHash = ?`
	return scanSyncRecord(s.conn.QueryRowContext(ctx, query, filePath, fileHash))
}

// GetSyncByHashMtimeAndDrivePath implements rename detection: same content,
// same mtime, same logical folder, regardless of name.
func (s *Store) GetSyncByHashMtimeAndDrivePath(ctx context.Context, fileHash string, modifiedTime int64, drivePath string) (*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync
		WHERE fileHash = ? AND fileModifiedDate = ? AND drivePath = ?`
	return scanSyncRecord(s.conn.QueryRowContext(ctx, query, fileHash, modifiedTime, drivePath))
}

// GetSyncByHashMtimeAndName implements move detection: same content and
// name, different parent folder.
func (s *Store) GetSyncByHashMtimeAndName(ctx context.Context, fileHash string, modifiedTime int64, fileName string) (*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync
		WHERE fileHash = ? AND fileModifiedDate = ? AND fileName = ?`
	return scanSyncRecord(s.conn.QueryRowContext(ctx, query, fileHash, modifiedTime, fileName))
}

// GetLatestSyncByPath returns the highest-version record for a local path,
// used by the classifier to bump versions on edits.
func (s *Store) GetLatestSyncByPath(ctx context.Context, filePath string) (*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync
		WHERE filePath = ? ORDER BY fileVersion DESC LIMIT 1`
	return scanSyncRecord(s.conn.QueryRowContext(ctx, query, filePath))
}

// GetFolderByPath returns the folder record at a local path. The fileId of
// the result is what child records reference as parentFolderId.
func (s *Store) GetFolderByPath(ctx context.Context, folderPath string) (*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync
		WHERE filePath = ? AND entityType = ?`
	return scanSyncRecord(s.conn.QueryRowContext(ctx, query, folderPath, EntityFolder))
}

// GetSyncByMetaTx finds a record by its metadata transaction id.
func (s *Store) GetSyncByMetaTx(ctx context.Context, metaTxID string) (*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync WHERE metaDataTxId = ?`
	return scanSyncRecord(s.conn.QueryRowContext(ctx, query, metaTxID))
}

// GetFilesToUpload returns every record with a pending data or metadata
// upload, the working set for estimation and submission.
func (s *Store) GetFilesToUpload(ctx context.Context) ([]*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync
		WHERE fileDataSyncStatus = ? OR fileMetaDataSyncStatus = ?
		ORDER BY id ASC`
	rows, err := s.conn.QueryContext(ctx, query, int(StatusNeedsUpload), int(StatusNeedsUpload))
	if err != nil {
		return nil, fmt.Errorf("failed to query files to upload: %w", err)
	}
	defer rows.Close()
	return scanSyncRecords(rows)
}

// GetSubmittedFiles returns records with a submitted-but-unconfirmed half.
func (s *Store) GetSubmittedFiles(ctx context.Context) ([]*SyncRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `SELECT ` + syncColumns + ` FROM Sync
		WHERE fileDataSyncStatus = ? OR fileMetaDataSyncStatus = ?
		ORDER BY id ASC`
	rows, err := s.conn.QueryContext(ctx, query, int(StatusSubmitted), int(StatusSubmitted))
	if err != nil {
		return nil, fmt.Errorf("failed to query submitted files: %w", err)
	}
	defer rows.Close()
	return scanSyncRecords(rows)
}

// UpdateSyncRename points an existing record at its new name and path after
// a rename in place. Metadata needs re-upload; data and version are kept.
func (s *Store) UpdateSyncRename(ctx context.Context, id int64, fileName, filePath string, unixTime int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	query := `UPDATE Sync SET fileName = ?, filePath = ?, unixTime = ?,
		fileMetaDataSyncStatus = ? WHERE id = ?`
	_, err := s.conn.ExecContext(ctx, query, fileName, filePath, unixTime,
		int(StatusNeedsUpload), id)
	if err != nil {
		return fmt.Errorf("failed to update sync record %d for rename: %w", id, err)
	}
	return nil
}

// UpdateSyncMove repoints an existing record at a new parent folder after a
// move. Metadata needs re-upload; data and version are kept.
func (s *Store) UpdateSyncMove(ctx context.Context, id int64, filePath, drivePath, parentFolderID string, unixTime int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	query := `UPDATE Sync SET filePath = ?, drivePath = ?, parentFolderId = ?,
		unixTime = ?, fileMetaDataSyncStatus = ? WHERE id = ?`
	_, err := s.conn.ExecContext(ctx, query, filePath, drivePath, parentFolderID,
		unixTime, int(StatusNeedsUpload), id)
	if err != nil {
		return fmt.Errorf("failed to update sync record %d for move: %w", id, err)
	}
	return nil
}

// UpdateSyncDataTx advances the data-sync status and records the data
// transaction id. Owned by the uploader.
func (s *Store) UpdateSyncDataTx(ctx context.Context, id int64, status SyncStatus, dataTxID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	query := `UPDATE Sync SET fileDataSyncStatus = ?, dataTxId = ? WHERE id = ?`
	if _, err := s.conn.ExecContext(ctx, query, int(status), dataTxID, id); err != nil {
		return fmt.Errorf("failed to update data sync status for record %d: %w", id, err)
	}
	return nil
}

// UpdateSyncMetaTx advances the metadata-sync status and records the
// metadata transaction id. Owned by the uploader.
func (s *Store) UpdateSyncMetaTx(ctx context.Context, id int64, status SyncStatus, metaTxID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	query := `UPDATE Sync SET fileMetaDataSyncStatus = ?, metaDataTxId = ? WHERE id = ?`
	if _, err := s.conn.ExecContext(ctx, query, int(status), metaTxID, id); err != nil {
		return fmt.Errorf("failed to update metadata sync status for record %d: %w", id, err)
	}
	return nil
}

// ConfirmSyncRecord marks both halves confirmed and stores the permanent
// link and transaction ids refreshed from the ledger. Owned by the
// downloader/reconciler.
func (s *Store) ConfirmSyncRecord(ctx context.Context, id int64, metaTxID, dataTxID, permawebLink, parentFolderID, fileID string, fileVersion int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	query := `UPDATE Sync SET fileDataSyncStatus = ?, fileMetaDataSyncStatus = ?,
		metaDataTxId = ?, dataTxId = ?, permawebLink = ?, parentFolderId = ?,
		fileId = ?, fileVersion = ? WHERE id = ?`
	_, err := s.conn.ExecContext(ctx, query,
		int(StatusConfirmed), int(StatusConfirmed),
		metaTxID, dataTxID, permawebLink, parentFolderID, fileID, fileVersion, id)
	if err != nil {
		return fmt.Errorf("failed to confirm sync record %d: %w", id, err)
	}
	return nil
}

// CountSyncByStatus returns how many records have either half in the given
// status, for the status summary.
func (s *Store) CountSyncByStatus(ctx context.Context, status SyncStatus) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var count int
	query := `SELECT COUNT(*) FROM Sync
		WHERE fileDataSyncStatus = ? OR fileMetaDataSyncStatus = ?`
	err := s.conn.QueryRowContext(ctx, query, int(status), int(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sync records: %w", err)
	}
	return count, nil
}

// scanSyncRecord scans a single row, mapping sql.ErrNoRows to ErrNotFound.
func scanSyncRecord(row *sql.Row) (*SyncRecord, error) {
	var rec SyncRecord
	var dataStatus, metaStatus, isPublic, isLocal int

	err := row.Scan(
		&rec.ID,
		&rec.MetaTxID,
		&rec.DataTxID,
		&rec.AppName,
		&rec.AppVersion,
		&rec.UnixTime,
		&rec.ContentType,
		&rec.EntityType,
		&rec.DriveID,
		&rec.ParentFolderID,
		&rec.FileID,
		&rec.FilePath,
		&rec.DrivePath,
		&rec.FileName,
		&rec.FileHash,
		&rec.FileSize,
		&rec.ModifiedTime,
		&rec.FileVersion,
		&rec.PermawebLink,
		&dataStatus,
		&metaStatus,
		&isPublic,
		&isLocal,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync record: %w", err)
	}

	rec.DataStatus = SyncStatus(dataStatus)
	rec.MetaStatus = SyncStatus(metaStatus)
	rec.IsPublic = isPublic != 0
	rec.IsLocal = isLocal != 0
	return &rec, nil
}

func scanSyncRecords(rows *sql.Rows) ([]*SyncRecord, error) {
	var recs []*SyncRecord
	for rows.Next() {
		var rec SyncRecord
		var dataStatus, metaStatus, isPublic, isLocal int
		err := rows.Scan(
			&rec.ID,
			&rec.MetaTxID,
			&rec.DataTxID,
			&rec.AppName,
			&rec.AppVersion,
			&rec.UnixTime,
			&rec.ContentType,
			&rec.EntityType,
			&rec.DriveID,
			&rec.ParentFolderID,
			&rec.FileID,
			&rec.FilePath,
			&rec.DrivePath,
			&rec.FileName,
			&rec.FileHash,
			&rec.FileSize,
			&rec.ModifiedTime,
			&rec.FileVersion,
			&rec.PermawebLink,
			&dataStatus,
			&metaStatus,
			&isPublic,
			&isLocal,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		rec.DataStatus = SyncStatus(dataStatus)
		rec.MetaStatus = SyncStatus(metaStatus)
		rec.IsPublic = isPublic != 0
		rec.IsLocal = isLocal != 0
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync records: %w", err)
	}
	return recs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
