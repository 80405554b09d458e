package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// testStore opens a store against a temp database.
func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "permadrive.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(path, hash string) *SyncRecord {
	return &SyncRecord{
		AppName:        "PermaDrive",
		AppVersion:     "1.0.0",
		UnixTime:       1700000000,
		ContentType:    "text/plain",
		EntityType:     EntityFile,
		DriveID:        "drive-1",
		ParentFolderID: "folder-1",
		FileID:         "file-" + hash,
		FilePath:       path,
		DrivePath:      "/docs/",
		FileName:       filepath.Base(path),
		FileHash:       hash,
		FileSize:       100,
		ModifiedTime:   1700000000000,
		FileVersion:    0,
		DataStatus:     StatusNeedsUpload,
		MetaStatus:     StatusNeedsUpload,
		IsLocal:        true,
	}
}

// TestOpen_Idempotent tests that reopening an existing database preserves data.
func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permadrive.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.AddSyncRecord(testRecord("/sync/a.txt", "h1")); err != nil {
		t.Fatalf("AddSyncRecord() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	rec, err := s2.GetSyncByPathAndHash(ctx, "/sync/a.txt", "h1")
	if err != nil {
		t.Fatalf("GetSyncByPathAndHash() after reopen failed: %v", err)
	}
	if rec.FileName != "a.txt" {
		t.Errorf("fileName = %q, want %q", rec.FileName, "a.txt")
	}
}

// TestAccessors_NotInitialized tests that accessors fail after Close.
func TestAccessors_NotInitialized(t *testing.T) {
	s := testStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	ctx := context.Background()
	if _, err := s.GetProfile(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("GetProfile() error = %v, want ErrNotInitialized", err)
	}
	if err := s.AddSyncRecord(testRecord("/sync/a.txt", "h1")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("AddSyncRecord() error = %v, want ErrNotInitialized", err)
	}
	if err := s.RemoveQueueEntry(ctx, "/sync/a.txt"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("RemoveQueueEntry() error = %v, want ErrNotInitialized", err)
	}
}

// TestProfile_RoundTrip tests saving and reloading the profile.
func TestProfile_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetProfile() on empty store error = %v, want ErrNotFound", err)
	}

	p := &Profile{
		Owner:             "alice",
		DriveID:           "drive-1",
		Email:             "alice@example.com",
		DataProtectionKey: "salt",
		WalletPrivateKey:  "priv",
		WalletPublicKey:   "pub",
		SyncSchedule:      "1m",
		SyncFolderPath:    "/sync",
	}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile() failed: %v", err)
	}

	got, err := s.GetProfile(ctx)
	if err != nil {
		t.Fatalf("GetProfile() failed: %v", err)
	}
	if got.Owner != "alice" || got.DriveID != "drive-1" || got.SyncFolderPath != "/sync" {
		t.Errorf("GetProfile() = %+v, want saved values", got)
	}

	byKey, err := s.GetProfileByPublicKey(ctx, "pub")
	if err != nil {
		t.Fatalf("GetProfileByPublicKey() failed: %v", err)
	}
	if byKey.Owner != "alice" {
		t.Errorf("owner = %q, want alice", byKey.Owner)
	}
}

// TestSyncLookups tests the three classifier lookup accessors.
func TestSyncLookups(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := testRecord("/sync/docs/a.txt", "h1")
	if err := s.AddSyncRecord(rec); err != nil {
		t.Fatalf("AddSyncRecord() failed: %v", err)
	}

	// Exact match.
	got, err := s.GetSyncByPathAndHash(ctx, "/sync/docs/a.txt", "h1")
	if err != nil {
		t.Fatalf("GetSyncByPathAndHash() failed: %v", err)
	}
	if got.FileHash != "h1" {
		t.Errorf("fileHash = %q, want h1", got.FileHash)
	}

	// Rename lookup: hash + mtime + drive path.
	got, err = s.GetSyncByHashMtimeAndDrivePath(ctx, "h1", 1700000000000, "/docs/")
	if err != nil {
		t.Fatalf("GetSyncByHashMtimeAndDrivePath() failed: %v", err)
	}
	if got.FilePath != "/sync/docs/a.txt" {
		t.Errorf("filePath = %q", got.FilePath)
	}

	// Move lookup: hash + mtime + name.
	got, err = s.GetSyncByHashMtimeAndName(ctx, "h1", 1700000000000, "a.txt")
	if err != nil {
		t.Fatalf("GetSyncByHashMtimeAndName() failed: %v", err)
	}
	if got.FileName != "a.txt" {
		t.Errorf("fileName = %q", got.FileName)
	}

	// Misses map to ErrNotFound.
	if _, err := s.GetSyncByPathAndHash(ctx, "/sync/docs/a.txt", "h2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("miss error = %v, want ErrNotFound", err)
	}
}

// TestGetLatestSyncByPath tests version-descending lookup.
func TestGetLatestSyncByPath(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v0 := testRecord("/sync/a.txt", "h1")
	if err := s.AddSyncRecord(v0); err != nil {
		t.Fatalf("AddSyncRecord(v0) failed: %v", err)
	}
	v1 := testRecord("/sync/a.txt", "h2")
	v1.FileVersion = 1
	if err := s.AddSyncRecord(v1); err != nil {
		t.Fatalf("AddSyncRecord(v1) failed: %v", err)
	}

	got, err := s.GetLatestSyncByPath(ctx, "/sync/a.txt")
	if err != nil {
		t.Fatalf("GetLatestSyncByPath() failed: %v", err)
	}
	if got.FileVersion != 1 || got.FileHash != "h2" {
		t.Errorf("latest = v%d hash %q, want v1 h2", got.FileVersion, got.FileHash)
	}
}

// TestAddSyncRecord_ReplaceOnPathHash tests that re-adding an identical
// (path, hash) pair supersedes the stale row instead of duplicating it.
func TestAddSyncRecord_ReplaceOnPathHash(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := testRecord("/sync/a.txt", "h1")
	if err := s.AddSyncRecord(rec); err != nil {
		t.Fatalf("AddSyncRecord() failed: %v", err)
	}
	rec.FileVersion = 2
	if err := s.AddSyncRecord(rec); err != nil {
		t.Fatalf("second AddSyncRecord() failed: %v", err)
	}

	got, err := s.GetLatestSyncByPath(ctx, "/sync/a.txt")
	if err != nil {
		t.Fatalf("GetLatestSyncByPath() failed: %v", err)
	}
	if got.FileVersion != 2 {
		t.Errorf("fileVersion = %d, want 2", got.FileVersion)
	}

	count, err := s.CountSyncByStatus(ctx, StatusNeedsUpload)
	if err != nil {
		t.Fatalf("CountSyncByStatus() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("record count = %d, want 1 (replaced, not duplicated)", count)
	}
}

// TestSyncStatusTransitions tests the uploader-owned status writes.
func TestSyncStatusTransitions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.AddSyncRecord(testRecord("/sync/a.txt", "h1")); err != nil {
		t.Fatalf("AddSyncRecord() failed: %v", err)
	}
	rec, err := s.GetSyncByPathAndHash(ctx, "/sync/a.txt", "h1")
	if err != nil {
		t.Fatalf("GetSyncByPathAndHash() failed: %v", err)
	}

	if err := s.UpdateSyncDataTx(ctx, rec.ID, StatusSubmitted, "tx-data"); err != nil {
		t.Fatalf("UpdateSyncDataTx() failed: %v", err)
	}
	if err := s.UpdateSyncMetaTx(ctx, rec.ID, StatusSubmitted, "tx-meta"); err != nil {
		t.Fatalf("UpdateSyncMetaTx() failed: %v", err)
	}

	got, err := s.GetSyncByMetaTx(ctx, "tx-meta")
	if err != nil {
		t.Fatalf("GetSyncByMetaTx() failed: %v", err)
	}
	if got.DataStatus != StatusSubmitted || got.MetaStatus != StatusSubmitted {
		t.Errorf("status = %v/%v, want submitted/submitted", got.DataStatus, got.MetaStatus)
	}
	if got.DataTxID != "tx-data" {
		t.Errorf("dataTxId = %q, want tx-data", got.DataTxID)
	}

	pending, err := s.GetFilesToUpload(ctx)
	if err != nil {
		t.Fatalf("GetFilesToUpload() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after submit = %d, want 0", len(pending))
	}
}

// TestQueue_RoundTrip tests queue insert, lookup and removal.
func TestQueue_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := &QueueEntry{
		TxID:         "tx-1",
		Owner:        "alice",
		FilePath:     "/sync/a.txt",
		FileName:     "a.txt",
		FileHash:     "h1",
		FileSize:     100,
		SyncStatus:   StatusSubmitted,
		ModifiedTime: 1700000000000,
		DrivePath:    "/",
		FileVersion:  0,
	}
	if err := s.AddQueueEntry(ctx, entry); err != nil {
		t.Fatalf("AddQueueEntry() failed: %v", err)
	}

	submitted, err := s.GetSubmittedQueueEntries(ctx)
	if err != nil {
		t.Fatalf("GetSubmittedQueueEntries() failed: %v", err)
	}
	if len(submitted) != 1 || submitted[0].TxID != "tx-1" {
		t.Fatalf("submitted = %+v, want one entry with tx-1", submitted)
	}
	if submitted[0].SyncStatus != StatusSubmitted {
		t.Errorf("syncStatus = %v, want submitted", submitted[0].SyncStatus)
	}

	// Unsubmitted entries (empty txId, status zero) are excluded.
	if err := s.AddQueueEntry(ctx, &QueueEntry{FilePath: "/sync/b.txt", FileName: "b.txt"}); err != nil {
		t.Fatalf("AddQueueEntry() failed: %v", err)
	}
	submitted, err = s.GetSubmittedQueueEntries(ctx)
	if err != nil {
		t.Fatalf("GetSubmittedQueueEntries() failed: %v", err)
	}
	if len(submitted) != 1 {
		t.Errorf("submitted = %d entries, want 1", len(submitted))
	}

	if err := s.RemoveQueueEntry(ctx, "/sync/a.txt"); err != nil {
		t.Fatalf("RemoveQueueEntry() failed: %v", err)
	}
	if _, err := s.GetQueueEntryByPath(ctx, "/sync/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup after remove error = %v, want ErrNotFound", err)
	}
	// Removing again is a no-op.
	if err := s.RemoveQueueEntry(ctx, "/sync/a.txt"); err != nil {
		t.Errorf("second RemoveQueueEntry() failed: %v", err)
	}
}

// TestCompleted_Flags tests the ignore and isLocal flag transitions.
func TestCompleted_Flags(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := &CompletedRecord{
		TxID:         "tx-1",
		FileName:     "a.txt",
		FileHash:     "h1",
		Owner:        "alice",
		PermawebLink: "https://gateway.example/tx-1",
		DrivePath:    "/",
	}
	if err := s.AddCompletedRecord(ctx, rec); err != nil {
		t.Fatalf("AddCompletedRecord() failed: %v", err)
	}

	notLocal, err := s.GetCompletedNotLocal(ctx)
	if err != nil {
		t.Fatalf("GetCompletedNotLocal() failed: %v", err)
	}
	if len(notLocal) != 1 {
		t.Fatalf("notLocal = %d, want 1", len(notLocal))
	}

	if err := s.SetCompletedLocal(ctx, "tx-1"); err != nil {
		t.Fatalf("SetCompletedLocal() failed: %v", err)
	}
	notLocal, err = s.GetCompletedNotLocal(ctx)
	if err != nil {
		t.Fatalf("GetCompletedNotLocal() failed: %v", err)
	}
	if len(notLocal) != 0 {
		t.Errorf("notLocal after SetCompletedLocal = %d, want 0", len(notLocal))
	}

	if err := s.SetCompletedIgnore(ctx, "tx-1"); err != nil {
		t.Fatalf("SetCompletedIgnore() failed: %v", err)
	}
	forDownload, err := s.GetCompletedForDownload(ctx)
	if err != nil {
		t.Fatalf("GetCompletedForDownload() failed: %v", err)
	}
	if len(forDownload) != 0 {
		t.Errorf("forDownload after ignore = %d, want 0", len(forDownload))
	}

	byName, err := s.GetCompletedByName(ctx, "a.txt")
	if err != nil {
		t.Fatalf("GetCompletedByName() failed: %v", err)
	}
	if !byName.Ignore || !byName.IsLocal {
		t.Errorf("flags = ignore=%v isLocal=%v, want true/true", byName.Ignore, byName.IsLocal)
	}
}
