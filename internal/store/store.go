// Package store provides the durable state store for the permadrive sync
// engine: an embedded SQLite database holding the Profile, Sync, Queue and
// Completed tables.
//
// The store exclusively owns all four tables. Every other component reads
// and mutates them only through the accessors here, never via ad hoc
// queries, so that status-field transitions stay centralized.
//
// Every mutating accessor is a single atomic statement. There are no
// multi-statement transactions: each accessor touches exactly one logical
// row, and writes that need read-then-write semantics use REPLACE/UPSERT
// keyed on the table's unique columns so benign races stay idempotent.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotInitialized is returned by every accessor invoked before Open
// succeeded or after Close. Fatal to the calling operation, not the process.
var ErrNotInitialized = errors.New("store: not initialized, call Open first")

// ErrNotFound is returned by single-row getters when the expected row is
// absent. Callers usually treat it as a normal branch outcome.
var ErrNotFound = errors.New("store: record not found")

// Store wraps the shared SQLite connection. One Store instance is shared
// process-wide; concurrent readers and writers interleave safely under WAL.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates the database at path if absent, initializes the schema, and
// returns the shared connection. The schema creation is idempotent, so
// opening a database from a prior run preserves its contents.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL mode keeps watcher classification reads from blocking behind
	// uploader/poller writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ready guards every accessor against use before Open / after Close.
func (s *Store) ready() error {
	if s == nil || s.conn == nil {
		return ErrNotInitialized
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS Profile (
		id INTEGER NOT NULL PRIMARY KEY,
		owner TEXT NOT NULL UNIQUE,
		driveId TEXT NOT NULL UNIQUE,
		email TEXT,
		dataProtectionKey TEXT,
		walletPrivateKey TEXT,
		walletPublicKey TEXT,
		syncSchedule TEXT,
		syncFolderPath TEXT
	);

	CREATE TABLE IF NOT EXISTS Sync (
		id INTEGER NOT NULL PRIMARY KEY,
		metaDataTxId TEXT,
		dataTxId TEXT,
		appName TEXT,
		appVersion TEXT,
		unixTime INTEGER,
		contentType TEXT,
		entityType TEXT,
		driveId TEXT,
		parentFolderId TEXT,
		fileId TEXT,
		filePath TEXT,
		drivePath TEXT,
		fileName TEXT,
		fileHash TEXT,
		fileSize INTEGER DEFAULT 0,
		fileModifiedDate INTEGER DEFAULT 0,
		fileVersion INTEGER DEFAULT 0,
		permawebLink TEXT,
		fileDataSyncStatus INTEGER DEFAULT 0,
		fileMetaDataSyncStatus INTEGER DEFAULT 0,
		isPublic INTEGER DEFAULT 0,
		isLocal INTEGER DEFAULT 1
	);

	-- One row per (path, content) version. REPLACE writes keyed here keep
	-- a re-edit back to an old hash from duplicating a stale version row.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_path_hash
	    ON Sync(filePath, fileHash);

	CREATE INDEX IF NOT EXISTS idx_sync_status
	    ON Sync(fileDataSyncStatus, fileMetaDataSyncStatus);
	CREATE INDEX IF NOT EXISTS idx_sync_hash_mtime
	    ON Sync(fileHash, fileModifiedDate);
	CREATE INDEX IF NOT EXISTS idx_sync_meta_tx ON Sync(metaDataTxId);

	CREATE TABLE IF NOT EXISTS Queue (
		id INTEGER NOT NULL PRIMARY KEY,
		txId TEXT DEFAULT '',
		owner TEXT,
		filePath TEXT NOT NULL UNIQUE,
		fileName TEXT,
		fileHash TEXT,
		fileSize INTEGER DEFAULT 0,
		syncStatus INTEGER DEFAULT 0,
		ignored INTEGER DEFAULT 0,
		isPublic INTEGER DEFAULT 0,
		fileModifiedDate INTEGER DEFAULT 0,
		drivePath TEXT,
		fileVersion INTEGER DEFAULT 0,
		keywords TEXT,
		permawebLink TEXT,
		prevTxId TEXT,
		blockHash TEXT
	);

	CREATE TABLE IF NOT EXISTS Completed (
		id INTEGER NOT NULL PRIMARY KEY,
		txId TEXT NOT NULL UNIQUE,
		isLocal INTEGER DEFAULT 0,
		fileName TEXT,
		fileHash TEXT,
		owner TEXT,
		permawebLink TEXT,
		isPublic INTEGER DEFAULT 0,
		fileModifiedDate INTEGER DEFAULT 0,
		drivePath TEXT,
		fileVersion INTEGER DEFAULT 0,
		ignored INTEGER DEFAULT 0,
		keywords TEXT,
		prevTxId TEXT,
		blockHash TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_completed_name ON Completed(fileName);
	CREATE INDEX IF NOT EXISTS idx_completed_local ON Completed(isLocal, ignored);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
