// Package downloader pulls the drive's remote state down: it imports
// metadata transactions published from other machines and materializes
// their files locally, asking a Resolver what to do when a local file
// already occupies the target path with different content.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/permadrive/permadrive/internal/config"
	"github.com/permadrive/permadrive/internal/cryptox"
	"github.com/permadrive/permadrive/internal/ledger"
	"github.com/permadrive/permadrive/internal/store"
	"github.com/permadrive/permadrive/internal/wallet"
)

// Decision is a conflict resolution outcome for one occupied path.
type Decision int

const (
	// DecisionSkip leaves both files alone; the conflict is raised again
	// on the next sweep.
	DecisionSkip Decision = iota
	// DecisionRename moves the local file aside and downloads the remote
	// one to the contested path.
	DecisionRename
	// DecisionOverwrite replaces the local file with the remote one.
	DecisionOverwrite
	// DecisionIgnore keeps the local file and suppresses this remote
	// record permanently.
	DecisionIgnore
)

// Resolver decides what happens when a remote file lands on a path whose
// local content differs.
type Resolver interface {
	Resolve(localPath string, remote *store.CompletedRecord) (Decision, error)
}

// Downloader reconciles remote drive state into the store and onto disk.
type Downloader struct {
	store    *store.Store
	ledger   ledger.Client
	session  *wallet.Session
	cfg      *config.Config
	resolver Resolver
	logger   *log.Logger
}

// New creates a downloader. resolver may be nil, in which case every
// conflict is skipped.
func New(st *store.Store, lc ledger.Client, session *wallet.Session, cfg *config.Config, resolver Resolver, logger *log.Logger) *Downloader {
	if logger == nil {
		logger = log.New(os.Stderr, "[downloader] ", log.LstdFlags)
	}
	return &Downloader{
		store:    st,
		ledger:   lc,
		session:  session,
		cfg:      cfg,
		resolver: resolver,
		logger:   logger,
	}
}

// FetchRemoteMetadata imports every metadata transaction of the drive
// that the store has not seen yet. Records whose file already exists
// locally with matching content are confirmed in place; the rest land as
// not-local completed records for DownloadPending to materialize.
func (d *Downloader) FetchRemoteMetadata(ctx context.Context) error {
	ids, err := d.ledger.ListByOwnerAndDrive(ctx, d.session.OwnerPublicKey, d.session.DriveID)
	if err != nil {
		return fmt.Errorf("failed to list drive transactions: %w", err)
	}

	for _, txID := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := d.store.GetCompletedByTx(ctx, txID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := d.importTx(ctx, txID); err != nil {
			d.logger.Printf("error importing tx %s: %v", txID, err)
		}
	}
	return nil
}

// importTx reconciles one remote metadata transaction into the store.
func (d *Downloader) importTx(ctx context.Context, txID string) error {
	tags, err := d.ledger.Tags(ctx, txID)
	if err != nil {
		return err
	}
	body, err := d.ledger.Data(ctx, txID)
	if err != nil {
		return err
	}

	isPublic := true
	if cryptox.IsEncryptedPayload(body) {
		isPublic = false
		if len(d.session.ContentKey) == 0 {
			return errors.New("no content key in session for private record")
		}
		var env cryptox.TagEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("failed to decode metadata envelope: %w", err)
		}
		body, err = cryptox.DecryptTag(&env, d.session.ContentKey)
		if err != nil {
			return fmt.Errorf("failed to unseal metadata: %w", err)
		}
	}

	var meta ledger.EntityMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}

	entityType := ledger.FindTag(tags, ledger.TagEntityType)
	fileID := ledger.FindTag(tags, ledger.TagFileID)
	parentID := ledger.FindTag(tags, ledger.TagParentFolderID)
	localPath := d.localPath(meta.Path)
	link := d.permawebLink(meta.DataTxID)

	// A record we already track at this path with this content means the
	// upload originated here (or arrived earlier); confirm it in place.
	local, err := d.store.GetSyncByPathAndHash(ctx, localPath, d.entityHash(meta, entityType))
	isLocal := false
	switch {
	case err == nil:
		isLocal = true
		if err := d.store.ConfirmSyncRecord(ctx, local.ID,
			txID, meta.DataTxID, link, parentID, fileID, meta.FileVersion); err != nil {
			return err
		}
	case errors.Is(err, store.ErrNotFound):
		rec := &store.SyncRecord{
			MetaTxID:       txID,
			DataTxID:       meta.DataTxID,
			AppName:        ledger.FindTag(tags, ledger.TagAppName),
			AppVersion:     ledger.FindTag(tags, ledger.TagAppVersion),
			ContentType:    ledger.FindTag(tags, ledger.TagContentType),
			EntityType:     entityType,
			DriveID:        d.session.DriveID,
			ParentFolderID: parentID,
			FileID:         fileID,
			FilePath:       localPath,
			DrivePath:      d.drivePathOf(meta.Path, entityType),
			FileName:       meta.Name,
			FileHash:       d.entityHash(meta, entityType),
			FileSize:       meta.Size,
			ModifiedTime:   meta.ModifiedDate,
			FileVersion:    meta.FileVersion,
			PermawebLink:   link,
			DataStatus:     store.StatusConfirmed,
			MetaStatus:     store.StatusConfirmed,
			IsPublic:       isPublic,
			IsLocal:        false,
		}
		if err := d.store.AddSyncRecordContext(ctx, rec); err != nil {
			return err
		}
	default:
		return err
	}

	completed := &store.CompletedRecord{
		TxID:         txID,
		IsLocal:      isLocal,
		FileName:     meta.Name,
		FileHash:     d.entityHash(meta, entityType),
		Owner:        d.session.Owner,
		PermawebLink: link,
		IsPublic:     isPublic,
		ModifiedTime: meta.ModifiedDate,
		DrivePath:    d.drivePathOf(meta.Path, entityType),
		FileVersion:  meta.FileVersion,
	}
	if err := d.store.AddCompletedRecord(ctx, completed); err != nil {
		return err
	}
	if !isLocal {
		d.logger.Printf("%s discovered on the ledger (tx %s)", meta.Name, txID)
	}
	return nil
}

// DownloadPending materializes every completed record that is not on disk
// yet. Per-record failures are logged and skipped.
func (d *Downloader) DownloadPending(ctx context.Context) error {
	records, err := d.store.GetCompletedNotLocal(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending downloads: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.materialize(ctx, rec); err != nil {
			d.logger.Printf("error downloading %s: %v", rec.FileName, err)
		}
	}
	return nil
}

// materialize brings one remote record onto disk.
func (d *Downloader) materialize(ctx context.Context, rec *store.CompletedRecord) error {
	if rec.FileHash == store.FolderHashSentinel {
		// A folder's drive path is its own path, not its parent's.
		dir := filepath.Join(d.session.SyncFolderPath, filepath.FromSlash(strings.TrimPrefix(rec.DrivePath, "/")))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", dir, err)
		}
		return d.store.SetCompletedLocal(ctx, rec.TxID)
	}

	localPath := filepath.Join(d.session.SyncFolderPath, filepath.FromSlash(strings.TrimPrefix(rec.DrivePath, "/")), rec.FileName)

	if _, err := os.Stat(localPath); err == nil {
		hash, herr := cryptox.ChecksumFile(localPath)
		if herr != nil {
			return herr
		}
		if hash == rec.FileHash {
			// Same bytes already on disk.
			return d.store.SetCompletedLocal(ctx, rec.TxID)
		}
		proceed, derr := d.resolveConflict(ctx, localPath, rec)
		if derr != nil || !proceed {
			return derr
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := d.fetchFile(ctx, rec, localPath); err != nil {
		return err
	}
	d.logger.Printf("%s downloaded to %s", rec.FileName, localPath)
	return d.store.SetCompletedLocal(ctx, rec.TxID)
}

// resolveConflict applies the resolver's decision to an occupied path.
// It reports whether the download should proceed.
func (d *Downloader) resolveConflict(ctx context.Context, localPath string, rec *store.CompletedRecord) (bool, error) {
	if d.resolver == nil {
		return false, nil
	}
	decision, err := d.resolver.Resolve(localPath, rec)
	if err != nil {
		return false, err
	}

	switch decision {
	case DecisionRename:
		aside := copyName(localPath)
		if err := os.Rename(localPath, aside); err != nil {
			return false, fmt.Errorf("failed to move %s aside: %w", localPath, err)
		}
		d.logger.Printf("local %s kept as %s", localPath, aside)
		return true, nil
	case DecisionOverwrite:
		return true, nil
	case DecisionIgnore:
		return false, d.store.SetCompletedIgnore(ctx, rec.TxID)
	default:
		// Skip: ask again next sweep.
		return false, nil
	}
}

// fetchFile downloads the record's data transaction and writes it to
// localPath, decrypting private content through an encrypted sibling that
// is removed afterwards. The written bytes must hash to the record's hash.
func (d *Downloader) fetchFile(ctx context.Context, rec *store.CompletedRecord, localPath string) error {
	sync, err := d.store.GetSyncByMetaTx(ctx, rec.TxID)
	if err != nil {
		return fmt.Errorf("no sync record for tx %s: %w", rec.TxID, err)
	}
	if sync.DataTxID == "" {
		return fmt.Errorf("record %s has no data transaction", rec.TxID)
	}

	payload, err := d.ledger.Data(ctx, sync.DataTxID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}

	if rec.IsPublic {
		if err := os.WriteFile(localPath, payload, 0644); err != nil {
			return err
		}
	} else {
		if len(d.session.ContentKey) == 0 {
			return errors.New("no content key in session for private download")
		}
		encPath := localPath + cryptox.EncSuffix
		if err := os.WriteFile(encPath, payload, 0600); err != nil {
			return err
		}
		if _, err := cryptox.DecryptFile(encPath, d.session.ContentKey); err != nil {
			os.Remove(encPath)
			return err
		}
		if err := os.Remove(encPath); err != nil {
			d.logger.Printf("could not remove %s: %v", encPath, err)
		}
	}

	hash, err := cryptox.ChecksumFile(localPath)
	if err != nil {
		return err
	}
	if hash != rec.FileHash {
		return fmt.Errorf("downloaded %s hashes to %s, expected %s", rec.FileName, hash, rec.FileHash)
	}
	return nil
}

// localPath maps a drive path back to the OS filesystem.
func (d *Downloader) localPath(drivePath string) string {
	return filepath.Join(d.session.SyncFolderPath, filepath.FromSlash(strings.TrimPrefix(drivePath, "/")))
}

// drivePathOf returns the containing drive directory of an entity path.
func (d *Downloader) drivePathOf(path, entityType string) string {
	if entityType == store.EntityFolder {
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		return path
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "/"
	}
	return path[:idx+1]
}

func (d *Downloader) entityHash(meta ledger.EntityMetadata, entityType string) string {
	if entityType == store.EntityFolder {
		return store.FolderHashSentinel
	}
	return meta.Hash
}

func (d *Downloader) permawebLink(dataTxID string) string {
	if dataTxID == "" {
		return ""
	}
	return d.cfg.GatewayURL + "/" + dataTxID
}

// copyName derives the set-aside name for a conflicting local file:
// "report.pdf" becomes "report - Copy.pdf".
func copyName(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + " - Copy" + ext
}
