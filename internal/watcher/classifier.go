package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/permadrive/permadrive/internal/cryptox"
	"github.com/permadrive/permadrive/internal/store"
)

// publicDirName is the subtree whose contents are published unencrypted.
const publicDirName = "Public"

// Classifier decides what a filesystem change means for the state store.
// Checks run in fixed order (exact match, rename, new version, move, new
// file) because rename and move detection is only valid when no exact or
// version match fired first.
type Classifier struct {
	store      *store.Store
	root       string
	driveID    string
	appName    string
	appVersion string
	logger     *log.Logger
}

// NewClassifier creates a classifier for one sync folder.
func NewClassifier(st *store.Store, root, driveID, appName, appVersion string, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[classifier] ", log.LstdFlags)
	}
	return &Classifier{
		store:      st,
		root:       filepath.Clean(root),
		driveID:    driveID,
		appName:    appName,
		appVersion: appVersion,
		logger:     logger,
	}
}

// ClassifyPath classifies one changed path, dispatching on entity type.
// Removals are logged only: ledger history is append-only, and a rename
// shows up as a remove plus a create, so the old record must survive the
// remove for the create to be recognized as a rename.
func (c *Classifier) ClassifyPath(ctx context.Context, ev Event) error {
	if ev.Op == OpRemove {
		c.logger.Printf("%s was removed locally; ledger history is kept", ev.Path)
		return nil
	}
	if ev.IsDir {
		return c.ClassifyFolder(ctx, ev.Path)
	}
	return c.ClassifyFile(ctx, ev.Path)
}

// ClassifyFile runs the classification state machine for one file path.
func (c *Classifier) ClassifyFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		// File not ready yet (still being written, or already gone).
		c.logger.Printf("file not ready yet: %s", path)
		return nil
	}

	fileName := filepath.Base(path)
	if strings.HasSuffix(path, cryptox.EncSuffix) ||
		strings.HasPrefix(fileName, lockFilePrefix) ||
		info.Size() == 0 {
		return nil
	}

	hash, err := cryptox.ChecksumFile(path)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", path, err)
	}

	mtime := info.ModTime().UnixMilli()
	drivePath := c.drivePath(path, fileName)
	now := time.Now().Unix()

	// 1. Exact match: this version is already tracked. Do nothing.
	if _, err := c.store.GetSyncByPathAndHash(ctx, path, hash); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// 2. Rename: same content, mtime and logical folder under a new name.
	renamed, err := c.store.GetSyncByHashMtimeAndDrivePath(ctx, hash, mtime, drivePath)
	if err == nil {
		c.logger.Printf("%s was just renamed", path)
		return c.store.UpdateSyncRename(ctx, renamed.ID, fileName, path, now)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// 3. New version: known path, changed content.
	prev, err := c.store.GetLatestSyncByPath(ctx, path)
	if err == nil {
		next := *prev
		next.ID = 0
		next.UnixTime = now
		next.FileVersion = prev.FileVersion + 1
		next.FileHash = hash
		next.FileSize = info.Size()
		next.ModifiedTime = mtime
		next.DataStatus = store.StatusNeedsUpload
		next.MetaStatus = store.StatusNeedsUpload
		next.DataTxID = ""
		next.MetaTxID = ""
		next.PermawebLink = ""
		c.logger.Printf("%s updating file version to %d", path, next.FileVersion)
		return c.store.AddSyncRecordContext(ctx, &next)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// 4. Move: same content, mtime and name under a different parent.
	moved, err := c.store.GetSyncByHashMtimeAndName(ctx, hash, mtime, fileName)
	if err == nil {
		parentID, perr := c.parentFolderID(ctx, path)
		if perr != nil {
			return perr
		}
		c.logger.Printf("%s has been moved", path)
		return c.store.UpdateSyncMove(ctx, moved.ID, path, drivePath, parentID, now)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// 5. No match: a brand-new file.
	parentID, err := c.parentFolderID(ctx, path)
	if err != nil {
		return err
	}

	rec := &store.SyncRecord{
		AppName:        c.appName,
		AppVersion:     c.appVersion,
		UnixTime:       now,
		ContentType:    contentType(path),
		EntityType:     store.EntityFile,
		DriveID:        c.driveID,
		ParentFolderID: parentID,
		FileID:         uuid.NewString(),
		FilePath:       path,
		DrivePath:      drivePath,
		FileName:       fileName,
		FileHash:       hash,
		FileSize:       info.Size(),
		ModifiedTime:   mtime,
		FileVersion:    0,
		DataStatus:     store.StatusNeedsUpload,
		MetaStatus:     store.StatusNeedsUpload,
		IsPublic:       c.isPublic(path),
		IsLocal:        true,
	}
	c.logger.Printf("%s queueing new file", path)
	return c.store.AddSyncRecordContext(ctx, rec)
}

// ClassifyFolder tracks a folder, minting its stable id the first time it
// is seen. The sync root mints its own synthetic parent id.
func (c *Classifier) ClassifyFolder(ctx context.Context, path string) error {
	if _, err := c.store.GetFolderByPath(ctx, path); err == nil {
		// Already tracked.
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		c.logger.Printf("folder not ready yet: %s", path)
		return nil
	}

	var parentID string
	if path == c.root {
		// Synthetic root parent id, minted once.
		parentID = uuid.NewString()
	} else {
		parentID, err = c.parentFolderID(ctx, path)
		if err != nil {
			return err
		}
	}

	fileName := filepath.Base(path)
	rec := &store.SyncRecord{
		AppName:        c.appName,
		AppVersion:     c.appVersion,
		UnixTime:       time.Now().Unix(),
		ContentType:    "application/json",
		EntityType:     store.EntityFolder,
		DriveID:        c.driveID,
		ParentFolderID: parentID,
		FileID:         uuid.NewString(),
		FilePath:       path,
		DrivePath:      c.drivePath(path, ""),
		FileName:       fileName,
		FileHash:       store.FolderHashSentinel,
		FileSize:       0,
		ModifiedTime:   info.ModTime().UnixMilli(),
		FileVersion:    0,
		DataStatus:     store.StatusNotNeeded,
		MetaStatus:     store.StatusNeedsUpload,
		IsPublic:       c.isPublic(path),
		IsLocal:        true,
	}
	c.logger.Printf("%s queueing folder", path)
	return c.store.AddSyncRecordContext(ctx, rec)
}

// ScanTree classifies every entry under the sync root, directories before
// their children so parent folder ids resolve. Used at daemon start to
// catch changes made while the engine was not running.
func (c *Classifier) ScanTree(ctx context.Context) error {
	return filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if cerr := c.ClassifyFolder(ctx, path); cerr != nil {
				c.logger.Printf("error classifying folder %s: %v", path, cerr)
			}
			return nil
		}
		if cerr := c.ClassifyFile(ctx, path); cerr != nil {
			c.logger.Printf("error classifying %s: %v", path, cerr)
		}
		return nil
	})
}

// drivePath derives the logical remote directory of a local path: relative
// to the sync root, forward slashes, trailing slash, file name stripped.
func (c *Classifier) drivePath(path, fileName string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || rel == "." {
		return "/"
	}
	p := "/" + filepath.ToSlash(rel)
	if fileName != "" {
		p = strings.TrimSuffix(p, fileName)
	} else if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// parentFolderID resolves the new parent directory's own record.
func (c *Classifier) parentFolderID(ctx context.Context, path string) (string, error) {
	parent, err := c.store.GetFolderByPath(ctx, filepath.Dir(path))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Parent folder not classified yet; the id is repaired when
			// the folder record lands.
			return "", nil
		}
		return "", err
	}
	return parent.FileID, nil
}

// isPublic reports whether a path falls under the dedicated public subtree.
func (c *Classifier) isPublic(path string) bool {
	publicRoot := filepath.Join(c.root, publicDirName)
	if path == publicRoot {
		return true
	}
	return strings.HasPrefix(path, publicRoot+string(filepath.Separator))
}

func contentType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
