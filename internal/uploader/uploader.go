// Package uploader publishes pending file and folder records to the
// ledger: data transactions first, then the metadata transactions that
// describe them, with the service fee settled once per batch.
package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/permadrive/permadrive/internal/config"
	"github.com/permadrive/permadrive/internal/cryptox"
	"github.com/permadrive/permadrive/internal/ledger"
	"github.com/permadrive/permadrive/internal/store"
	"github.com/permadrive/permadrive/internal/wallet"
)

// Uploader drains the pending-upload set into the ledger.
type Uploader struct {
	store   *store.Store
	ledger  ledger.Client
	session *wallet.Session
	cfg     *config.Config
	logger  *log.Logger
}

// New creates an uploader bound to one session.
func New(st *store.Store, lc ledger.Client, session *wallet.Session, cfg *config.Config, logger *log.Logger) *Uploader {
	if logger == nil {
		logger = log.New(os.Stderr, "[uploader] ", log.LstdFlags)
	}
	return &Uploader{store: st, ledger: lc, session: session, cfg: cfg, logger: logger}
}

// Estimate is the priced summary of everything waiting to upload.
type Estimate struct {
	// FileCount is the number of records needing a data upload.
	FileCount int
	// MetadataOnlyCount is the number of records needing only a metadata
	// transaction (folders, renames, moves).
	MetadataOnlyCount int
	// TotalSize is the byte total of pending data uploads.
	TotalSize int64
	// DataPrice is the ledger price of the pending data uploads,
	// including each file's own metadata transaction.
	DataPrice float64
	// ServiceFee is the fee owed on DataPrice.
	ServiceFee float64
	// TotalPrice is what the batch will cost.
	TotalPrice float64
}

// EstimateBatch prices the pending-upload set without submitting anything.
func (u *Uploader) EstimateBatch(ctx context.Context) (*Estimate, error) {
	records, err := u.store.GetFilesToUpload(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending uploads: %w", err)
	}

	est := &Estimate{}
	for _, rec := range records {
		if rec.DataStatus != store.StatusNeedsUpload {
			est.MetadataOnlyCount++
			continue
		}
		winston, err := u.ledger.EstimateFee(ctx, rec.FileSize)
		if err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", rec.FileName, err)
		}
		est.FileCount++
		est.TotalSize += rec.FileSize
		est.DataPrice += float64(winston)/ledger.WinstonPerToken + u.cfg.MetadataFee
	}

	est.ServiceFee = u.serviceFee(est.DataPrice, len(records))
	est.TotalPrice = est.DataPrice + float64(est.MetadataOnlyCount)*u.cfg.MetadataFee + est.ServiceFee
	return est, nil
}

// Result summarizes one upload batch. Failures are per-file: one bad file
// never blocks the rest of the batch.
type Result struct {
	Uploaded     int
	MetadataOnly int
	Failed       int
	FeePaid      float64
}

// UploadPending submits every pending record. Data transactions carry the
// (possibly encrypted) file bytes; metadata transactions carry the entity
// document and the queryable tags. The accumulated service fee is paid
// once at the end.
func (u *Uploader) UploadPending(ctx context.Context) (*Result, error) {
	records, err := u.store.GetFilesToUpload(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending uploads: %w", err)
	}

	res := &Result{}
	var dataPrice float64
	for _, rec := range records {
		price, err := u.uploadOne(ctx, rec)
		if err != nil {
			u.logger.Printf("upload of %s failed: %v", rec.FilePath, err)
			res.Failed++
			continue
		}
		dataPrice += price
		if rec.DataStatus == store.StatusNeedsUpload {
			res.Uploaded++
		} else {
			res.MetadataOnly++
		}
	}

	if succeeded := res.Uploaded + res.MetadataOnly; succeeded > 0 && u.cfg.FeeRecipient != "" {
		fee := u.serviceFee(dataPrice, succeeded)
		if err := u.ledger.PayFee(ctx, fee, u.cfg.FeeRecipient); err != nil {
			return res, fmt.Errorf("failed to pay service fee: %w", err)
		}
		res.FeePaid = fee
	}
	return res, nil
}

// uploadOne publishes one record and returns the data price it incurred.
func (u *Uploader) uploadOne(ctx context.Context, rec *store.SyncRecord) (float64, error) {
	var dataPrice float64

	if rec.DataStatus == store.StatusNeedsUpload {
		payload, err := u.dataPayload(rec)
		if err != nil {
			return 0, err
		}

		winston, err := u.ledger.EstimateFee(ctx, int64(len(payload)))
		if err != nil {
			return 0, fmt.Errorf("failed to price data: %w", err)
		}
		dataPrice = float64(winston)/ledger.WinstonPerToken + u.cfg.MetadataFee

		dataTxID, err := u.ledger.Submit(ctx, payload, u.dataTags(rec))
		if err != nil {
			return 0, fmt.Errorf("failed to submit data: %w", err)
		}
		if err := u.store.UpdateSyncDataTx(ctx, rec.ID, store.StatusSubmitted, dataTxID); err != nil {
			return 0, err
		}
		rec.DataTxID = dataTxID
		u.logger.Printf("%s data submitted as %s", rec.FileName, dataTxID)
	}

	body, err := u.metadataBody(rec)
	if err != nil {
		return dataPrice, err
	}

	prevMetaTx := rec.MetaTxID
	metaTxID, err := u.ledger.Submit(ctx, body, u.metadataTags(rec))
	if err != nil {
		return dataPrice, fmt.Errorf("failed to submit metadata: %w", err)
	}
	if err := u.store.UpdateSyncMetaTx(ctx, rec.ID, store.StatusSubmitted, metaTxID); err != nil {
		return dataPrice, err
	}
	rec.MetaTxID = metaTxID
	u.logger.Printf("%s metadata submitted as %s", rec.FileName, metaTxID)

	entry := &store.QueueEntry{
		TxID:         metaTxID,
		Owner:        u.session.Owner,
		FilePath:     rec.FilePath,
		FileName:     rec.FileName,
		FileHash:     rec.FileHash,
		FileSize:     rec.FileSize,
		SyncStatus:   store.StatusSubmitted,
		IsPublic:     rec.IsPublic,
		ModifiedTime: rec.ModifiedTime,
		DrivePath:    rec.DrivePath,
		FileVersion:  rec.FileVersion,
		PermawebLink: u.permawebLink(rec),
		PrevTxID:     prevMetaTx,
	}
	if err := u.store.AddQueueEntry(ctx, entry); err != nil {
		return dataPrice, err
	}
	return dataPrice, nil
}

// dataPayload reads the bytes to publish for a record. Private files are
// sealed through an encrypted sibling which is removed before returning;
// a ciphertext no larger than its plaintext is treated as corruption and
// the seal is retried once.
func (u *Uploader) dataPayload(rec *store.SyncRecord) ([]byte, error) {
	if rec.IsPublic {
		payload, err := os.ReadFile(rec.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rec.FilePath, err)
		}
		return payload, nil
	}

	if len(u.session.ContentKey) == 0 {
		return nil, errors.New("no content key in session for private upload")
	}

	encPath, err := cryptox.EncryptFile(rec.FilePath, u.session.ContentKey)
	if errors.Is(err, cryptox.ErrImplausibleCiphertext) {
		u.logger.Printf("%s produced implausible ciphertext, retrying once", rec.FileName)
		encPath, err = cryptox.EncryptFile(rec.FilePath, u.session.ContentKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt %s: %w", rec.FilePath, err)
	}
	defer os.Remove(encPath)

	payload, err := os.ReadFile(encPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", encPath, err)
	}
	return payload, nil
}

// metadataBody builds the entity document, sealed for private records.
func (u *Uploader) metadataBody(rec *store.SyncRecord) ([]byte, error) {
	path := rec.DrivePath
	if rec.EntityType == store.EntityFile {
		path += rec.FileName
	}
	body, err := json.Marshal(&ledger.EntityMetadata{
		Name:         rec.FileName,
		Size:         rec.FileSize,
		Hash:         rec.FileHash,
		ModifiedDate: rec.ModifiedTime,
		DataTxID:     rec.DataTxID,
		FileVersion:  rec.FileVersion,
		Path:         path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	if rec.IsPublic {
		return body, nil
	}
	if len(u.session.ContentKey) == 0 {
		return nil, errors.New("no content key in session for private upload")
	}
	env, err := cryptox.EncryptTag(body, u.session.ContentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal metadata: %w", err)
	}
	sealed, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sealed metadata: %w", err)
	}
	return sealed, nil
}

func (u *Uploader) dataTags(rec *store.SyncRecord) []ledger.Tag {
	contentType := rec.ContentType
	if !rec.IsPublic {
		contentType = "application/octet-stream"
	}
	return []ledger.Tag{
		{Name: ledger.TagAppName, Value: config.AppName},
		{Name: ledger.TagAppVersion, Value: config.AppVersion},
		{Name: ledger.TagUnixTime, Value: fmt.Sprintf("%d", rec.UnixTime)},
		{Name: ledger.TagContentType, Value: contentType},
	}
}

func (u *Uploader) metadataTags(rec *store.SyncRecord) []ledger.Tag {
	return []ledger.Tag{
		{Name: ledger.TagAppName, Value: config.AppName},
		{Name: ledger.TagAppVersion, Value: config.AppVersion},
		{Name: ledger.TagUnixTime, Value: fmt.Sprintf("%d", rec.UnixTime)},
		{Name: ledger.TagContentType, Value: "application/json"},
		{Name: ledger.TagEntityType, Value: rec.EntityType},
		{Name: ledger.TagDriveID, Value: rec.DriveID},
		{Name: ledger.TagFileID, Value: rec.FileID},
		{Name: ledger.TagParentFolderID, Value: rec.ParentFolderID},
	}
}

// permawebLink is where the file's bytes will be readable once confirmed.
func (u *Uploader) permawebLink(rec *store.SyncRecord) string {
	if rec.EntityType != store.EntityFile || rec.DataTxID == "" {
		return ""
	}
	return u.cfg.GatewayURL + "/" + rec.DataTxID
}

// serviceFee applies the configured percentage with its floor. The floor
// is owed whenever anything is pending, even a metadata-only batch; only
// an empty batch owes nothing.
func (u *Uploader) serviceFee(dataPrice float64, pending int) float64 {
	if pending == 0 {
		return 0
	}
	fee := dataPrice * u.cfg.ServiceFeePercent
	if fee < u.cfg.ServiceFeeFloor {
		fee = u.cfg.ServiceFeeFloor
	}
	return fee
}
