// Package poller watches submitted transactions until the ledger settles
// them one way or the other, promoting confirmed uploads to completed
// records and clearing out entries that will never confirm. It only ever
// touches the Queue and Completed tables; sync records stay with the
// classifier and downloader.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/permadrive/permadrive/internal/config"
	"github.com/permadrive/permadrive/internal/ledger"
	"github.com/permadrive/permadrive/internal/store"
)

// Poller sweeps the submission queue against ledger confirmation state.
type Poller struct {
	store  *store.Store
	ledger ledger.Client
	cfg    *config.Config
	logger *log.Logger
}

// New creates a poller.
func New(st *store.Store, lc ledger.Client, cfg *config.Config, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.New(os.Stderr, "[poller] ", log.LstdFlags)
	}
	return &Poller{store: st, ledger: lc, cfg: cfg, logger: logger}
}

// Run sweeps on a fixed interval and additionally whenever the block feed
// announces a newly mined block. Returns when ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	blocks, err := p.ledger.SubscribeBlocks(ctx)
	if err != nil {
		p.logger.Printf("block feed unavailable, falling back to timer only: %v", err)
		blocks = nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case ev, ok := <-blocks:
			if !ok {
				blocks = nil
				continue
			}
			p.logger.Printf("block %d mined (%s)", ev.Height, ev.Hash)
		}
		if err := p.Sweep(ctx); err != nil {
			p.logger.Printf("sweep failed: %v", err)
		}
	}
}

// Sweep checks every submitted queue entry once. Entry-level problems are
// logged and skipped so one bad entry never stalls the queue.
func (p *Poller) Sweep(ctx context.Context) error {
	entries, err := p.store.GetSubmittedQueueEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load submission queue: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.checkEntry(ctx, entry); err != nil {
			p.logger.Printf("error checking %s: %v", entry.FilePath, err)
		}
	}
	return nil
}

// checkEntry settles one queue entry. The ledger's verdict comes first: a
// mined transaction is promoted even when its local file has since been
// deleted, so the drive's history stays intact. Only while the transaction
// is still pending do the local sanity checks prune the queue.
func (p *Poller) checkEntry(ctx context.Context, entry *store.QueueEntry) error {
	status, err := p.ledger.Status(ctx, entry.TxID)
	if err != nil {
		return fmt.Errorf("failed to fetch status of %s: %w", entry.TxID, err)
	}

	switch status.Status {
	case ledger.TxConfirmed:
		return p.confirm(ctx, entry, status.BlockHash)
	case ledger.TxFailed:
		p.logger.Printf("%s (tx %s) was dropped by the ledger", entry.FileName, entry.TxID)
		return p.store.RemoveQueueEntry(ctx, entry.FilePath)
	}

	if entry.FileSize == 0 && entry.FileHash != store.FolderHashSentinel {
		p.logger.Printf("%s has zero size, dropping from queue", entry.FilePath)
		return p.store.RemoveQueueEntry(ctx, entry.FilePath)
	}

	if _, err := os.Stat(entry.FilePath); err != nil {
		p.logger.Printf("%s no longer exists locally, dropping from queue", entry.FilePath)
		return p.store.RemoveQueueEntry(ctx, entry.FilePath)
	}

	dup, err := p.store.GetCompletedByName(ctx, entry.FileName)
	if err == nil && dup.TxID != entry.TxID &&
		dup.FileHash == entry.FileHash && dup.FileVersion == entry.FileVersion {
		p.logger.Printf("%s duplicates completed tx %s, dropping from queue", entry.FilePath, dup.TxID)
		return p.store.RemoveQueueEntry(ctx, entry.FilePath)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// Still pending and locally sound; check again next sweep.
	return nil
}

// confirm promotes a mined transaction: a completed record lands and the
// queue entry goes away. Sync records are left alone; reconciling them
// against ledger state is the downloader's job.
func (p *Poller) confirm(ctx context.Context, entry *store.QueueEntry, blockHash string) error {
	completed := &store.CompletedRecord{
		TxID:         entry.TxID,
		IsLocal:      true,
		FileName:     entry.FileName,
		FileHash:     entry.FileHash,
		Owner:        entry.Owner,
		PermawebLink: entry.PermawebLink,
		IsPublic:     entry.IsPublic,
		ModifiedTime: entry.ModifiedTime,
		DrivePath:    entry.DrivePath,
		FileVersion:  entry.FileVersion,
		Keywords:     entry.Keywords,
		PrevTxID:     entry.PrevTxID,
		BlockHash:    blockHash,
	}
	if err := p.store.AddCompletedRecord(ctx, completed); err != nil {
		return err
	}

	p.logger.Printf("%s confirmed in block %s", entry.FileName, blockHash)
	return p.store.RemoveQueueEntry(ctx, entry.FilePath)
}
