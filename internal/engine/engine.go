// Package engine runs the sync daemon: one classification loop fed by the
// filesystem watcher, the confirmation poller, and the periodic download
// sweep, sharing a single state store.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/permadrive/permadrive/internal/config"
	"github.com/permadrive/permadrive/internal/downloader"
	"github.com/permadrive/permadrive/internal/poller"
	"github.com/permadrive/permadrive/internal/watcher"
)

// Engine owns the long-running sync loops. Classification is a single
// consumer of the watcher's event channel, so store writes for any one
// path are naturally serialized.
type Engine struct {
	watcher    *watcher.Watcher
	classifier *watcher.Classifier
	poller     *poller.Poller
	downloader *downloader.Downloader
	cfg        *config.Config
	logger     *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles an engine from its loops.
func New(w *watcher.Watcher, c *watcher.Classifier, p *poller.Poller, d *downloader.Downloader, cfg *config.Config, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Engine{
		watcher:    w,
		classifier: c,
		poller:     p,
		downloader: d,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start scans the sync folder for changes made while the daemon was down,
// then launches the watcher, poller and download loops.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	if err := e.classifier.ScanTree(ctx); err != nil {
		e.cancel()
		return fmt.Errorf("initial scan failed: %w", err)
	}

	if err := e.watcher.Start(); err != nil {
		e.cancel()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	e.wg.Add(3)
	go e.eventLoop(ctx)
	go e.downloadLoop(ctx)
	go func() {
		defer e.wg.Done()
		e.poller.Run(ctx)
	}()

	e.logger.Println("sync engine started")
	return nil
}

// Stop shuts the loops down and waits for them to drain.
func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	err := e.watcher.Stop()
	e.wg.Wait()
	e.logger.Println("sync engine stopped")
	return err
}

// eventLoop debounces watcher events and classifies them in batches. A
// burst of events on the same path collapses into one classification.
func (e *Engine) eventLoop(ctx context.Context) {
	defer e.wg.Done()

	pending := make(map[string]watcher.Event)
	timer := time.NewTimer(e.cfg.DebounceInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	events := e.watcher.Events()
	errs := e.watcher.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e.logger.Printf("watcher error: %v", err)
		case ev, ok := <-events:
			if !ok {
				return
			}
			pending[ev.Path] = ev
			timer.Reset(e.cfg.DebounceInterval)
		case <-timer.C:
			e.flush(ctx, pending)
			pending = make(map[string]watcher.Event)
		}
	}
}

// flush classifies a debounced batch, directories first so that files in
// newly created folders resolve their parent id.
func (e *Engine) flush(ctx context.Context, pending map[string]watcher.Event) {
	for _, ev := range pending {
		if !ev.IsDir {
			continue
		}
		if err := e.classifier.ClassifyPath(ctx, ev); err != nil {
			e.logger.Printf("error classifying %s: %v", ev.Path, err)
		}
	}
	for _, ev := range pending {
		if ev.IsDir {
			continue
		}
		if err := e.classifier.ClassifyPath(ctx, ev); err != nil {
			e.logger.Printf("error classifying %s: %v", ev.Path, err)
		}
	}
}

// downloadLoop periodically imports remote metadata and materializes
// whatever is missing locally.
func (e *Engine) downloadLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.DownloadInterval)
	defer ticker.Stop()

	// One sweep up front so a fresh machine starts filling immediately.
	e.downloadOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.downloadOnce(ctx)
		}
	}
}

func (e *Engine) downloadOnce(ctx context.Context) {
	if err := e.downloader.FetchRemoteMetadata(ctx); err != nil {
		e.logger.Printf("metadata sweep failed: %v", err)
	}
	if err := e.downloader.DownloadPending(ctx); err != nil {
		e.logger.Printf("download sweep failed: %v", err)
	}
}
