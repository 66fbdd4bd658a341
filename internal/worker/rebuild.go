package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sprintboard/internal/config"
)

// RankRebuilder is the rank-set side of a rebuild
type RankRebuilder interface {
	RebuildBoard(ctx context.Context, country string, times map[int64]float64) error
	Count(ctx context.Context, country string) (int64, error)
}

// ResultSource is the database side of a rebuild
type ResultSource interface {
	Countries(ctx context.Context) ([]string, error)
	AllTimesByCountry(ctx context.Context, country string) (map[int64]float64, error)
	ResultCount(ctx context.Context) (int64, error)
}

// RebuildWorker periodically restores the rank sets from the database.
// The database is the source of truth; the sorted sets are a disposable
// index that this worker can always reconstruct.
type RebuildWorker struct {
	ranks   RankRebuilder
	results ResultSource
	config  *config.RebuildConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRebuildWorker creates a new rebuild worker
func NewRebuildWorker(
	ranks RankRebuilder,
	results ResultSource,
	cfg *config.RebuildConfig,
	logger *slog.Logger,
) *RebuildWorker {
	return &RebuildWorker{
		ranks:   ranks,
		results: results,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background rebuild process
func (w *RebuildWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("rebuild worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background rebuild process
func (w *RebuildWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("rebuild worker stopped")
	return nil
}

// run is the main worker loop
func (w *RebuildWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.RebuildAll(ctx); err != nil {
				w.logger.Error("rebuild cycle failed", "error", err)
			}
		}
	}
}

// RebuildAll reconstructs every country board and the global board from
// the database. Also used on startup for recovery after a Redis flush.
func (w *RebuildWorker) RebuildAll(ctx context.Context) error {
	w.logger.Info("rebuilding boards from database")
	startTime := time.Now()

	countries, err := w.results.Countries(ctx)
	if err != nil {
		return err
	}

	rebuilt := 0
	for _, country := range countries {
		if err := w.rebuildCountry(ctx, country); err != nil {
			w.logger.Error("failed to rebuild country board", "country", country, "error", err)
			continue
		}
		rebuilt++
	}

	// Empty country selects all results: the global board.
	if err := w.rebuildCountry(ctx, ""); err != nil {
		w.logger.Error("failed to rebuild global board", "error", err)
	}

	total, err := w.results.ResultCount(ctx)
	if err != nil {
		w.logger.Warn("failed to count stored results", "error", err)
	}

	w.logger.Info("board rebuild completed",
		"duration", time.Since(startTime),
		"countries", rebuilt,
		"results", total,
	)
	return nil
}

func (w *RebuildWorker) rebuildCountry(ctx context.Context, country string) error {
	times, err := w.results.AllTimesByCountry(ctx, country)
	if err != nil {
		return err
	}

	if len(times) == 0 {
		w.logger.Debug("no results to rebuild", "country", country)
		return nil
	}

	if err := w.ranks.RebuildBoard(ctx, country, times); err != nil {
		return err
	}

	// Read the cardinality back from the rebuilt set, so a rebuild that
	// quietly dropped members is visible in the logs.
	entries, err := w.ranks.Count(ctx, country)
	if err != nil {
		entries = int64(len(times))
	}
	w.logger.Debug("rebuilt board", "country", country, "entries", entries)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *RebuildWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
