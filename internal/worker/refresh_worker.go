// Package worker keeps a signed-in session's snapshot warm in the
// background.
package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"finsession/internal/finance"
	"finsession/internal/log"
)

// Refresher is the part of the provider the worker drives.
type Refresher interface {
	Session(ctx context.Context) finance.Session
	RefreshData(ctx context.Context, forceRefresh bool)
	RefreshCategories(ctx context.Context)
}

type Config struct {
	// DataInterval is the period between snapshot refreshes. Zero disables them.
	DataInterval time.Duration
	// CategoryInterval is the period between category refreshes. Zero disables them.
	CategoryInterval time.Duration
	Clock            clockwork.Clock
	Logger           *log.Logger
}

// RefreshWorker periodically refreshes the snapshot and the categories
// while a user is signed in. Ticks that find no session are skipped.
type RefreshWorker struct {
	refresher        Refresher
	dataInterval     time.Duration
	categoryInterval time.Duration
	clock            clockwork.Clock
	logger           *log.Logger
}

func NewRefreshWorker(r Refresher, cfg Config) *RefreshWorker {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	return &RefreshWorker{
		refresher:        r,
		dataInterval:     cfg.DataInterval,
		categoryInterval: cfg.CategoryInterval,
		clock:            cfg.Clock,
		logger:           cfg.Logger.WithComponent(log.ComponentWorker),
	}
}

// Run blocks until ctx is cancelled.
func (w *RefreshWorker) Run(ctx context.Context) {
	var dataC, catC <-chan time.Time
	if w.dataInterval > 0 {
		t := w.clock.NewTicker(w.dataInterval)
		defer t.Stop()
		dataC = t.Chan()
	}
	if w.categoryInterval > 0 {
		t := w.clock.NewTicker(w.categoryInterval)
		defer t.Stop()
		catC = t.Chan()
	}
	if dataC == nil && catC == nil {
		w.logger.InfoContext(ctx, "Background refresh disabled")
		return
	}

	w.logger.InfoContext(ctx, "Background refresh started",
		"data_interval", w.dataInterval,
		"category_interval", w.categoryInterval)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Background refresh stopped")
			return
		case <-dataC:
			if w.signedIn(ctx) {
				w.refresher.RefreshData(ctx, false)
			}
		case <-catC:
			if w.signedIn(ctx) {
				w.refresher.RefreshCategories(ctx)
			}
		}
	}
}

func (w *RefreshWorker) signedIn(ctx context.Context) bool {
	s := w.refresher.Session(ctx)
	if !s.IsAuthenticated {
		w.logger.DebugContext(ctx, "Skipping refresh, no session")
		return false
	}
	return true
}
