// Package orchestrator implements the scan/estimate/decide pipeline: it
// fetches markets from the venue, blind-estimates each one, applies the EV
// and Kelly gates, and persists any resulting recommendation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"augurbot/internal/calc"
	"augurbot/internal/config"
	"augurbot/internal/db"
	"augurbot/internal/llm"
	"augurbot/internal/logger"
	"augurbot/internal/scanprogress"
	"augurbot/internal/venue"
)

// Orchestrator wires together the store, venue, and researcher into the
// end-to-end scan pipeline. The scanning flag rejects an overlapping manual
// trigger or scheduled run outright (ErrScanBusy) instead of racing it or
// joining its result.
type Orchestrator struct {
	Store      *db.DB
	Venue      *venue.Client
	Researcher *llm.Researcher
	Cfg        *config.Config
	Progress   *scanprogress.Tracker

	scanning atomic.Bool
}

// ErrScanBusy is returned by RunScan when a scan is already in flight.
var ErrScanBusy = errors.New("orchestrator: scan already running")

// New builds an Orchestrator from its already-constructed dependencies.
func New(store *db.DB, v *venue.Client, researcher *llm.Researcher, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		Store:      store,
		Venue:      v,
		Researcher: researcher,
		Cfg:        cfg,
		Progress:   scanprogress.New(),
	}
}

// ScanSummary is the result handed back to the caller (and to the
// notifier) once a scan finishes.
type ScanSummary struct {
	MarketsFound          int
	MarketsResearched     int
	MarketsSkipped        int
	RecommendationsCreated int
	SweepTradesPlaced     int
	Recommendations       []*db.Recommendation
	Duration              time.Duration
	Err                   error
}

// RunScan triggers a full scan. A second call while one is already running
// is rejected immediately with ErrScanBusy rather than joining or waiting
// on the in-flight run, so a manual trigger overlapping a scheduled run
// never silently double-spends the LLM budget on the same markets.
func (o *Orchestrator) RunScan(ctx context.Context) (*ScanSummary, error) {
	if !o.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanBusy
	}
	defer o.scanning.Store(false)

	return o.runScanLocked(ctx)
}

func (o *Orchestrator) runScanLocked(ctx context.Context) (*ScanSummary, error) {
	started := time.Now()
	o.Progress.StartScan("kalshi")
	logger.Section("Scan starting")

	summary, err := o.scan(ctx)
	summary.Duration = time.Since(started)

	if err != nil {
		o.Progress.FailScan(err.Error())
		logger.Error("Scan", fmt.Sprintf("failed after %s: %v", summary.Duration, err))
		return summary, err
	}

	o.Progress.CompleteScan()
	logger.Success("Scan", fmt.Sprintf(
		"found=%d researched=%d skipped=%d recommended=%d in %s",
		summary.MarketsFound, summary.MarketsResearched, summary.MarketsSkipped,
		summary.RecommendationsCreated, summary.Duration,
	))
	return summary, nil
}
