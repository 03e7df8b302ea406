// Package scanprogress tracks the live state of an in-flight scan so a
// concurrent caller (or a future status surface) can observe progress
// without blocking the scan itself.
package scanprogress

import (
	"sync"
	"time"
)

const staleAfter = 120 * time.Minute

// Snapshot is an immutable copy of the tracker's state at a point in time.
type Snapshot struct {
	IsRunning             bool
	Phase                 string
	Platform              string
	StartedAt             time.Time
	CompletedAt           time.Time
	MarketsFound          int
	MarketsTotal          int
	MarketsProcessed      int
	MarketsResearched     int
	MarketsSkipped        int
	RecommendationsCreated int
	CurrentMarket         string
	Error                 string
}

// Tracker is a mutex-guarded scan progress state machine.
type Tracker struct {
	mu   sync.RWMutex
	s    Snapshot
	last Snapshot // most recently completed scan, for "last scan" queries
}

// New returns an idle tracker.
func New() *Tracker {
	return &Tracker{}
}

// StartScan resets every counter and marks a new scan as running.
func (t *Tracker) StartScan(platform string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = Snapshot{
		IsRunning: true,
		Phase:     "fetching",
		Platform:  platform,
		StartedAt: time.Now(),
	}
}

// SetMarketsFound records the raw count returned by the venue and the count
// remaining after volume/status filtering, then advances to researching.
func (t *Tracker) SetMarketsFound(totalFromAPI, totalAfterFilter int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.MarketsFound = totalFromAPI
	t.s.MarketsTotal = totalAfterFilter
	t.s.Phase = "researching"
}

// MarketProcessing records the market currently being evaluated, truncated
// to a display-friendly length.
func (t *Tracker) MarketProcessing(question string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(question) > 80 {
		question = question[:80]
	}
	t.s.CurrentMarket = question
}

// MarketResult is the outcome of processing a single market during a scan.
type MarketResult string

const (
	ResultSkipped     MarketResult = "skipped"
	ResultResearched  MarketResult = "researched"
	ResultRecommended MarketResult = "recommended"
)

// MarketDone increments the counters for one finished market.
func (t *Tracker) MarketDone(result MarketResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.MarketsProcessed++
	switch result {
	case ResultSkipped:
		t.s.MarketsSkipped++
	case ResultResearched:
		t.s.MarketsResearched++
	case ResultRecommended:
		t.s.MarketsResearched++
		t.s.RecommendationsCreated++
	}
}

// CompleteScan marks the running scan finished successfully.
func (t *Tracker) CompleteScan() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.IsRunning = false
	t.s.Phase = "done"
	t.s.CompletedAt = time.Now()
	t.last = t.s
}

// FailScan marks the running scan finished with an error.
func (t *Tracker) FailScan(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.IsRunning = false
	t.s.Phase = "failed"
	t.s.Error = errMsg
	t.s.CompletedAt = time.Now()
	t.last = t.s
}

// Progress returns an immutable snapshot of the current state.
func (t *Tracker) Progress() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

// LastScanSummary returns the most recently completed (or failed) scan's
// final snapshot.
func (t *Tracker) LastScanSummary() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// ResetStaleScan clears a scan left marked "running" for longer than 120
// minutes, which can only happen if the process died mid-scan. It returns
// true if a stale scan was found and reset, meant to be called once at
// startup before any real scan begins.
func (t *Tracker) ResetStaleScan() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.s.IsRunning {
		return false
	}
	if time.Since(t.s.StartedAt) <= staleAfter {
		return false
	}
	t.s.IsRunning = false
	t.s.Phase = "failed"
	t.s.Error = "reset: scan left running past the stale threshold"
	t.s.CompletedAt = time.Now()
	t.last = t.s
	return true
}
