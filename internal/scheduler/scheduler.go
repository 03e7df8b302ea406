// Package scheduler runs the pipeline's background jobs: the cron-style
// full scan, the optional price-movement check, the resolution poll, the
// trade-sync reconciler pass, and the daily digest. Each job runs in its
// own goroutine behind a ticker, wrapped in a panic-to-log recover so one
// misbehaving job never takes the process down, and gated so a job never
// overlaps with itself (maxInstances=1). Missed fires are not backfilled.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"augurbot/internal/db"
	"augurbot/internal/notifier"
	"augurbot/internal/orchestrator"
	"augurbot/internal/reconciler"

	"augurbot/internal/logger"
)

// pollInterval is how often the hour-of-day jobs (full_scan, daily_digest)
// check whether they're due to fire.
const pollInterval = time.Minute

// Scheduler wires the orchestrator, reconciler, and notifier into the
// pipeline's background job cadence.
type Scheduler struct {
	Store        *db.DB
	Orchestrator *orchestrator.Orchestrator
	Reconciler   *reconciler.Reconciler
	Notifier     *notifier.Notifier

	fullScanRunning  atomic.Bool
	priceCheckRunning atomic.Bool
	resolutionRunning atomic.Bool
	tradeSyncRunning  atomic.Bool
	digestRunning     atomic.Bool

	lastScanKey   atomic.Value // string, "2026-07-31T08"
	lastDigestKey atomic.Value // string, "2026-07-31T18"
}

// New builds a Scheduler from its already-constructed dependencies.
func New(store *db.DB, orch *orchestrator.Orchestrator, recon *reconciler.Reconciler, notif *notifier.Notifier) *Scheduler {
	return &Scheduler{Store: store, Orchestrator: orch, Reconciler: recon, Notifier: notif}
}

// Start launches every background job as its own goroutine. It returns
// immediately; jobs run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runHourly(ctx, "full_scan", s.dueScanHours, &s.fullScanRunning, &s.lastScanKey, s.runFullScan)
	go s.runHourly(ctx, "daily_digest", s.dueDigestHour, &s.digestRunning, &s.lastDigestKey, s.runDailyDigest)
	go s.runInterval(ctx, "price_check", s.priceCheckEnabled, s.priceCheckInterval, &s.priceCheckRunning, s.runPriceCheck)
	go s.runInterval(ctx, "resolution_check", s.resolutionCheckEnabled, s.resolutionCheckInterval, &s.resolutionRunning, s.runResolutionCheck)
	go s.runInterval(ctx, "trade_sync", s.tradeSyncEnabled, s.tradeSyncInterval, &s.tradeSyncRunning, s.runTradeSync)
	logger.Info("Scheduler", "started full_scan, price_check, resolution_check, trade_sync, daily_digest")
}

// runHourly polls once a minute and fires job the first time dueHours
// reports the current hour is due, deduping on a per-(date,hour) key so a
// job fires at most once per matching hour even though the poll loop
// checks every minute.
func (s *Scheduler) runHourly(ctx context.Context, name string, dueHours func() []int, running *atomic.Bool, lastKey *atomic.Value, job func(context.Context)) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg := s.Store.LoadConfig()
			loc, err := time.LoadLocation(cfg.ScanTimezone)
			if err != nil {
				loc = time.UTC
			}
			now := time.Now().In(loc)
			if !containsInt(dueHours(), now.Hour()) {
				continue
			}
			key := now.Format("2006-01-02T15")
			if prev, _ := lastKey.Load().(string); prev == key {
				continue
			}
			lastKey.Store(key)
			s.runGuarded(ctx, name, running, job)
		}
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// runInterval re-reads its enablement and interval from config at the top
// of every tick (hot-reload), so a config change takes effect on the job's
// next fire without a process restart.
func (s *Scheduler) runInterval(ctx context.Context, name string, enabled func() bool, interval func() time.Duration, running *atomic.Bool, job func(context.Context)) {
	d := interval()
	if d <= 0 {
		d = time.Hour
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if enabled() {
				s.runGuarded(ctx, name, running, job)
			}
			next := interval()
			if next <= 0 {
				next = time.Hour
			}
			timer.Reset(next)
		}
	}
}

// runGuarded enforces maxInstances=1 for a job and converts any panic
// inside it into a logged error instead of crashing the process.
func (s *Scheduler) runGuarded(ctx context.Context, name string, running *atomic.Bool, job func(context.Context)) {
	if !running.CompareAndSwap(false, true) {
		logger.Warn("Scheduler", fmt.Sprintf("%s still running, skipping this fire", name))
		return
	}
	defer running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error("Scheduler", fmt.Sprintf("%s panicked: %v", name, r))
			if s.Notifier != nil {
				s.Notifier.SendFailureAlert(ctx, name, err)
			}
		}
	}()

	job(ctx)
}

func (s *Scheduler) dueScanHours() []int  { return s.Store.LoadConfig().ScanTimes }
func (s *Scheduler) dueDigestHour() []int { return []int{s.Store.LoadConfig().DailyDigestHour} }

func (s *Scheduler) priceCheckEnabled() bool      { return s.Store.LoadConfig().PriceCheckEnabled }
func (s *Scheduler) resolutionCheckEnabled() bool { return s.Store.LoadConfig().ResolutionCheckEnabled }
func (s *Scheduler) tradeSyncEnabled() bool       { return s.Store.LoadConfig().TradeSyncEnabled }

func (s *Scheduler) priceCheckInterval() time.Duration {
	return time.Duration(s.Store.LoadConfig().PriceCheckIntervalHours * float64(time.Hour))
}
func (s *Scheduler) resolutionCheckInterval() time.Duration {
	return time.Duration(s.Store.LoadConfig().ResolutionCheckIntervalH * float64(time.Hour))
}
func (s *Scheduler) tradeSyncInterval() time.Duration {
	return time.Duration(s.Store.LoadConfig().TradeSyncIntervalHours * float64(time.Hour))
}

func (s *Scheduler) runFullScan(ctx context.Context) {
	logger.Section("Scheduled full scan starting")
	summary, err := s.Orchestrator.RunScan(ctx)
	if err != nil {
		logger.Error("Scheduler", fmt.Sprintf("full_scan failed: %v", err))
		if s.Notifier != nil {
			s.Notifier.SendFailureAlert(ctx, "full_scan", err)
		}
		return
	}
	if s.Notifier != nil {
		s.Notifier.SendScanNotifications(ctx, s.Store, summary)
	}
}

func (s *Scheduler) runPriceCheck(ctx context.Context) {
	n, err := s.Orchestrator.CheckPriceMovements(ctx)
	if err != nil {
		logger.Error("Scheduler", fmt.Sprintf("price_check failed: %v", err))
		if s.Notifier != nil {
			s.Notifier.SendFailureAlert(ctx, "price_check", err)
		}
		return
	}
	if n > 0 {
		logger.Info("Scheduler", fmt.Sprintf("price_check re-estimated %d market(s)", n))
	}
}

func (s *Scheduler) runResolutionCheck(ctx context.Context) {
	summary, err := s.Orchestrator.CheckResolutions(ctx)
	if err != nil {
		logger.Error("Scheduler", fmt.Sprintf("resolution_check failed: %v", err))
		if s.Notifier != nil {
			s.Notifier.SendFailureAlert(ctx, "resolution_check", err)
		}
		return
	}
	logger.Info("Scheduler", fmt.Sprintf(
		"resolution_check: checked=%d resolved=%d cancelled=%d",
		summary.Checked, summary.Resolved, summary.Cancelled,
	))
}

func (s *Scheduler) runTradeSync(ctx context.Context) {
	result, err := s.Reconciler.SyncKalshiTrades(ctx)
	if err != nil {
		logger.Error("Scheduler", fmt.Sprintf("trade_sync failed: %v", err))
		if s.Notifier != nil {
			s.Notifier.SendFailureAlert(ctx, "trade_sync", err)
		}
		return
	}
	logger.Info("Scheduler", fmt.Sprintf(
		"trade_sync: found=%d created=%d updated=%d skipped=%d",
		result.Found, result.Created, result.Updated, result.Skipped,
	))
}

func (s *Scheduler) runDailyDigest(ctx context.Context) {
	if s.Notifier != nil {
		s.Notifier.SendDailyDigest(ctx, s.Store)
	}
}
