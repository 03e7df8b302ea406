package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestContainsInt(t *testing.T) {
	if !containsInt([]int{8, 14, 20}, 14) {
		t.Fatal("expected 14 to be found")
	}
	if containsInt([]int{8, 14, 20}, 9) {
		t.Fatal("expected 9 to not be found")
	}
	if containsInt(nil, 1) {
		t.Fatal("expected empty slice to never contain a value")
	}
}

func TestRunGuardedSkipsOverlappingFire(t *testing.T) {
	var running atomic.Bool
	running.Store(true) // simulate a job already in flight

	var ran atomic.Bool
	s := &Scheduler{}
	s.runGuarded(context.Background(), "test_job", &running, func(ctx context.Context) {
		ran.Store(true)
	})

	if ran.Load() {
		t.Fatal("expected runGuarded to skip the job while running is already true")
	}
}

func TestRunGuardedRunsAndResetsFlag(t *testing.T) {
	var running atomic.Bool
	var ran atomic.Bool
	s := &Scheduler{}

	s.runGuarded(context.Background(), "test_job", &running, func(ctx context.Context) {
		ran.Store(true)
	})

	if !ran.Load() {
		t.Fatal("expected the job to run")
	}
	if running.Load() {
		t.Fatal("expected the running flag to be reset to false after completion")
	}
}

func TestRunGuardedRecoversPanicAndResetsFlag(t *testing.T) {
	var running atomic.Bool
	s := &Scheduler{}

	done := make(chan struct{})
	go func() {
		s.runGuarded(context.Background(), "panicky_job", &running, func(ctx context.Context) {
			panic("boom")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runGuarded did not return after a panicking job")
	}

	if running.Load() {
		t.Fatal("expected the running flag to be reset to false even after a panic")
	}
}

func TestRunGuardedAllowsSecondFireOnceFirstCompletes(t *testing.T) {
	var running atomic.Bool
	var mu sync.Mutex
	count := 0
	s := &Scheduler{}

	for i := 0; i < 2; i++ {
		s.runGuarded(context.Background(), "seq_job", &running, func(ctx context.Context) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	if count != 2 {
		t.Fatalf("expected both sequential fires to run, got count=%d", count)
	}
}
