package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeMaintainer struct {
	mu         sync.Mutex
	reclaims   int
	purges     int
	reclaimErr error
}

func (f *fakeMaintainer) ReclaimExpired(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaims++
	return 1, f.reclaimErr
}

func (f *fakeMaintainer) PurgeExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges++
	return 1, nil
}

func (f *fakeMaintainer) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reclaims, f.purges
}

func TestRunOnceForcesBothSweeps(t *testing.T) {
	fm := &fakeMaintainer{}
	s := New(fm, Config{})

	s.RunOnce(context.Background())
	if r, p := fm.counts(); r != 1 || p != 1 {
		t.Errorf("reclaims=%d purges=%d, want 1 and 1", r, p)
	}

	s.RunOnce(context.Background())
	if r, p := fm.counts(); r != 2 || p != 2 {
		t.Errorf("reclaims=%d purges=%d, want 2 and 2", r, p)
	}
}

func TestTickHonorsIntervals(t *testing.T) {
	fm := &fakeMaintainer{}
	s := New(fm, Config{
		ReclaimInterval: time.Millisecond,
		PurgeInterval:   time.Hour,
	})

	s.tick(context.Background(), false)
	time.Sleep(2 * time.Millisecond)
	s.tick(context.Background(), false)

	r, p := fm.counts()
	if r != 2 {
		t.Errorf("reclaims = %d, want 2", r)
	}
	// Purge interval has not elapsed since the first tick.
	if p != 1 {
		t.Errorf("purges = %d, want 1", p)
	}
}

func TestSweepErrorDoesNotStopScheduler(t *testing.T) {
	fm := &fakeMaintainer{reclaimErr: errors.New("connection refused")}
	s := New(fm, Config{})

	// A failing reclaim is logged, and the purge sweep still runs.
	s.RunOnce(context.Background())
	if r, p := fm.counts(); r != 1 || p != 1 {
		t.Errorf("reclaims=%d purges=%d, want 1 and 1", r, p)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fm := &fakeMaintainer{}
	s := New(fm, Config{Interval: 2 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if r, _ := fm.counts(); r == 0 {
		t.Error("Run never swept")
	}
}
