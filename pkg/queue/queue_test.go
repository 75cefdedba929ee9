package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/steadyhq/steady/internal/store"
)

func TestOperationsBeforeStart(t *testing.T) {
	q := New(Config{DatabaseURL: "postgres://localhost/steady"})
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "email.send", nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Enqueue = %v, want ErrNotStarted", err)
	}
	if _, err := q.Status(ctx, "job_x"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Status = %v, want ErrNotStarted", err)
	}
	if err := q.Cancel(ctx, "job_x"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Cancel = %v, want ErrNotStarted", err)
	}
	if _, err := q.Now(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Now = %v, want ErrNotStarted", err)
	}
	if err := q.Stop(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop = %v, want ErrNotStarted", err)
	}
}

func TestEnqueueOptions(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opts := []Option{
		WithPriority(4),
		WithRetryLimit(7),
		WithRetryDelay(90 * time.Second),
		WithBackoff(),
		WithStartAfter(at),
		WithKeepFor(48 * time.Hour),
	}

	var req store.EnqueueRequest
	for _, opt := range opts {
		opt(&req)
	}

	if req.Priority != 4 {
		t.Errorf("priority = %d, want 4", req.Priority)
	}
	if req.RetryLimit == nil || *req.RetryLimit != 7 {
		t.Errorf("retry_limit = %v, want 7", req.RetryLimit)
	}
	if req.RetryDelay == nil || *req.RetryDelay != 90*time.Second {
		t.Errorf("retry_delay = %v, want 90s", req.RetryDelay)
	}
	if !req.UseBackoff {
		t.Error("backoff not set")
	}
	if req.StartAfter == nil || !req.StartAfter.Equal(at) {
		t.Errorf("start_after = %v, want %v", req.StartAfter, at)
	}
	if req.KeepFor == nil || *req.KeepFor != 48*time.Hour {
		t.Errorf("keep_for = %v, want 48h", req.KeepFor)
	}
}

func TestRegisterAfterStartPanics(t *testing.T) {
	q := New(Config{})
	q.started = true

	defer func() {
		if recover() == nil {
			t.Error("Register after Start did not panic")
		}
	}()
	q.Register(HandlerFunc("email.send", func(ctx context.Context, payload json.RawMessage) error {
		return nil
	}))
}
