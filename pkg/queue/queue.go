// Package queue is the embeddable surface of steady. A collaborator process
// (registration forms, admin tooling, a worker pool) constructs a Queue,
// registers handlers, starts it, and enqueues or polls jobs through it.
//
// A Queue is an explicitly constructed dependency with a Start/Stop
// lifecycle, passed by reference to everything that needs it; there is no
// package-level instance. All state lives in Postgres, so any number of
// processes may run a Queue against the same database: the atomic claim
// partitions work between them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steadyhq/steady/internal/dispatch"
	"github.com/steadyhq/steady/internal/scheduler"
	"github.com/steadyhq/steady/internal/store"
)

// Handler processes jobs of one name. See dispatch.Handler.
type Handler = dispatch.Handler

// HandlerFunc adapts a plain function to a named Handler.
func HandlerFunc(name string, fn func(ctx context.Context, payload json.RawMessage) error) Handler {
	return dispatch.Func(name, fn)
}

// Permanent wraps a handler error so the job dead-letters without retries.
func Permanent(err error) error {
	return dispatch.Permanent(err)
}

// Job and JobError are the store types surfaced by Status.
type (
	Job      = store.Job
	JobError = store.JobError
)

// Job states as reported by Status.
const (
	StateCreated   = store.StateCreated
	StateActive    = store.StateActive
	StateCompleted = store.StateCompleted
	StateRetry     = store.StateRetry
	StateFailed    = store.StateFailed
	StateCancelled = store.StateCancelled
)

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	return store.IsUnavailable(err)
}

var (
	// ErrNotStarted is returned by operations on a Queue before Start.
	ErrNotStarted = errors.New("queue not started")

	// ErrJobNotFound mirrors the store sentinel for collaborator convenience.
	ErrJobNotFound = store.ErrJobNotFound

	// ErrInvalidState mirrors the store sentinel for collaborator convenience.
	ErrInvalidState = store.ErrInvalidState
)

// Config configures an embedded queue instance.
type Config struct {
	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// MaxConns bounds the shared connection pool (default 10).
	MaxConns int32

	// PollInterval is the dispatch poll cadence when idle (default 2s).
	PollInterval time.Duration

	// BatchSize bounds jobs claimed per poll (default 10).
	BatchSize int

	// Lease is how long a claim stays valid without resolution before the
	// maintenance sweep may hand the job to another worker (default 60s).
	Lease time.Duration

	// ReclaimInterval and PurgeInterval tune the maintenance sweeps. Set
	// Maintenance to false to disable them in this process entirely (some
	// other process must run them then).
	Maintenance     bool
	ReclaimInterval time.Duration
	PurgeInterval   time.Duration
}

// DefaultConfig returns a Config with sensible defaults (maintenance on).
func DefaultConfig() Config {
	return Config{
		MaxConns:     10,
		PollInterval: 2 * time.Second,
		BatchSize:    10,
		Lease:        store.DefaultLease,
		Maintenance:  true,
	}
}

// Queue owns the store connection pool and the background loops. Construct
// with New, register handlers, then Start.
type Queue struct {
	config   Config
	handlers []Handler

	mu      sync.Mutex
	store   *store.Store
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a Queue. Nothing touches the database until Start.
func New(config Config) *Queue {
	def := DefaultConfig()
	if config.MaxConns <= 0 {
		config.MaxConns = def.MaxConns
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Lease <= 0 {
		config.Lease = def.Lease
	}
	return &Queue{config: config}
}

// Register adds handlers. Must be called before Start; a handler name must
// be unique within the Queue.
func (q *Queue) Register(handlers ...Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		panic("queue: Register after Start")
	}
	q.handlers = append(q.handlers, handlers...)
}

// Start opens the connection pool, runs migrations, and launches the
// dispatch loop (when handlers are registered) and the maintenance
// scheduler. ctx bounds only the startup work.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue already started")
	}

	s, err := store.Open(ctx, store.Config{
		DatabaseURL:    q.config.DatabaseURL,
		MaxConns:       q.config.MaxConns,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	q.store = s

	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	if len(q.handlers) > 0 {
		d := dispatch.New(s, dispatch.Config{
			PollInterval: q.config.PollInterval,
			BatchSize:    q.config.BatchSize,
			Lease:        q.config.Lease,
		})
		d.Register(q.handlers...)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			d.Run(runCtx)
		}()
	}

	if q.config.Maintenance {
		sched := scheduler.New(s, scheduler.Config{
			ReclaimInterval: q.config.ReclaimInterval,
			PurgeInterval:   q.config.PurgeInterval,
		})
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			sched.Run(runCtx)
		}()
	}

	q.started = true
	return nil
}

// Stop halts the background loops and closes the pool. ctx bounds how long
// Stop waits for in-flight handlers to resolve; jobs still running after
// that are recovered later by the lease sweep.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return ErrNotStarted
	}

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		q.store.Close()
		q.started = false
		return fmt.Errorf("stop queue: %w", ctx.Err())
	}

	q.store.Close()
	q.started = false
	return nil
}

// Option configures a single enqueue call.
type Option func(*store.EnqueueRequest)

// WithPriority sets the job priority; higher values are claimed first.
func WithPriority(p int) Option {
	return func(req *store.EnqueueRequest) { req.Priority = p }
}

// WithRetryLimit sets how many attempts the job is allowed.
func WithRetryLimit(n int) Option {
	return func(req *store.EnqueueRequest) { req.RetryLimit = &n }
}

// WithRetryDelay sets the base delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(req *store.EnqueueRequest) { req.RetryDelay = &d }
}

// WithBackoff doubles the retry delay on every failed attempt.
func WithBackoff() Option {
	return func(req *store.EnqueueRequest) { req.UseBackoff = true }
}

// WithStartAfter defers eligibility until t. Derive t from Queue.Now, not
// the local clock, when precision matters.
func WithStartAfter(t time.Time) Option {
	return func(req *store.EnqueueRequest) { req.StartAfter = &t }
}

// WithKeepFor sets the retention horizon for the terminal job row.
func WithKeepFor(d time.Duration) Option {
	return func(req *store.EnqueueRequest) { req.KeepFor = &d }
}

// Enqueue durably creates a job and returns its id. payload is marshaled to
// JSON and passed to the handler verbatim. On store outage the error
// satisfies IsUnavailable; the caller decides whether to fall back to
// synchronous execution or reject its own request.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts ...Option) (string, error) {
	s, err := q.activeStore()
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req := store.EnqueueRequest{Name: name, Payload: raw}
	for _, opt := range opts {
		opt(&req)
	}
	return s.Enqueue(ctx, req)
}

// Status returns the job's current state, retry count, timestamps and
// attempt history. Safe to poll at arbitrary frequency.
func (q *Queue) Status(ctx context.Context, jobID string) (*store.Job, error) {
	s, err := q.activeStore()
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, jobID)
}

// Cancel cancels a job that has not started running. ErrInvalidState is
// returned once the job is active or terminal.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	s, err := q.activeStore()
	if err != nil {
		return err
	}
	return s.Cancel(ctx, jobID)
}

// Now returns the store's notion of the current time.
func (q *Queue) Now(ctx context.Context) (time.Time, error) {
	s, err := q.activeStore()
	if err != nil {
		return time.Time{}, err
	}
	return s.Now(ctx)
}

func (q *Queue) activeStore() (*store.Store, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return nil, ErrNotStarted
	}
	return q.store, nil
}
