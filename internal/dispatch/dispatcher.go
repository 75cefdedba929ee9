package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steadyhq/steady/internal/store"
)

// Store is the subset of the job store the dispatcher needs. Mutual exclusion
// between dispatchers lives entirely behind ClaimBatch; the dispatcher holds
// no locks of its own.
type Store interface {
	ClaimBatch(ctx context.Context, req store.ClaimRequest) ([]*store.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, errMsg string, permanent bool) (*store.ResolveResult, error)
}

// Config holds dispatcher configuration.
type Config struct {
	PollInterval time.Duration // cadence when the last poll found nothing (default 2s)
	MaxPollWait  time.Duration // ceiling for the outage retreat (default 30s)
	BatchSize    int           // jobs claimed per poll (default 10)
	Lease        time.Duration // claim validity before reclaim (default store.DefaultLease)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		MaxPollWait:  30 * time.Second,
		BatchSize:    10,
		Lease:        store.DefaultLease,
	}
}

// Dispatcher continuously claims eligible jobs and runs their handlers.
// Register all handlers before calling Run; the registry is not safe for
// concurrent mutation.
type Dispatcher struct {
	store    Store
	config   Config
	workerID string
	registry map[string]Handler
	names    []string
	tracer   trace.Tracer
}

// New creates a Dispatcher with a fresh worker identity.
func New(s Store, config Config) *Dispatcher {
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxPollWait <= 0 {
		config.MaxPollWait = def.MaxPollWait
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Lease <= 0 {
		config.Lease = def.Lease
	}
	return &Dispatcher{
		store:    s,
		config:   config,
		workerID: uuid.NewString(),
		registry: make(map[string]Handler),
		tracer:   otel.Tracer("steady/dispatch"),
	}
}

// Register adds handlers to the registry. Panics on a duplicate name.
func (d *Dispatcher) Register(handlers ...Handler) {
	for _, h := range handlers {
		name := h.Name()
		if _, ok := d.registry[name]; ok {
			panic(fmt.Sprintf("handler %s already registered", name))
		}
		d.registry[name] = h
		d.names = append(d.names, name)
	}
}

// WorkerID returns this dispatcher's claim identity.
func (d *Dispatcher) WorkerID() string {
	return d.workerID
}

// Run polls the store until ctx is cancelled. A store outage is treated as
// "no eligible jobs this cycle": the poll retreats exponentially and retries;
// jobs themselves are never failed for it.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("dispatcher started",
		"worker_id", d.workerID,
		"handlers", len(d.registry),
		"poll_interval", d.config.PollInterval,
	)

	retreat := backoff.NewExponentialBackOff()
	retreat.InitialInterval = d.config.PollInterval
	retreat.MaxInterval = d.config.MaxPollWait
	retreat.MaxElapsedTime = 0

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped", "worker_id", d.workerID)
			return
		case <-timer.C:
		}

		n, err := d.RunOnce(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			wait = retreat.NextBackOff()
			slog.Error("claim eligible jobs", "error", err, "retry_in", wait)
		case n > 0:
			// Work was available; poll again immediately to drain.
			retreat.Reset()
			wait = 0
		default:
			retreat.Reset()
			wait = d.config.PollInterval
		}
		timer.Reset(wait)
	}
}

// RunOnce claims and executes a single batch, blocking until every handler
// in the batch has resolved. Returns the number of jobs claimed.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	jobs, err := d.store.ClaimBatch(ctx, store.ClaimRequest{
		Names:    d.names,
		WorkerID: d.workerID,
		Limit:    d.config.BatchSize,
		Lease:    d.config.Lease,
	})
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job *store.Job) {
			defer wg.Done()
			d.process(ctx, job)
		}(job)
	}
	wg.Wait()

	return len(jobs), nil
}

func (d *Dispatcher) process(ctx context.Context, job *store.Job) {
	ctx, span := d.tracer.Start(ctx, "job "+job.Name, trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.name", job.Name),
		attribute.Int("job.retry_count", job.RetryCount),
	))
	defer span.End()

	err := d.invoke(ctx, job)

	// Resolution must survive a shutdown that interrupts the handler;
	// otherwise the outcome is lost and the lease sweep re-runs the job.
	resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err == nil {
		if cerr := d.store.Complete(resolveCtx, job.ID); cerr != nil {
			slog.Error("complete job", "job_id", job.ID, "error", cerr)
		}
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "handler failed")

	res, ferr := d.store.Fail(resolveCtx, job.ID, err.Error(), isPermanent(err))
	if ferr != nil {
		slog.Error("fail job", "job_id", job.ID, "error", ferr)
		return
	}
	slog.Warn("job attempt failed",
		"job_id", job.ID,
		"name", job.Name,
		"state", res.State,
		"retry_count", res.RetryCount,
		"error", err,
	)
}

// invoke runs the handler, converting panics into errors so a misbehaving
// handler fails its own job rather than the worker process.
func (d *Dispatcher) invoke(ctx context.Context, job *store.Job) (err error) {
	h, ok := d.registry[job.Name]
	if !ok {
		// Claims are restricted to registered names, so this only happens if
		// another worker class shares the table with a wider claim set.
		return Permanent(fmt.Errorf("no handler registered for %q", job.Name))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Run(ctx, job.Payload)
}
