package dispatch

import (
	"context"
	"encoding/json"
)

// Handler processes jobs of one name. The dispatcher routes each claimed job
// to the handler whose Name matches the job's name and passes the payload
// through verbatim; the queue never inspects its contents.
type Handler interface {
	// Name is the unique job name this handler serves.
	Name() string

	// Run performs the actual work. Returning nil completes the job; any
	// error routes it through the retry decision, or straight to failed when
	// wrapped with Permanent.
	Run(ctx context.Context, payload json.RawMessage) error
}

type handlerFunc struct {
	name string
	fn   func(ctx context.Context, payload json.RawMessage) error
}

func (h handlerFunc) Name() string { return h.name }

func (h handlerFunc) Run(ctx context.Context, payload json.RawMessage) error {
	return h.fn(ctx, payload)
}

// Func adapts a plain function to a named Handler.
func Func(name string, fn func(ctx context.Context, payload json.RawMessage) error) Handler {
	return handlerFunc{name: name, fn: fn}
}
