// Package normalize maps raw billing export rows into normalized cost record batches.
//
// Every stream is lazy: nothing is opened until the caller starts ranging over it, and the
// source session is closed when the stream finishes, fails, or the caller stops early.
// The last batch of a successful stream is always cost.EndOfStream().
package normalize

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/source"
)

// Normalizer builds get_data streams. It holds no per-task state and is safe to share.
type Normalizer struct {
	cfg    config.Config
	opener source.Opener
	now    func() time.Time
}

func New(cfg config.Config, opener source.Opener) *Normalizer {
	return &Normalizer{cfg: cfg, opener: opener, now: time.Now}
}

// WithClock returns a copy reading the current time from now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	c := *n
	c.now = now
	return &c
}

// Stream dispatches on the task options variant.
func (n *Normalizer) Stream(ctx context.Context, options plugin.Options, secret plugin.SecretData, opts task.Options) iter.Seq2[cost.Batch, error] {
	switch o := opts.(type) {
	case task.BigQueryOptions:
		return n.BigQuery(ctx, options, secret, o)
	case task.StorageOptions:
		return n.Storage(ctx, secret, o)
	default:
		return failed(plugin.RequiredParameter("task_options"))
	}
}

func failed(err error) iter.Seq2[cost.Batch, error] {
	return func(yield func(cost.Batch, error) bool) {
		yield(cost.Batch{}, err)
	}
}

type phase string

const (
	phaseInit        phase = "INIT"
	phaseSessionOpen phase = "SESSION_OPEN"
	phaseValidating  phase = "VALIDATING_INPUTS"
	phaseStreaming   phase = "STREAMING"
	phaseDone        phase = "DONE"
	phaseError       phase = "ERROR"
)

// run tracks one stream through its phases for logging.
type run struct {
	phase phase
	attrs []any
}

func newRun(attrs ...any) *run {
	return &run{phase: phaseInit, attrs: attrs}
}

func (r *run) enter(p phase) {
	r.phase = p
	slog.Debug("cost.get_data.phase", append([]any{"phase", p}, r.attrs...)...)
}

// fail logs err with the phase it interrupted and returns it unchanged.
func (r *run) fail(err error) error {
	from := r.phase
	r.phase = phaseError
	slog.Error("cost.get_data.error", append([]any{"phase", from, "error", err}, r.attrs...)...)
	return err
}
