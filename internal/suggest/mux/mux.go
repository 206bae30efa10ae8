// Package mux implements the QueryMultiplexer: fan a single query out to N
// sources through a PerTagExecutor, enforce a per-source timeout, and
// deliver exactly one result per source to a receiver
package mux

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/exec"
	"suggestfed/internal/suggest/source"
)

// Receiver is notified as source queries start and complete
type Receiver interface {
	// OnSourceStart fires when a source's query task begins executing
	OnSourceStart(s domain.SourceIdentifier)
	// OnNewSuggestionResult delivers exactly one result per dispatched source,
	// in completion order (not the order sources were supplied)
	OnNewSuggestionResult(s domain.SourceIdentifier, result domain.SuggestionResult)
}

// Config holds the query-fanout knobs from spec §6
type Config struct {
	MaxResultsPerSource     int
	WebResultsOverrideLimit int
	SourceTimeoutMs         int
}

// QueryMultiplexer fans one query out to many sources
type QueryMultiplexer struct {
	exec    *exec.PerTagExecutor
	delayed *exec.DelayedExecutor
	cfg     Config
	tracer  trace.Tracer
}

// New builds a QueryMultiplexer backed by e for concurrency and d for timeouts
func New(e *exec.PerTagExecutor, d *exec.DelayedExecutor, cfg Config) *QueryMultiplexer {
	return &QueryMultiplexer{exec: e, delayed: d, cfg: cfg, tracer: otel.Tracer("suggestfed/mux")}
}

// Dispatch is the in-flight handle for one Query call; Cancel stops every
// source task that has not yet delivered a result
type Dispatch struct {
	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	delivered map[string]bool
	closed    bool
}

// Cancel cancels all in-flight per-source tasks for this dispatch. Idempotent
func (d *Dispatch) Cancel() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	cancels := d.cancels
	d.cancels = map[string]context.CancelFunc{}
	d.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// Query issues prefix to every source and returns a handle that can cancel
// the whole fan-out. Each source's result reaches recv exactly once
func (m *QueryMultiplexer) Query(ctx context.Context, prefix string, sources []source.Source, recv Receiver) *Dispatch {
	d := &Dispatch{cancels: map[string]context.CancelFunc{}, delivered: map[string]bool{}}
	for _, s := range sources {
		m.dispatchOne(ctx, prefix, s, recv, d)
	}
	return d
}

func (m *QueryMultiplexer) dispatchOne(parent context.Context, prefix string, s source.Source, recv Receiver, d *Dispatch) {
	id := s.Identifier()
	tag := id.String()

	maxResults := m.cfg.MaxResultsPerSource
	if s.IsWeb() {
		maxResults = m.cfg.WebResultsOverrideLimit
	}
	queryLimit := maxResults

	taskCtx, cancel := context.WithCancel(parent)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel()
		return
	}
	d.cancels[tag] = cancel
	d.mu.Unlock()

	timeout := time.Duration(m.cfg.SourceTimeoutMs) * time.Millisecond
	scheduledAt := time.Now()

	deliver := func(res domain.SuggestionResult) {
		d.mu.Lock()
		if d.delivered[tag] {
			d.mu.Unlock()
			return
		}
		d.delivered[tag] = true
		delete(d.cancels, tag)
		d.mu.Unlock()
		recv.OnNewSuggestionResult(id, res)
	}

	// step 6: a submission sitting pending in the executor's queue must still
	// time out if it has not started by sourceTimeoutMs after scheduling
	queuedTimeout := m.delayed.PostAtTime(func() {
		cancel()
		deliver(domain.CanceledResult())
	}, scheduledAt.Add(timeout))

	queued := m.exec.Execute(tag, func() {
		queuedTimeout.Cancel()
		recv.OnSourceStart(id)

		// step 3/4: once running, a fresh timeout covers the execution itself
		runTimeout := m.delayed.PostAtTime(func() {
			cancel()
			deliver(domain.CanceledResult())
		}, time.Now().Add(timeout))
		defer runTimeout.Cancel()

		spanCtx, span := m.tracer.Start(taskCtx, "suggest.source.query",
			trace.WithAttributes(attribute.String("source", tag), attribute.String("prefix", prefix)))
		defer span.End()

		res, err := s.Query(spanCtx, prefix, maxResults, queryLimit)
		switch {
		case taskCtx.Err() != nil:
			deliver(domain.CanceledResult())
		case err != nil:
			span.RecordError(err)
			deliver(domain.ErrorResult())
		default:
			deliver(res)
		}
	})
	if !queued {
		// dispatched immediately; the pending-queue timeout above is now
		// superseded by the run timeout armed inside the runnable
		queuedTimeout.Cancel()
	}
}
