// Package events implements the task event emitter (C13): a pluggable,
// best-effort fan-out of structured TaskEvents to local subscribers.
package events

import (
	"context"
	"sync/atomic"

	"github.com/agentcore/nexuscore/pkg/models"
)

// Sink receives task events as they're emitted. Implementations must be
// safe to call from multiple goroutines and must not block the caller
// for long: a slow or failing sink must never affect task outcome.
type Sink interface {
	Emit(ctx context.Context, e models.TaskEvent)
}

// NopSink discards every event. The default when no sink is configured.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(ctx context.Context, e models.TaskEvent) {}

// ChanSink forwards events to a buffered channel, dropping on backpressure
// rather than blocking the emitting task. Intended for tests and local
// subscribers that can tolerate drops.
type ChanSink struct {
	ch      chan<- models.TaskEvent
	dropped atomic.Uint64
}

// NewChanSink wraps ch. The channel should be buffered; an unbuffered
// channel will drop nearly every event under any contention.
func NewChanSink(ch chan<- models.TaskEvent) *ChanSink {
	return &ChanSink{ch: ch}
}

// Emit sends e to the channel, dropping it if the channel is full or ctx
// is already done.
func (s *ChanSink) Emit(ctx context.Context, e models.TaskEvent) {
	select {
	case s.ch <- e:
	case <-ctx.Done():
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events dropped due to a full channel.
func (s *ChanSink) Dropped() uint64 {
	return s.dropped.Load()
}

// CallbackSink wraps a function as a Sink. This is the host-bridge shape:
// a GUI or other embedding host registers a callback that receives every
// event inline.
type CallbackSink struct {
	fn func(ctx context.Context, e models.TaskEvent)
}

// NewCallbackSink wraps fn. A nil fn makes Emit a no-op.
func NewCallbackSink(fn func(ctx context.Context, e models.TaskEvent)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Emit calls the wrapped function, recovering from any panic so a
// misbehaving host callback can't take down the emitting task.
func (s *CallbackSink) Emit(ctx context.Context, e models.TaskEvent) {
	if s.fn == nil {
		return
	}
	defer func() { _ = recover() }()
	s.fn(ctx, e)
}

// MultiSink fans an event out to every configured sink. One sink's panic
// or slowness does not prevent the others from receiving the event.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink over sinks, filtering out nils.
func NewMultiSink(sinks ...Sink) *MultiSink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Emit dispatches e to every sink, each guarded against panics so one
// bad sink cannot stop delivery to the rest.
func (s *MultiSink) Emit(ctx context.Context, e models.TaskEvent) {
	for _, sink := range s.sinks {
		emitSafely(ctx, sink, e)
	}
}

func emitSafely(ctx context.Context, sink Sink, e models.TaskEvent) {
	defer func() { _ = recover() }()
	sink.Emit(ctx, e)
}
