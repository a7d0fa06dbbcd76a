package entitystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/metric"
)

// Status is the state of a bridged slice.
type Status int

const (
	// Pending means the source delivered no event yet.
	Pending Status = iota
	// Ready means the last event delivered a value.
	Ready
	// Failed means the last event delivered a failure.
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Async is the value of a bridged slice: the outcome of the last event
// delivered by its source.
//
// When Failed, Err is a *SourceError and Value keeps the last delivered value,
// if any.
type Async[V any] struct {
	Status Status
	Value  V
	Err    error
}

func (a Async[V]) IsPending() bool { return a.Status == Pending }
func (a Async[V]) IsReady() bool   { return a.Status == Ready }
func (a Async[V]) IsFailed() bool  { return a.Status == Failed }

func (a Async[V]) next(slice string, e Event[V]) Async[V] {
	if e.Err != nil {
		return Async[V]{Status: Failed, Value: a.Value, Err: &SourceError{Slice: slice, Err: e.Err}}
	}
	return Async[V]{Status: Ready, Value: e.Value}
}

// An Event is one discrete delivery of an external source: either a value, or
// a failure when Err is not nil.
type Event[V any] struct {
	Value V
	Err   error
}

// Value returns an Event delivering v.
func Value[V any](v V) Event[V] {
	return Event[V]{Value: v}
}

// Failure returns an Event delivering err.
func Failure[V any](err error) Event[V] {
	return Event[V]{Err: err}
}

// An EventSource is an external push-based source of events. Subscribe starts
// the delivery of events to emit and returns a function stopping it.
//
// The context passed to Subscribe is cancelled when the subscription is
// released; sources may rely on either. Events must be emitted sequentially,
// never concurrently.
type EventSource[V any] interface {
	Subscribe(ctx context.Context, emit func(Event[V])) (unsubscribe func(), err error)
}

// SourceFunc adapts an ordinary function to an EventSource.
type SourceFunc[V any] func(ctx context.Context, emit func(Event[V])) (unsubscribe func(), err error)

func (f SourceFunc[V]) Subscribe(ctx context.Context, emit func(Event[V])) (func(), error) {
	return f(ctx, emit)
}

// ChanSource returns an EventSource delivering the events received from ch,
// until ch is closed or the subscription is released.
func ChanSource[V any](ch <-chan Event[V]) EventSource[V] {
	return SourceFunc[V](func(ctx context.Context, emit func(Event[V])) (func(), error) {
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case e, ok := <-ch:
					if !ok {
						return
					}
					emit(e)
				}
			}
		}()
		return func() {
			cancel()
			<-done
		}, nil
	})
}

// WithBridge registers a state slice fed by the events of src, starting as
// Pending. Every event dispatches its own patch, in the order src delivers
// them: values make the slice Ready, failures make it Failed with an error
// wrapping ErrExternalSource.
//
// The store subscribes to src exactly once when activated, and unsubscribes
// exactly once when closed; events delivered after Close are dropped.
func WithBridge[V any](b *Builder, name string, src EventSource[V]) StateKey[Async[V]] {
	key := StateKey[Async[V]]{name: name}
	b.add(feature{
		name:    name,
		kind:    KindState,
		initial: Async[V]{},
		bridge: func(s *Store) bridge {
			return &bridgeOf[V]{store: s, key: key, src: src}
		},
	})
	return key
}

// A bridge is the subscription of a store to one external source.
type bridge interface {
	subscribe(ctx context.Context) error
	unsubscribe()
}

type bridgeOf[V any] struct {
	store *Store
	key   StateKey[Async[V]]
	src   EventSource[V]

	mu         sync.Mutex
	subscribed bool
	closed     bool
	cancel     context.CancelFunc
	release    func()
}

func (b *bridgeOf[V]) subscribe(ctx context.Context) error {
	b.mu.Lock()
	if b.subscribed || b.closed {
		b.mu.Unlock()
		return nil
	}
	b.subscribed = true
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	release, err := b.src.Subscribe(ctx, b.emitter(ctx))
	if err != nil {
		cancel()
		return fmt.Errorf("bridge %q: subscribe: %w", b.key.name, err)
	}

	b.mu.Lock()
	if b.closed {
		// Closed while subscribing.
		b.mu.Unlock()
		if release != nil {
			release()
		}
		return nil
	}
	b.release = release
	b.mu.Unlock()
	return nil
}

func (b *bridgeOf[V]) unsubscribe() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cancel, release := b.cancel, b.release
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if release != nil {
		release()
	}
}

func (b *bridgeOf[V]) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *bridgeOf[V]) emitter(ctx context.Context) func(Event[V]) {
	logger := component.Logger(ctx).With(slog.String("bridge", b.key.name))
	return func(e Event[V]) {
		bridgeEvents.Add(ctx, 1, metric.WithAttributeSet(b.store.graph.storeAttr))
		if b.isClosed() {
			logger.Debug("Event delivered after teardown, dropped")
			return
		}
		if e.Err != nil {
			logger.Warn("External source delivered a failure", slog.Any("error", e.Err))
		}

		err := b.store.Dispatch(ctx, b.key.Update(func(a Async[V]) Async[V] {
			return a.next(b.key.name, e)
		}))
		switch {
		case errors.Is(err, ErrClosed):
			logger.Debug("Event delivered during teardown, dropped")
		case err != nil:
			logger.Error("Couldn't apply bridged event", slog.Any("error", err))
		}
	}
}
