package entitystore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type sliceInfo struct {
	kind Kind
	// selector is the entity.Selector of a collection, nil otherwise.
	selector any
}

type lifecycle int

const (
	inactive lifecycle = iota
	active
	closed
)

// A Store holds named state slices, entity collections and computed values,
// mutated only through Dispatch. Use a Builder to construct one.
//
// Reads never block on dispatches: they load the most recently swapped-in
// Snapshot. Dispatches are serialized; at most one is in flight at a time.
//
// A Store is created inactive. Activate subscribes its bridges, and Close tears
// it down: it unsubscribes the bridges, drops the listeners and releases the
// cached computed values.
type Store struct {
	id uuid.UUID

	// mu serializes dispatches and lifecycle transitions.
	mu    sync.Mutex
	state lifecycle
	// cmu guards the computed caches. It is held while swapping the current
	// snapshot, so a computed read never pairs a new snapshot with stale dirty
	// flags.
	cmu     sync.Mutex
	current atomic.Pointer[Snapshot]

	slices map[string]sliceInfo
	order  []string
	graph  *graph

	bridges []bridge

	lmu       sync.Mutex
	listeners []*listener
}

type listener struct {
	fn func(Changed)
}

// ID returns the identifier of this store instance, carried by its Changed
// notifications.
func (s *Store) ID() uuid.UUID {
	return s.id
}

// Snapshot returns the current snapshot of the store.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Slices returns the names of every slice of the store, in registration order.
func (s *Store) Slices() []string {
	return slices.Clone(s.order)
}

// KindOf returns the kind of the named slice, or zero if s has no such slice.
func (s *Store) KindOf(name string) Kind {
	return s.slices[name].kind
}

func (s *Store) expect(name string, kind Kind) error {
	info, ok := s.slices[name]
	if ok && info.kind == kind {
		return nil
	}
	if kind == KindCollection {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return fmt.Errorf("%w: %v %q", ErrUnknownSlice, kind, name)
}

func (s *Store) computed(name string) any {
	n, ok := s.graph.nodes[name]
	if !ok || n.kind != KindComputed {
		panic(fmt.Sprintf("entitystore: %v: computed %q", ErrUnknownSlice, name))
	}
	s.cmu.Lock()
	defer s.cmu.Unlock()
	return s.graph.eval(n, s.current.Load())
}

// Dispatch applies the given patches, in order, to one draft of the current
// snapshot. If any patch fails, the draft is discarded and Dispatch returns the
// error; otherwise the resulting snapshot is swapped in, the computed values
// depending on the changed slices are marked dirty, and the listeners are
// notified synchronously, in the order they subscribed.
//
// A dispatch that changes nothing (e.g. updating a missing identifier) leaves
// the snapshot in place and notifies no one.
//
// Dispatch fails with ErrClosed once the store is closed. Listeners must not
// dispatch on the store notifying them, nor close it: both wait for the
// notifying dispatch to return.
func (s *Store) Dispatch(ctx context.Context, patches ...Patch) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Dispatch", trace.WithAttributes(
		attribute.Stringer("store.id", s.id),
		attribute.Int("patches", len(patches)),
	))
	defer span.End()

	defer func(start time.Time) {
		measureDispatch(ctx, s.graph.storeAttr, err == nil, time.Since(start))
	}(time.Now())

	logger := component.Logger(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == closed {
		span.SetStatus(codes.Error, ErrClosed.Error())
		return fmt.Errorf("dispatch: %w", ErrClosed)
	}

	tx := &Tx{store: s, base: s.current.Load()}
	for i, p := range patches {
		if err := p(tx); err != nil {
			err := fmt.Errorf("dispatch: patch %d: %w", i, err)
			span.SetStatus(codes.Error, err.Error())
			logger.Debug("Dispatch discarded", slog.Any("error", err))
			return err
		}
	}

	next, changed := tx.commit(s.order)
	if len(changed) == 0 {
		logger.Debug("Dispatch changed nothing, snapshot kept", slog.Uint64("version", tx.base.version))
		return nil
	}

	s.cmu.Lock()
	s.current.Store(next)
	invalidated := s.graph.invalidate(changed, s.order)
	s.cmu.Unlock()

	span.SetAttributes(attribute.Int64("snapshot.version", int64(next.version)))
	logger.Debug("Dispatch applied",
		slog.Uint64("version-before", tx.base.version),
		slog.Uint64("version-after", next.version),
		slog.Any("changed", changed),
	)

	s.notify(describeChanges(s, tx.base, next, changed, invalidated))
	return nil
}

func (s *Store) notify(c Changed) {
	s.lmu.Lock()
	ls := slices.Clone(s.listeners)
	s.lmu.Unlock()
	for _, l := range ls {
		l.fn(c)
	}
}

// Subscribe registers fn to be called after every changing dispatch, and
// returns a function unregistering it. Listeners are called synchronously by
// the dispatching goroutine, in the order they subscribed. A listener must not
// call Dispatch or Close on s; it may cancel itself.
func (s *Store) Subscribe(fn func(Changed)) (cancel func()) {
	l := &listener{fn: fn}
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(m *listener) bool { return m == l })
	}
}

// Activate subscribes every bridge of the store to its source. The bridges run
// detached from the cancellation of ctx, but inherit its values (e.g. the
// logger); they stop when the store is closed.
//
// If any bridge fails to subscribe, Activate closes the store and returns the
// error. Activate fails with ErrActive if the store is already active, and
// with ErrClosed after Close.
func (s *Store) Activate(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case active:
		s.mu.Unlock()
		return fmt.Errorf("activate: %w", ErrActive)
	case closed:
		s.mu.Unlock()
		return fmt.Errorf("activate: %w", ErrClosed)
	}
	s.state = active
	s.mu.Unlock()

	logger := component.Logger(ctx)
	logger.Debug("Activating store...", slog.String("store", s.id.String()), slog.Int("bridges", len(s.bridges)))

	// Bridges may emit while subscribing, hence the store lock is released.
	base := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, b := range s.bridges {
		g.Go(func() error {
			return b.subscribe(base)
		})
	}
	if err := g.Wait(); err != nil {
		_ = s.Close()
		return fmt.Errorf("activate: %w", err)
	}
	logger.Info("Store activated", slog.String("store", s.id.String()))
	return nil
}

// Close tears down the store: it unsubscribes every bridge, drops the listeners
// and releases the cached computed values. Once Close returns, no event
// delivered by a bridged source changes the store. Dispatches after Close fail
// with ErrClosed; reads keep returning the last snapshot.
//
// Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.state == closed {
		s.mu.Unlock()
		return nil
	}
	s.state = closed
	s.mu.Unlock()

	// A bridge may be blocked dispatching; it observes the closed state as soon as
	// it acquires the store lock, so unsubscribing happens without it.
	for _, b := range s.bridges {
		b.unsubscribe()
	}

	s.lmu.Lock()
	s.listeners = nil
	s.lmu.Unlock()

	s.cmu.Lock()
	s.graph.release()
	s.cmu.Unlock()
	return nil
}

// Bind returns a method of s: a function dispatching the patch built by fn from
// its argument.
func Bind[A any](s *Store, fn func(A) Patch) func(context.Context, A) error {
	return func(ctx context.Context, arg A) error {
		return s.Dispatch(ctx, fn(arg))
	}
}
