package entitystore

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/go-digitaltwin/go-entitystore/entity"
)

// A Builder is used to safely and elegantly compose a Store from independent
// features: state slices, entity collections, computed values and bridges.
// Each feature function (WithState, WithCollection, WithComputed, WithBridge)
// registers one named slice and returns its typed key.
//
// The declaration order of features is the registration order of the store;
// it determines the order in which changed slices are reported, and nothing
// else. Computed values may reference slices declared later through Named (or
// the *Named key constructors); names are resolved once, by Build.
//
// The zero value is ready to use.
// Do not copy a non-zero Builder.
type Builder struct {
	features []feature
	err      error
	// address of receiver - to detect copies by value.
	// see copyCheck below for details.
	addr *Builder
}

type feature struct {
	name     string
	kind     Kind
	initial  any
	selector any
	compute  func(Reader) any
	sources  []string
	// expected kinds of the sources, zero when unknown (Named).
	sourceKinds []Kind
	bridge      func(*Store) bridge
}

func (b *Builder) add(f feature) {
	b.copyCheck()
	for _, g := range b.features {
		if g.name == f.name {
			b.fail(fmt.Errorf("%w: %q", ErrDuplicateName, f.name))
			return
		}
	}
	b.features = append(b.features, f)
}

func (b *Builder) fail(err error) {
	b.err = errors.Join(b.err, err)
}

// WithState registers a plain state slice holding values of type V, starting
// with the given initial value.
func WithState[V any](b *Builder, name string, initial V) StateKey[V] {
	b.add(feature{name: name, kind: KindState, initial: initial})
	return StateKey[V]{name: name}
}

// WithCollection registers a named entity collection, starting with the given
// entities. A nil selector selects entity.DefaultSelector.
//
// Duplicated identifiers among the initial entities fail Build with
// ErrDuplicateIdentifier.
func WithCollection[K comparable, E any](b *Builder, name string, sel entity.Selector[K, E], initial ...E) CollectionKey[K, E] {
	if sel == nil {
		sel = entity.DefaultSelector[K, E]()
	}
	c, err := entity.New(sel, initial...)
	if err != nil {
		b.fail(fmt.Errorf("collection %q: %w", name, err))
	}
	b.add(feature{name: name, kind: KindCollection, initial: collectionBox[K, E]{c: c}, selector: sel})
	return CollectionKey[K, E]{name: name}
}

// WithComputed registers a computed value derived by fn from the given sources.
// The function is evaluated lazily on reads, and again only after one of its
// transitive sources changed; it must be a pure function of its sources, read
// through the From methods of their keys.
//
// Build fails with ErrCyclicComputation if the computed values depend on each
// other in a cycle, and with ErrUnknownSlice or ErrUnknownCollection if a
// source was never registered.
func WithComputed[V any](b *Builder, name string, fn func(Reader) V, sources ...Source) ComputedKey[V] {
	names := make([]string, len(sources))
	kinds := make([]Kind, len(sources))
	for i, s := range sources {
		names[i] = s.SourceName()
		if k, ok := s.(interface{ sourceKind() Kind }); ok {
			kinds[i] = k.sourceKind()
		}
	}
	b.add(feature{
		name:        name,
		kind:        KindComputed,
		compute:     func(r Reader) any { return fn(r) },
		sources:     names,
		sourceKinds: kinds,
	})
	return ComputedKey[V]{name: name}
}

// Build resolves the registered features into a new, inactive Store. Bridges
// subscribe to their sources once the store is activated (see Store.Activate).
//
// Build may be called more than once; each call returns an independent Store.
func (b *Builder) Build() (*Store, error) {
	b.copyCheck()
	if b.err != nil {
		return nil, fmt.Errorf("build: %w", b.err)
	}

	s := &Store{
		id:     uuid.New(),
		slices: make(map[string]sliceInfo, len(b.features)),
	}
	s.graph = &graph{
		nodes:     make(map[string]*node, len(b.features)),
		storeAttr: attribute.NewSet(attribute.String(storeIDAttr, s.id.String())),
	}
	initial := &Snapshot{slots: make(map[string]slot)}

	for _, f := range b.features {
		s.order = append(s.order, f.name)
		s.slices[f.name] = sliceInfo{kind: f.kind, selector: f.selector}
		n := &node{name: f.name, kind: f.kind}
		if f.kind == KindComputed {
			n.compute = f.compute
			n.dirty = true
		} else {
			initial.slots[f.name] = slot{value: f.initial}
		}
		s.graph.nodes[f.name] = n
		if f.bridge != nil {
			s.bridges = append(s.bridges, f.bridge(s))
		}
	}

	var errs []error
	for _, f := range b.features {
		n := s.graph.nodes[f.name]
		for i, name := range f.sources {
			src, ok := s.graph.nodes[name]
			if want := f.sourceKinds[i]; !ok || (want != 0 && want != src.kind) {
				unknown := ErrUnknownSlice
				if want == KindCollection {
					unknown = ErrUnknownCollection
				}
				errs = append(errs, fmt.Errorf("computed %q: source %q: %w", f.name, name, unknown))
				continue
			}
			if n.dependsOn(name) {
				continue
			}
			n.sources = append(n.sources, src)
			src.dependents = append(src.dependents, n)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("build: %w", errors.Join(errs...))
	}
	if path := findCycle(s.graph, s.order); path != nil {
		return nil, fmt.Errorf("build: %w", &CycleError{Path: path})
	}

	s.current.Store(initial)
	return s, nil
}

// Noescape hides a pointer from escape analysis.
// It is the identity function, but escape analysis does not think the
// output depends on the input.
// Noescape is inlined and currently compiles down to zero instructions.
// USE CAREFULLY!
// This was copied from the runtime; see issues 23382 and 7921 (github.com/golang/go).
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0) //nolint:govet,staticcheck,gosec // copied from the standard library
}

func (b *Builder) copyCheck() {
	if b.addr == nil {
		// This hack works around a failing of Go's escape analysis
		// that was causing b to escape and be heap-allocated.
		// See issue 23382 (github.com/golang/go).
		// once issue 7921 is fixed, this should be reverted to just "b.addr = b".
		b.addr = (*Builder)(noescape(unsafe.Pointer(b)))
	} else if b.addr != b {
		panic("entitystore: illegal use of non-zero Builder copied by value")
	}
}
