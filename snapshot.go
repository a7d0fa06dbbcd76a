package entitystore

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-digitaltwin/go-entitystore/entity"
)

// Kind classifies the slices of a store.
type Kind int

const (
	// KindState is a plain value slice (see WithState and WithBridge).
	KindState Kind = iota + 1
	// KindCollection is a named entity collection (see WithCollection).
	KindCollection
	// KindComputed is a derived, read-only value (see WithComputed).
	KindComputed
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindCollection:
		return "collection"
	case KindComputed:
		return "computed"
	default:
		return "unknown"
	}
}

// Snapshot is the immutable value of every state slice and collection of a
// store at one instant. Computed values are not part of a snapshot; they are
// derived from it on demand.
//
// Snapshots are safe for concurrent use. Do not modify the values read from a
// snapshot when they are reference types.
type Snapshot struct {
	version uint64
	slots   map[string]slot
}

type slot struct {
	value any
	// rev is the snapshot version at which the slice last changed.
	rev uint64
}

// Version returns the number of changing dispatches that produced s. The
// snapshot of a freshly built store has version 0.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Revision returns the snapshot version at which the named slice last changed.
// It reports ok == false for names that are not state slices or collections.
func (s *Snapshot) Revision(name string) (rev uint64, ok bool) {
	v, ok := s.slots[name]
	return v.rev, ok
}

// Names returns the sorted names of the state slices and collections held by s.
func (s *Snapshot) Names() []string {
	return slices.Sorted(maps.Keys(s.slots))
}

func (s *Snapshot) value(name string) (any, bool) {
	v, ok := s.slots[name]
	return v.value, ok
}

// A Patch is one step of a dispatch: it reads and replaces slices of the
// in-flight draft of the store. Patches are created by the methods of the keys
// returned by the builder (e.g. CollectionKey.AddOne, StateKey.Set).
//
// A Patch must not retain its Tx.
type Patch func(tx *Tx) error

// A Tx is the in-flight draft of a dispatch. It starts with the current
// snapshot of the store and collects replaced slices; the store swaps in the
// resulting snapshot only if every patch of the dispatch succeeds.
type Tx struct {
	store     *Store
	base      *Snapshot
	overrides map[string]any
}

// Base returns the snapshot the dispatch started from.
func (tx *Tx) Base() *Snapshot {
	return tx.base
}

func (tx *Tx) lookup(name string) (any, bool) {
	if v, ok := tx.overrides[name]; ok {
		return v, true
	}
	return tx.base.value(name)
}

func (tx *Tx) put(name string, v any) {
	if tx.overrides == nil {
		tx.overrides = make(map[string]any)
	}
	tx.overrides[name] = v
}

// commit builds the snapshot that follows the draft, along with the names of
// the slices that actually changed, in registration order. If nothing
// changed, commit returns the base snapshot.
func (tx *Tx) commit(order []string) (*Snapshot, []string) {
	var changed []string
	for _, name := range order {
		v, ok := tx.overrides[name]
		if !ok {
			continue
		}
		old, _ := tx.base.value(name)
		if c, ok := v.(erasedCollection); ok && c.same(old) {
			continue
		}
		changed = append(changed, name)
	}
	if len(changed) == 0 {
		return tx.base, nil
	}

	next := &Snapshot{
		version: tx.base.version + 1,
		slots:   maps.Clone(tx.base.slots),
	}
	for _, name := range changed {
		next.slots[name] = slot{value: tx.overrides[name], rev: next.version}
	}
	return next, changed
}

// erasedCollection lets the store handle collections without knowing their
// identifier and entity types.
type erasedCollection interface {
	same(other any) bool
	size() int
	// diff reports the identifiers present in only one of the collections.
	diff(old any) (added, removed []string)
}

type collectionBox[K comparable, E any] struct {
	c entity.Collection[K, E]
}

func (b collectionBox[K, E]) same(other any) bool {
	o, ok := other.(collectionBox[K, E])
	return ok && b.c.Same(o.c)
}

func (b collectionBox[K, E]) size() int {
	return b.c.Len()
}

func (b collectionBox[K, E]) diff(old any) (added, removed []string) {
	o, _ := old.(collectionBox[K, E])
	for _, id := range b.c.IDs() {
		if !o.c.Has(id) {
			added = append(added, fmt.Sprint(id))
		}
	}
	for _, id := range o.c.IDs() {
		if !b.c.Has(id) {
			removed = append(removed, fmt.Sprint(id))
		}
	}
	return added, removed
}
