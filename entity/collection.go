package entity

import (
	"iter"
	"maps"
	"slices"
)

// Collection is an immutable, normalized set of entities of type E identified by
// keys of type K. It keeps the insertion order of identifiers alongside a
// mapping from identifier to entity.
//
// The zero value is an empty collection ready to use. Collections are cheap to
// copy; copies share the same underlying (immutable) storage.
//
// Do not modify the values returned from its functions when they are reference
// types (e.g. entities that are maps or pointers).
type Collection[K comparable, E any] struct {
	t *table[K, E]
}

// table is the shared storage of a Collection. A table is never modified once
// it has been wrapped by a Collection.
type table[K comparable, E any] struct {
	ids      []K
	entities map[K]E
}

// New returns a Collection holding the given entities in order; it fails with
// ErrDuplicateID like AddMany.
func New[K comparable, E any](sel Selector[K, E], entities ...E) (Collection[K, E], error) {
	return AddMany(Collection[K, E]{}, entities, sel)
}

// Len returns the number of entities in c.
func (c Collection[K, E]) Len() int {
	if c.t == nil {
		return 0
	}
	return len(c.t.ids)
}

// IDs returns a copy of the ordered identifier sequence of c.
func (c Collection[K, E]) IDs() []K {
	if c.t == nil {
		return nil
	}
	return slices.Clone(c.t.ids)
}

// Get looks up the entity with the given identifier. If the identifier is not in
// c, Get indicates that by returning ok == false.
func (c Collection[K, E]) Get(id K) (e E, ok bool) {
	if c.t == nil {
		return e, false
	}
	e, ok = c.t.entities[id]
	return e, ok
}

// Has reports whether c contains an entity with the given identifier.
func (c Collection[K, E]) Has(id K) bool {
	_, ok := c.Get(id)
	return ok
}

// Entities returns the entities of c ordered by their identifier sequence.
func (c Collection[K, E]) Entities() []E {
	if c.t == nil {
		return nil
	}
	es := make([]E, 0, len(c.t.ids))
	for _, id := range c.t.ids {
		es = append(es, c.t.entities[id])
	}
	return es
}

// Map returns a copy of the identifier to entity mapping of c.
func (c Collection[K, E]) Map() map[K]E {
	if c.t == nil {
		return map[K]E{}
	}
	return maps.Clone(c.t.entities)
}

// All iterates over the entities of c in identifier order.
func (c Collection[K, E]) All() iter.Seq2[K, E] {
	return func(yield func(K, E) bool) {
		if c.t == nil {
			return
		}
		for _, id := range c.t.ids {
			if !yield(id, c.t.entities[id]) {
				return
			}
		}
	}
}

// Same reports whether c and d share the same underlying storage, i.e. whether d
// is c itself or a copy of it. Operations that do not change a collection return
// their input, so Same detects no-ops cheaply.
//
// Two empty collections are always the same.
func (c Collection[K, E]) Same(d Collection[K, E]) bool {
	if c.Len() == 0 && d.Len() == 0 {
		return true
	}
	return c.t == d.t
}

// draft returns a writable copy of c's storage with room for n more entities.
// The copy shares entities (not the containers) with c.
func (c Collection[K, E]) draft(n int) *table[K, E] {
	t := &table[K, E]{
		ids:      make([]K, 0, c.Len()+n),
		entities: make(map[K]E, c.Len()+n),
	}
	if c.t != nil {
		t.ids = append(t.ids, c.t.ids...)
		maps.Copy(t.entities, c.t.entities)
	}
	return t
}

// seal wraps a finished draft. An empty draft becomes the zero Collection.
func seal[K comparable, E any](t *table[K, E]) Collection[K, E] {
	if len(t.ids) == 0 {
		return Collection[K, E]{}
	}
	return Collection[K, E]{t: t}
}
