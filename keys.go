package entitystore

import (
	"fmt"
	"reflect"

	"github.com/go-digitaltwin/go-entitystore/entity"
)

// A Source names a slice a computed value depends on. Every key returned by the
// builder is a Source; Named references a slice by name alone, which allows
// computed values to depend on slices declared later in the builder.
type Source interface {
	SourceName() string
}

// Named references the slice with the given name as a Source.
type Named string

func (n Named) SourceName() string { return string(n) }

//=============================================================================

// StateKey addresses a plain state slice holding a value of type V.
type StateKey[V any] struct {
	name string
}

// StateNamed returns the key of the state slice with the given name. Prefer the
// key returned by WithState; this constructor exists for referencing slices
// declared elsewhere.
func StateNamed[V any](name string) StateKey[V] {
	return StateKey[V]{name: name}
}

func (k StateKey[V]) Name() string       { return k.name }
func (k StateKey[V]) SourceName() string { return k.name }
func (k StateKey[V]) sourceKind() Kind   { return KindState }

// Get returns the current value of the slice in s.
func (k StateKey[V]) Get(s *Store) V {
	return k.Of(s.Snapshot())
}

// Of returns the value of the slice in the given snapshot. It panics if the
// snapshot holds no such slice, or holds a value of another type.
func (k StateKey[V]) Of(snap *Snapshot) V {
	v, ok := snap.value(k.name)
	if !ok {
		panic(fmt.Sprintf("entitystore: %v %q", ErrUnknownSlice, k.name))
	}
	return mustBe[V](k.name, v)
}

// From reads the slice within a computed value's evaluation. The slice must be
// one of the computed value's declared sources.
func (k StateKey[V]) From(r Reader) V {
	return mustBe[V](k.name, r.read(k.name))
}

// Set returns a Patch replacing the value of the slice.
func (k StateKey[V]) Set(v V) Patch {
	return k.Update(func(V) V { return v })
}

// Merge returns a Patch shallow-merging the set fields of partial into the
// current value of the slice (see entity.Merge).
func (k StateKey[V]) Merge(partial V) Patch {
	return k.Update(func(v V) V { return entity.Merge(v, partial) })
}

// Update returns a Patch replacing the value of the slice with fn applied to
// it.
func (k StateKey[V]) Update(fn func(V) V) Patch {
	return func(tx *Tx) error {
		if err := tx.store.expect(k.name, KindState); err != nil {
			return err
		}
		v, _ := tx.lookup(k.name)
		cur, ok := v.(V)
		if !ok && v != nil {
			return fmt.Errorf("state %q holds %T, not %v: %w", k.name, v, reflect.TypeFor[V](), ErrUnknownSlice)
		}
		tx.put(k.name, fn(cur))
		return nil
	}
}

//=============================================================================

// CollectionKey addresses a named collection of entities of type E identified
// by keys of type K.
type CollectionKey[K comparable, E any] struct {
	name string
}

// CollectionNamed returns the key of the collection with the given name. Patches
// of a key whose name or types do not match a registered collection fail with
// ErrUnknownCollection.
func CollectionNamed[K comparable, E any](name string) CollectionKey[K, E] {
	return CollectionKey[K, E]{name: name}
}

func (k CollectionKey[K, E]) Name() string       { return k.name }
func (k CollectionKey[K, E]) SourceName() string { return k.name }
func (k CollectionKey[K, E]) sourceKind() Kind   { return KindCollection }

// Get returns the current collection in s.
func (k CollectionKey[K, E]) Get(s *Store) entity.Collection[K, E] {
	return k.Of(s.Snapshot())
}

// Of returns the collection in the given snapshot. It panics if the snapshot
// holds no such collection.
func (k CollectionKey[K, E]) Of(snap *Snapshot) entity.Collection[K, E] {
	v, ok := snap.value(k.name)
	if !ok {
		panic(fmt.Sprintf("entitystore: %v %q", ErrUnknownCollection, k.name))
	}
	return mustBe[collectionBox[K, E]](k.name, v).c
}

// From reads the collection within a computed value's evaluation. The
// collection must be one of the computed value's declared sources.
func (k CollectionKey[K, E]) From(r Reader) entity.Collection[K, E] {
	return mustBe[collectionBox[K, E]](k.name, r.read(k.name)).c
}

// Apply returns a Patch replacing the collection with the result of op, which is
// given the current collection and the collection's selector. Every other
// patch of CollectionKey is built on Apply.
func (k CollectionKey[K, E]) Apply(op func(entity.Collection[K, E], entity.Selector[K, E]) (entity.Collection[K, E], error)) Patch {
	return func(tx *Tx) error {
		if err := tx.store.expect(k.name, KindCollection); err != nil {
			return err
		}
		sel, ok := tx.store.slices[k.name].selector.(entity.Selector[K, E])
		if !ok {
			return fmt.Errorf("collection %q is not a collection of %v by %v: %w",
				k.name, reflect.TypeFor[E](), reflect.TypeFor[K](), ErrUnknownCollection)
		}
		v, _ := tx.lookup(k.name)
		box, _ := v.(collectionBox[K, E])
		next, err := op(box.c, sel)
		if err != nil {
			return fmt.Errorf("collection %q: %w", k.name, err)
		}
		tx.put(k.name, collectionBox[K, E]{c: next})
		return nil
	}
}

func (k CollectionKey[K, E]) pure(op func(entity.Collection[K, E], entity.Selector[K, E]) entity.Collection[K, E]) Patch {
	return k.Apply(func(c entity.Collection[K, E], sel entity.Selector[K, E]) (entity.Collection[K, E], error) {
		return op(c, sel), nil
	})
}

// AddOne returns a Patch adding e; the dispatch fails with
// ErrDuplicateIdentifier if its identifier is present.
func (k CollectionKey[K, E]) AddOne(e E) Patch {
	return k.Apply(func(c entity.Collection[K, E], sel entity.Selector[K, E]) (entity.Collection[K, E], error) {
		return entity.AddOne(c, e, sel)
	})
}

// AddMany returns a Patch adding every entity of es, all or nothing.
func (k CollectionKey[K, E]) AddMany(es ...E) Patch {
	return k.Apply(func(c entity.Collection[K, E], sel entity.Selector[K, E]) (entity.Collection[K, E], error) {
		return entity.AddMany(c, es, sel)
	})
}

// SetOne returns a Patch inserting or replacing e.
func (k CollectionKey[K, E]) SetOne(e E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.SetOne(c, e, sel)
	})
}

// SetMany returns a Patch inserting or replacing every entity of es.
func (k CollectionKey[K, E]) SetMany(es ...E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.SetMany(c, es, sel)
	})
}

// SetAll returns a Patch replacing the whole collection with es.
func (k CollectionKey[K, E]) SetAll(es ...E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.SetAll(c, es, sel)
	})
}

// UpdateOne returns a Patch merging changes into the entity identified by id; a
// missing id is a no-op.
func (k CollectionKey[K, E]) UpdateOne(id K, changes E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.UpdateOne(c, entity.Update[K, E]{ID: id, Changes: changes}, sel)
	})
}

// UpdateMany returns a Patch merging changes into every entity identified by
// ids.
func (k CollectionKey[K, E]) UpdateMany(ids []K, changes E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.UpdateMany(c, ids, changes, sel)
	})
}

// UpdateOneFunc returns a Patch replacing the entity identified by id with fn
// applied to it.
func (k CollectionKey[K, E]) UpdateOneFunc(id K, fn func(E) E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.UpdateOneFunc(c, id, fn, sel)
	})
}

// UpdateAll returns a Patch applying fn to every entity.
func (k CollectionKey[K, E]) UpdateAll(fn func(E) E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.UpdateAll(c, fn, sel)
	})
}

// UpdateWhere returns a Patch applying fn to every entity matching pred.
func (k CollectionKey[K, E]) UpdateWhere(pred func(E) bool, fn func(E) E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.UpdateWhere(c, pred, fn, sel)
	})
}

// UpsertOne returns a Patch merging e into its existing entity, or adding it.
func (k CollectionKey[K, E]) UpsertOne(e E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.UpsertOne(c, e, sel)
	})
}

// UpsertMany returns a Patch upserting every entity of es.
func (k CollectionKey[K, E]) UpsertMany(es ...E) Patch {
	return k.pure(func(c entity.Collection[K, E], sel entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.UpsertMany(c, es, sel)
	})
}

// RemoveOne returns a Patch removing the entity identified by id; a missing id
// is a no-op.
func (k CollectionKey[K, E]) RemoveOne(id K) Patch {
	return k.RemoveMany(id)
}

// RemoveMany returns a Patch removing the entities identified by ids.
func (k CollectionKey[K, E]) RemoveMany(ids ...K) Patch {
	return k.pure(func(c entity.Collection[K, E], _ entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.RemoveMany(c, ids)
	})
}

// RemoveWhere returns a Patch removing the entities matching pred.
func (k CollectionKey[K, E]) RemoveWhere(pred func(E) bool) Patch {
	return k.pure(func(c entity.Collection[K, E], _ entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.RemoveWhere(c, pred)
	})
}

// RemoveAll returns a Patch emptying the collection.
func (k CollectionKey[K, E]) RemoveAll() Patch {
	return k.pure(func(c entity.Collection[K, E], _ entity.Selector[K, E]) entity.Collection[K, E] {
		return entity.RemoveAll(c)
	})
}

//=============================================================================

// ComputedKey addresses a computed value of type V.
type ComputedKey[V any] struct {
	name string
}

// ComputedNamed returns the key of the computed value with the given name.
func ComputedNamed[V any](name string) ComputedKey[V] {
	return ComputedKey[V]{name: name}
}

func (k ComputedKey[V]) Name() string       { return k.name }
func (k ComputedKey[V]) SourceName() string { return k.name }
func (k ComputedKey[V]) sourceKind() Kind   { return KindComputed }

// Get returns the computed value, evaluating it only if one of its transitive
// sources changed since its last evaluation. It panics if s has no such
// computed value.
func (k ComputedKey[V]) Get(s *Store) V {
	return mustBe[V](k.name, s.computed(k.name))
}

// From reads the computed value within another computed value's evaluation. It
// must be one of that computed value's declared sources.
func (k ComputedKey[V]) From(r Reader) V {
	return mustBe[V](k.name, r.read(k.name))
}

func mustBe[V any](name string, v any) V {
	x, ok := v.(V)
	if !ok && v != nil {
		panic(fmt.Sprintf("entitystore: slice %q holds %T, not %v", name, v, reflect.TypeFor[V]()))
	}
	return x
}
