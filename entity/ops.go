package entity

import "fmt"

// Update describes the merge of Changes into the entity identified by ID. See
// Merge for the meaning of the fields set in Changes.
type Update[K comparable, E any] struct {
	ID      K
	Changes E
}

// AddOne returns c with e appended. It fails with ErrDuplicateID (and returns c)
// if the identifier of e is already present.
func AddOne[K comparable, E any](c Collection[K, E], e E, sel Selector[K, E]) (Collection[K, E], error) {
	return AddMany(c, []E{e}, sel)
}

// AddMany returns c with every entity of es appended in order. The operation is
// all-or-nothing: if any identifier is already present in c, or repeats within
// es, it fails with ErrDuplicateID and returns c.
func AddMany[K comparable, E any](c Collection[K, E], es []E, sel Selector[K, E]) (Collection[K, E], error) {
	if len(es) == 0 {
		return c, nil
	}
	sel = orDefault(sel)
	t := c.draft(len(es))
	for _, e := range es {
		id := sel(e)
		if _, ok := t.entities[id]; ok {
			return c, &DuplicateIDError{ID: id}
		}
		t.ids = append(t.ids, id)
		t.entities[id] = e
	}
	return seal(t), nil
}

// SetOne returns c with e stored under its identifier: an existing entity is
// replaced in place (keeping its position), a new one is appended.
func SetOne[K comparable, E any](c Collection[K, E], e E, sel Selector[K, E]) Collection[K, E] {
	return SetMany(c, []E{e}, sel)
}

// SetMany applies SetOne for every entity of es, in order. When es repeats an
// identifier the last entity wins.
func SetMany[K comparable, E any](c Collection[K, E], es []E, sel Selector[K, E]) Collection[K, E] {
	if len(es) == 0 {
		return c
	}
	sel = orDefault(sel)
	t := c.draft(len(es))
	for _, e := range es {
		id := sel(e)
		if _, ok := t.entities[id]; !ok {
			t.ids = append(t.ids, id)
		}
		t.entities[id] = e
	}
	return seal(t)
}

// SetAll returns a collection holding exactly the entities of es, discarding
// everything in c. When es repeats an identifier the last entity wins.
func SetAll[K comparable, E any](c Collection[K, E], es []E, sel Selector[K, E]) Collection[K, E] {
	if len(es) == 0 {
		return RemoveAll(c)
	}
	return SetMany(Collection[K, E]{}, es, sel)
}

// UpdateOne returns c with u.Changes merged into the entity identified by u.ID.
// A missing identifier is a no-op that returns c.
//
// UpdateOne panics if the merge changes the identifier of the entity.
func UpdateOne[K comparable, E any](c Collection[K, E], u Update[K, E], sel Selector[K, E]) Collection[K, E] {
	return UpdateMany(c, []K{u.ID}, u.Changes, sel)
}

// UpdateMany merges changes into every entity identified by ids. Missing
// identifiers are skipped; if none is present, c is returned.
func UpdateMany[K comparable, E any](c Collection[K, E], ids []K, changes E, sel Selector[K, E]) Collection[K, E] {
	return transform(c, ids, func(e E) E { return Merge(e, changes) }, sel)
}

// UpdateOneFunc replaces the entity identified by id with fn applied to it. A
// missing identifier is a no-op that returns c.
func UpdateOneFunc[K comparable, E any](c Collection[K, E], id K, fn func(E) E, sel Selector[K, E]) Collection[K, E] {
	return transform(c, []K{id}, fn, sel)
}

// UpdateAll replaces every entity of c with fn applied to it.
func UpdateAll[K comparable, E any](c Collection[K, E], fn func(E) E, sel Selector[K, E]) Collection[K, E] {
	return transform(c, c.IDs(), fn, sel)
}

// UpdateWhere replaces every entity of c matching pred with fn applied to it. If
// nothing matches, c is returned.
func UpdateWhere[K comparable, E any](c Collection[K, E], pred func(E) bool, fn func(E) E, sel Selector[K, E]) Collection[K, E] {
	return transform(c, matching(c, pred), fn, sel)
}

// UpsertOne merges e into the entity with the same identifier, or appends e if
// there is none.
func UpsertOne[K comparable, E any](c Collection[K, E], e E, sel Selector[K, E]) Collection[K, E] {
	return UpsertMany(c, []E{e}, sel)
}

// UpsertMany applies UpsertOne for every entity of es, in order.
func UpsertMany[K comparable, E any](c Collection[K, E], es []E, sel Selector[K, E]) Collection[K, E] {
	if len(es) == 0 {
		return c
	}
	sel = orDefault(sel)
	t := c.draft(len(es))
	for _, e := range es {
		id := sel(e)
		old, ok := t.entities[id]
		if !ok {
			t.ids = append(t.ids, id)
			t.entities[id] = e
			continue
		}
		t.entities[id] = checked(id, Merge(old, e), sel)
	}
	return seal(t)
}

// RemoveOne returns c without the entity identified by id. A missing identifier
// is a no-op that returns c.
func RemoveOne[K comparable, E any](c Collection[K, E], id K) Collection[K, E] {
	return RemoveMany(c, []K{id})
}

// RemoveMany returns c without the entities identified by ids. Missing
// identifiers are skipped silently; if none is present, c is returned.
func RemoveMany[K comparable, E any](c Collection[K, E], ids []K) Collection[K, E] {
	doomed := make(map[K]struct{}, len(ids))
	for _, id := range ids {
		if c.Has(id) {
			doomed[id] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return c
	}
	t := &table[K, E]{
		ids:      make([]K, 0, c.Len()-len(doomed)),
		entities: make(map[K]E, c.Len()-len(doomed)),
	}
	for id, e := range c.All() {
		if _, ok := doomed[id]; ok {
			continue
		}
		t.ids = append(t.ids, id)
		t.entities[id] = e
	}
	return seal(t)
}

// RemoveWhere returns c without the entities matching pred.
func RemoveWhere[K comparable, E any](c Collection[K, E], pred func(E) bool) Collection[K, E] {
	return RemoveMany(c, matching(c, pred))
}

// RemoveAll returns the empty collection.
func RemoveAll[K comparable, E any](Collection[K, E]) Collection[K, E] {
	return Collection[K, E]{}
}

func matching[K comparable, E any](c Collection[K, E], pred func(E) bool) []K {
	var ids []K
	for id, e := range c.All() {
		if pred(e) {
			ids = append(ids, id)
		}
	}
	return ids
}

// transform replaces the entities identified by ids (skipping missing ones) with
// fn applied to them.
func transform[K comparable, E any](c Collection[K, E], ids []K, fn func(E) E, sel Selector[K, E]) Collection[K, E] {
	var t *table[K, E]
	for _, id := range ids {
		old, ok := c.Get(id)
		if !ok {
			continue
		}
		if t == nil {
			sel = orDefault(sel)
			t = c.draft(0)
		}
		t.entities[id] = checked(id, fn(old), sel)
	}
	if t == nil {
		return c
	}
	return seal(t)
}

func checked[K comparable, E any](id K, e E, sel Selector[K, E]) E {
	if got := sel(e); got != id {
		panic(fmt.Sprintf("entity: update changed identifier %v to %v", id, got))
	}
	return e
}
