// Package entitystore provides a reactive, normalized, in-memory store of named
// entity collections, plain state slices and computed values derived from
// them.
//
// A store is composed once, by a Builder, from independent features; each
// feature returns a typed key addressing its slice:
//
//	var b entitystore.Builder
//	books := entitystore.WithCollection[int, Book](&b, "book", nil)
//	count := entitystore.WithComputed(&b, "count", func(r entitystore.Reader) int {
//		return books.From(r).Len()
//	}, books)
//	store, err := b.Build()
//
// The state of a store is an immutable Snapshot, replaced only by
// Store.Dispatch. A dispatch applies a sequence of patches (built by the
// methods of the keys, e.g. CollectionKey.AddOne) all or nothing, swaps in the
// resulting snapshot, and marks the computed values depending on the changed
// slices dirty. Computed values are evaluated lazily, on read, and cached until
// one of their transitive sources changes.
//
// External push-based sources feed the store through bridges (see WithBridge),
// subscribed by Store.Activate and released by Store.Close. The changes of a
// store can be published to a pubsub topic with a Publisher.
//
// The entity package holds the collections and their pure mutation
// operations.
package entitystore
