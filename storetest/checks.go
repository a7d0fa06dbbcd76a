package storetest

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-digitaltwin/go-entitystore/entity"
)

// A Check is any function that returns unexpected problems with the given
// [entity.Collection].
type Check[K comparable, E any] func(entity.Collection[K, E]) (problem string)

// Consistent checks the normalization invariant of a collection: the identifier
// sequence holds no duplicates, it has the same cardinality as the identifier to
// entity mapping, both describe the same set of identifiers, and every entity is
// stored under the identifier its selector derives.
func Consistent[K comparable, E any](sel entity.Selector[K, E]) Check[K, E] {
	if sel == nil {
		sel = entity.DefaultSelector[K, E]()
	}
	return func(c entity.Collection[K, E]) string {
		ids, m := c.IDs(), c.Map()
		if len(ids) != len(m) {
			return fmt.Sprintf("len(ids) = %v, len(entities) = %v: cardinality mismatch", len(ids), len(m))
		}
		if c.Len() != len(ids) {
			return fmt.Sprintf(".Len() = %v, want %v", c.Len(), len(ids))
		}
		seen := make(map[K]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				return fmt.Sprintf("identifier %v appears twice in ids", id)
			}
			seen[id] = struct{}{}
			e, ok := m[id]
			if !ok {
				return fmt.Sprintf("identifier %v is in ids but has no entity", id)
			}
			if got := sel(e); got != id {
				return fmt.Sprintf("entity stored under %v selects identifier %v", id, got)
			}
		}
		return ""
	}
}

// HasIDs checks that the identifier sequence of a collection is exactly ids, in
// order.
func HasIDs[K comparable, E any](ids ...K) Check[K, E] {
	return func(c entity.Collection[K, E]) string {
		got := c.IDs()
		if len(got) == 0 && len(ids) == 0 {
			return ""
		}
		if diff := cmp.Diff(ids, got); diff != "" {
			return fmt.Sprintf("IDs() mismatch (-want +got):\n%v", diff)
		}
		return ""
	}
}

// SameAs checks that a collection is the very same collection as before, i.e.
// that an operation was a no-op.
func SameAs[K comparable, E any](before entity.Collection[K, E]) Check[K, E] {
	return func(c entity.Collection[K, E]) string {
		if !c.Same(before) {
			return "collection was replaced, want the input collection unchanged"
		}
		return ""
	}
}

// Verify runs the given checks on c and reports every problem as a test error
// prefixed with name.
func Verify[K comparable, E any](t testing.TB, name string, c entity.Collection[K, E], checks ...Check[K, E]) {
	t.Helper()
	for _, check := range checks {
		if problem := check(c); problem != "" {
			t.Errorf("Check %v: %v", name, problem)
		}
	}
}
