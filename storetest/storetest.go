/*
Package storetest provides checks and a sequential test-suite for entity
collections and the stores built on top of them.

The checks operate on [entity.Collection] values and report problems as
strings, so they compose with any test harness:

	storetest.Verify(t, "after add", c,
		storetest.Consistent[int, Book](nil),
		storetest.HasIDs[int, Book](1, 2),
	)

Call storetest.Run in its own test to replay the sequence of mutations that
exercise every operation of the entity package, checking the normalization
invariant after each step:

	func TestSequence(t *testing.T) {
		storetest.Run(t)
	}
*/
package storetest

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/go-digitaltwin/go-entitystore/entity"
)

// Item is the entity type used by the test-suite. Its identifier is the ID
// field, picked up by the default selector.
type Item struct {
	ID    int
	Label string
	Tags  map[string]string
}

type testCase struct {
	// Subtest name.
	name string
	// A path leading to the test-case's file and line in the source code.
	location string
	// An operation derives the next collection from the previous test-case's
	// collection.
	op func(entity.Collection[int, Item]) (entity.Collection[int, Item], error)
	// The identifiers expected after the operation, in order.
	ids []int
	// Whether the operation is expected to leave its input untouched.
	noop bool
}

var cases = []testCase{
	{
		name:     "add-to-empty",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.AddMany(c, []Item{{ID: 1, Label: "a"}, {ID: 2, Label: "b"}}, nil)
		},
		ids: []int{1, 2},
	},
	{
		name:     "add-one",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.AddOne(c, Item{ID: 3, Label: "c"}, nil)
		},
		ids: []int{1, 2, 3},
	},
	{
		name:     "set-existing-keeps-position",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.SetOne(c, Item{ID: 1, Label: "A"}, nil), nil
		},
		ids: []int{1, 2, 3},
	},
	{
		name:     "set-missing-appends",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.SetMany(c, []Item{{ID: 4}, {ID: 2, Label: "B"}}, nil), nil
		},
		ids: []int{1, 2, 3, 4},
	},
	{
		name:     "update-missing",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.UpdateOne(c, entity.Update[int, Item]{ID: 42, Changes: Item{Label: "x"}}, nil), nil
		},
		ids:  []int{1, 2, 3, 4},
		noop: true,
	},
	{
		name:     "update-many",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.UpdateMany(c, []int{3, 4, 42}, Item{Tags: map[string]string{"k": "v"}}, nil), nil
		},
		ids: []int{1, 2, 3, 4},
	},
	{
		name:     "upsert",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.UpsertMany(c, []Item{{ID: 4, Label: "d"}, {ID: 5, Label: "e"}}, nil), nil
		},
		ids: []int{1, 2, 3, 4, 5},
	},
	{
		name:     "remove-missing",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.RemoveMany(c, []int{7, 8}), nil
		},
		ids:  []int{1, 2, 3, 4, 5},
		noop: true,
	},
	{
		name:     "remove-some",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.RemoveMany(c, []int{2, 7, 4}), nil
		},
		ids: []int{1, 3, 5},
	},
	{
		name:     "update-all",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.UpdateAll(c, func(i Item) Item {
				i.Label += "!"
				return i
			}, nil), nil
		},
		ids: []int{1, 3, 5},
	},
	{
		name:     "remove-where",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.RemoveWhere(c, func(i Item) bool { return i.ID > 4 }), nil
		},
		ids: []int{1, 3},
	},
	{
		name:     "re-add-removed",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.AddOne(c, Item{ID: 2, Label: "again"}, nil)
		},
		ids: []int{1, 3, 2},
	},
	{
		name:     "set-all",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.SetAll(c, []Item{{ID: 9}, {ID: 8}, {ID: 9, Label: "last"}}, nil), nil
		},
		ids: []int{9, 8},
	},
	{
		name:     "remove-all",
		location: locateSource(),
		op: func(c entity.Collection[int, Item]) (entity.Collection[int, Item], error) {
			return entity.RemoveAll(c), nil
		},
		ids: nil,
	},
}

// Run replays the test-suite's sequence of operations on a single collection.
// After every step it checks the normalization invariant, the expected
// identifier sequence, and that the previous collection was left unmodified.
//
// All test-cases run in-order because each case operates on the collection
// produced by its predecessor. That is, a test case cannot run if the previous
// case had failed.
func Run(t *testing.T) {
	t.Helper()

	var last entity.Collection[int, Item]
	for _, c := range cases {
		t.Logf("Read the source for test-case %v at %v", c.name, c.location)
		beforeIDs := last.IDs()
		beforeEntities := last.Entities()

		next, err := c.op(last)
		if err != nil {
			t.Fatalf("%v failed: %v", c.name, err)
		}

		checks := []Check[int, Item]{Consistent[int, Item](nil), HasIDs[int, Item](c.ids...)}
		if c.noop {
			checks = append(checks, SameAs(last))
		}
		Verify(t, c.name, next, checks...)

		// The input collection is a snapshot; operations must never modify it.
		Verify(t, c.name+" (input)", last, HasIDs[int, Item](beforeIDs...), unchangedEntities(beforeEntities))
		if t.Failed() {
			t.FailNow()
		}
		last = next
	}
}

func unchangedEntities(before []Item) Check[int, Item] {
	return func(c entity.Collection[int, Item]) string {
		got := c.Entities()
		if len(got) != len(before) {
			return fmt.Sprintf("len(Entities()) = %v, want %v", len(got), len(before))
		}
		for i := range got {
			if got[i].ID != before[i].ID || got[i].Label != before[i].Label || len(got[i].Tags) != len(before[i].Tags) {
				return fmt.Sprintf("entity %v modified in place: %+v, want %+v", before[i].ID, got[i], before[i])
			}
		}
		return ""
	}
}

// locateSource returns the file and line of its caller, for test-case locations.
func locateSource() (path string) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		panic("runtime.Caller failed")
	}
	return fmt.Sprintf("%v:%v", file, line)
}
