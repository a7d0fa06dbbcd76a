package entitystore

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Changed notifies that the snapshot of a store has changed. The notification
// lists the slices replaced by one dispatch relative to the snapshot that
// preceded it; the baseline snapshot is identified by version Before, and the
// resulting snapshot by version After.
type Changed struct {
	// Store identifies the store instance that changed.
	Store  uuid.UUID
	Before uint64
	// Slices lists the changed state slices and collections in registration
	// order.
	Slices []SliceChanged
	// Invalidated lists the computed values depending, directly or transitively,
	// on a changed slice. They are re-evaluated on their next read.
	Invalidated []string
	After       uint64
	// The time, in UTC, the dispatch swapped in the new snapshot. The information
	// in this message is accurate up to this timestamp, not a moment afterwards.
	Timestamp time.Time
}

// SliceChanged describes one slice replaced by a dispatch. For collections, it
// carries the identifiers (formatted with fmt.Sprint) that entered and left the
// collection, and its resulting size; entities replaced under the same
// identifier are not listed.
type SliceChanged struct {
	Name    string
	Kind    Kind
	Len     int
	Added   []string
	Removed []string
}

// IsEmpty returns true if the notification contains no changes. Meaning, the
// store had not changed between Before and After.
func (c Changed) IsEmpty() bool {
	return c.After == c.Before
}

// Slice returns the change of the named slice, if it changed.
func (c Changed) Slice(name string) (SliceChanged, bool) {
	for _, s := range c.Slices {
		if s.Name == name {
			return s, true
		}
	}
	return SliceChanged{}, false
}

// FormatChanged returns a human-readable representation of the notification.
// The indent string is prepended to each line.
func FormatChanged(c Changed, indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, indent+"baseline snapshot: %d\n", c.Before)
	for _, s := range c.Slices {
		if s.Kind != KindCollection {
			fmt.Fprintf(&b, indent+"* %s (%v)\n", s.Name, s.Kind)
			continue
		}
		fmt.Fprintf(&b, indent+"* %s (%v, %d entities)\n", s.Name, s.Kind, s.Len)
		for _, id := range s.Added {
			fmt.Fprintf(&b, indent+"  + %s\n", id)
		}
		for _, id := range s.Removed {
			fmt.Fprintf(&b, indent+"  - %s\n", id)
		}
	}
	for _, name := range c.Invalidated {
		fmt.Fprintf(&b, indent+"~ %s\n", name)
	}
	fmt.Fprintf(&b, indent+"current snapshot: %d\n", c.After)
	return b.String()
}

// describeChanges builds the notification of the dispatch that replaced before
// with after.
func describeChanges(s *Store, before, after *Snapshot, changed, invalidated []string) Changed {
	c := Changed{
		Store:       s.id,
		Before:      before.version,
		After:       after.version,
		Invalidated: invalidated,
		Timestamp:   time.Now().UTC(),
	}
	for _, name := range changed {
		sc := SliceChanged{Name: name, Kind: s.slices[name].kind}
		v, _ := after.value(name)
		if coll, ok := v.(erasedCollection); ok {
			old, _ := before.value(name)
			sc.Len = coll.size()
			sc.Added, sc.Removed = coll.diff(old)
		}
		c.Slices = append(c.Slices, sc)
	}
	return c
}
