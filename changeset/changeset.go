/*
Package changeset records reproducible mutations of entity stores, that can be
stored, transmitted, and replayed consistently across different processes.

The package provides a [Recorder] for collecting mutation steps over
collections of [Record] entities, [Encode] and [Decode] for moving these steps
across process boundaries, and a [Replay] function turning them into a single
[entitystore.Patch].

Steps address collections by name; the store replaying them must register
those collections with [WithRecords].
*/
package changeset

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/go-digitaltwin/go-entitystore"
)

// ErrInvalidStep is reported by Replay for a step whose records do not fit the
// targeted collection, e.g. records lacking its identifying field, or changes
// rewriting it.
var ErrInvalidStep = errors.New("invalid step")

// Step represents a single mutation of one named collection of records.
//
// In distributed scenarios, Steps form the fundamental units of work that can
// be serialised and transmitted across process boundaries. All Step
// implementations are registered with gob.
type Step interface {
	// Do applies the mutation to the in-flight draft of a dispatch; the method
	// value is an entitystore.Patch. It fails if the targeted collection is not a
	// collection of records, or if the mutation violates its constraints (e.g.
	// adding a duplicate identifier).
	Do(tx *entitystore.Tx) error
	// Collection returns the name of the collection the Step mutates.
	Collection() string
}

// Encode serialises a slice of Steps into a byte array for storage or
// transmission, using gob encoding.
func Encode(s []Step) (data []byte, err error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	if err := encoder.Encode(s); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a slice of Steps from a previously encoded byte array.
func Decode(data []byte) (steps []Step, err error) {
	var s []Step
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return s, nil
}

// Replay creates an entitystore.Patch that sequentially applies a series of
// steps. Dispatched at once, the steps apply all or nothing: if any step
// fails, the dispatch discards every one of them.
//
// Steps are often decoded from untrusted input; Replay reports the records
// rejected by the collections' selectors as errors wrapping ErrInvalidStep. To
// apply the steps one dispatch at a time, replay them individually.
func Replay(steps []Step) entitystore.Patch {
	return func(tx *entitystore.Tx) error {
		for i, step := range steps {
			if err := do(step, tx); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
		return nil
	}
}

// do applies step. Panics raised by the step happen before it replaces the
// collection in tx, so the draft is left as it was.
func do(step Step, tx *entitystore.Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("collection %q: %w: %v", step.Collection(), ErrInvalidStep, r)
		}
	}()
	return step.Do(tx)
}

// Targets iterate over the names of the collections mutated by the provided
// steps, yielding each name once, in order of first appearance.
func Targets(steps []Step) iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]struct{})
		for _, step := range steps {
			name := step.Collection()
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			if !yield(name) {
				return
			}
		}
	}
}

// Recorder collects a sequence of collection mutations. Each mutation is stored
// as a separate [Step] in the order it was recorded. Records are shallowly
// copied when recorded.
//
// The zero value of Recorder is ready to use. Do not copy a non-zero Recorder.
type Recorder struct {
	steps []Step
}

// Reset clears all accumulated steps, so the Recorder can be reused.
func (r *Recorder) Reset() {
	r.steps = nil
}

// Len returns the number of recorded steps.
func (r *Recorder) Len() int {
	return len(r.steps)
}

// Steps returns a copy of the recorded steps. Modifying the returned slice does
// not affect the Recorder.
func (r *Recorder) Steps() []Step {
	return slices.Clone(r.steps)
}

// AddOne records the addition of rec; replaying fails if its identifier is
// present.
func (r *Recorder) AddOne(collection string, rec Record) {
	r.steps = append(r.steps, addMany{Name: collection, Records: clone(rec)})
}

// AddMany records the addition of every record of recs, all or nothing.
func (r *Recorder) AddMany(collection string, recs ...Record) {
	r.steps = append(r.steps, addMany{Name: collection, Records: clone(recs...)})
}

// SetOne records the insertion or replacement of rec.
func (r *Recorder) SetOne(collection string, rec Record) {
	r.steps = append(r.steps, setMany{Name: collection, Records: clone(rec)})
}

// SetMany records the insertion or replacement of every record of recs.
func (r *Recorder) SetMany(collection string, recs ...Record) {
	r.steps = append(r.steps, setMany{Name: collection, Records: clone(recs...)})
}

// SetAll records the replacement of the whole collection with recs.
func (r *Recorder) SetAll(collection string, recs ...Record) {
	r.steps = append(r.steps, setAll{Name: collection, Records: clone(recs...)})
}

// UpdateOne records merging the fields of changes into the record identified by
// id; a missing id is a no-op.
func (r *Recorder) UpdateOne(collection, id string, changes Record) {
	r.UpdateMany(collection, []string{id}, changes)
}

// UpdateMany records merging the fields of changes into every record identified
// by ids.
func (r *Recorder) UpdateMany(collection string, ids []string, changes Record) {
	r.steps = append(r.steps, updateMany{Name: collection, IDs: slices.Clone(ids), Changes: maps.Clone(changes)})
}

// UpsertOne records merging rec into its existing record, or adding it.
func (r *Recorder) UpsertOne(collection string, rec Record) {
	r.steps = append(r.steps, upsertMany{Name: collection, Records: clone(rec)})
}

// UpsertMany records upserting every record of recs.
func (r *Recorder) UpsertMany(collection string, recs ...Record) {
	r.steps = append(r.steps, upsertMany{Name: collection, Records: clone(recs...)})
}

// RemoveOne records the removal of the record identified by id; a missing id is
// a no-op.
func (r *Recorder) RemoveOne(collection, id string) {
	r.RemoveMany(collection, id)
}

// RemoveMany records the removal of the records identified by ids.
func (r *Recorder) RemoveMany(collection string, ids ...string) {
	r.steps = append(r.steps, removeMany{Name: collection, IDs: slices.Clone(ids)})
}

// RemoveAll records emptying the collection.
func (r *Recorder) RemoveAll(collection string) {
	r.steps = append(r.steps, removeAll{Name: collection})
}

func clone(recs ...Record) []Record {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = maps.Clone(rec)
	}
	return out
}
