package changeset

import (
	"encoding/gob"
	"fmt"
	"time"

	"github.com/go-digitaltwin/go-entitystore"
	"github.com/go-digitaltwin/go-entitystore/entity"
)

// A Record is a schemaless entity: a set of named fields. Records are the
// entities of the collections targeted by recorded steps, so steps can be
// serialised without knowledge of domain types.
//
// Field values must be gob-encodable; values of types other than the basic
// ones, map[string]any, []any and time.Time must be registered with
// gob.Register.
type Record = map[string]any

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(time.Time{})
}

// RecordSelector returns the selector of records identified by the given field,
// formatted with fmt.Sprint. It panics on records without the field.
func RecordSelector(field string) entity.Selector[string, Record] {
	return func(r Record) string {
		v, ok := r[field]
		if !ok {
			panic(fmt.Sprintf("changeset: record has no %q field", field))
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}

// WithRecords registers a collection of records identified by idField on b.
// Recorded steps target collections registered this way.
func WithRecords(b *entitystore.Builder, name, idField string, initial ...Record) entitystore.CollectionKey[string, Record] {
	return entitystore.WithCollection(b, name, RecordSelector(idField), initial...)
}

// Key returns the key of the named collection of records.
func Key(collection string) entitystore.CollectionKey[string, Record] {
	return entitystore.CollectionNamed[string, Record](collection)
}
