package changeset

import (
	"encoding/gob"

	"github.com/go-digitaltwin/go-entitystore"
)

// We register all Step implementations with gob.Register to enable serialisation
// and deserialisation across process boundaries.
//
// Without this registration, the gob encoder would fail when attempting to
// serialise these types behind the Step interface.
func init() {
	gob.Register(addMany{})
	gob.Register(setMany{})
	gob.Register(setAll{})
	gob.Register(updateMany{})
	gob.Register(upsertMany{})
	gob.Register(removeMany{})
	gob.Register(removeAll{})
}

// An addMany is a Step adding records that must not already exist.
type addMany struct {
	Name    string
	Records []Record
}

func (s addMany) Do(tx *entitystore.Tx) error {
	return Key(s.Name).AddMany(s.Records...)(tx)
}

func (s addMany) Collection() string { return s.Name }

// A setMany is a Step inserting or replacing records.
type setMany struct {
	Name    string
	Records []Record
}

func (s setMany) Do(tx *entitystore.Tx) error {
	return Key(s.Name).SetMany(s.Records...)(tx)
}

func (s setMany) Collection() string { return s.Name }

// A setAll is a Step replacing a whole collection.
type setAll struct {
	Name    string
	Records []Record
}

func (s setAll) Do(tx *entitystore.Tx) error {
	return Key(s.Name).SetAll(s.Records...)(tx)
}

func (s setAll) Collection() string { return s.Name }

// An updateMany is a Step merging the same changes into existing records.
type updateMany struct {
	Name    string
	IDs     []string
	Changes Record
}

func (s updateMany) Do(tx *entitystore.Tx) error {
	return Key(s.Name).UpdateMany(s.IDs, s.Changes)(tx)
}

func (s updateMany) Collection() string { return s.Name }

// An upsertMany is a Step merging records into existing ones, or adding them.
type upsertMany struct {
	Name    string
	Records []Record
}

func (s upsertMany) Do(tx *entitystore.Tx) error {
	return Key(s.Name).UpsertMany(s.Records...)(tx)
}

func (s upsertMany) Collection() string { return s.Name }

// A removeMany is a Step removing records by identifier.
type removeMany struct {
	Name string
	IDs  []string
}

func (s removeMany) Do(tx *entitystore.Tx) error {
	return Key(s.Name).RemoveMany(s.IDs...)(tx)
}

func (s removeMany) Collection() string { return s.Name }

// A removeAll is a Step emptying a collection.
type removeAll struct {
	Name string
}

func (s removeAll) Do(tx *entitystore.Tx) error {
	return Key(s.Name).RemoveAll()(tx)
}

func (s removeAll) Collection() string { return s.Name }
