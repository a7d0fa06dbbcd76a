package cli

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-digitaltwin/go-entitystore/changeset"
)

func TestParseScriptDefaultsIDField(t *testing.T) {
	s, err := ParseScript([]byte("collections: [{name: book}, {name: tag, id: label}]\n"))
	if err != nil {
		t.Fatal("ParseScript() failed:", err)
	}
	var got []string
	for _, c := range s.Collections {
		got = append(got, c.ID)
	}
	if diff := cmp.Diff([]string{"id", "label"}, got); diff != "" {
		t.Errorf("id fields mismatch (-want +got):\n%s", diff)
	}
}

func TestParseScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"UnknownField", "collections: [{name: book, key: isbn}]", "field key not found"},
		{"MissingName", "collections: [{id: isbn}]", "collection 0: missing name"},
		{"DuplicateCollection", "collections: [{name: book}, {name: book}]", `collection "book": declared twice`},
		{"RecordWithoutID", "collections: [{name: book, records: [{title: Dune}]}]", `record 0: missing identifying field "id"`},
		{"UnknownOp", "steps: [{op: drop, collection: book}]", `step 0: unknown op "drop"`},
		{"MissingCollection", "steps: [{op: remove_all}]", "step 0: missing collection"},
		{"AddWithoutRecords", "steps: [{op: add, collection: book}]", "add: missing records"},
		{"UpdateWithoutChanges", "steps: [{op: update, collection: book, ids: [a]}]", "update: missing ids or changes"},
		{"RemoveWithoutIDs", "steps: [{op: remove, collection: book}]", "remove: missing ids"},
		{"UpdateRewritesID", "collections: [{name: book, id: isbn}]\nsteps: [{op: update, collection: book, ids: [a], changes: {isbn: b}}]", `update: changes rewrite the identifying field "isbn"`},
		{"StepRecordWithoutID", "collections: [{name: book, id: isbn}]\nsteps: [{op: set, collection: book, records: [{id: 1}]}]", `step 0: record 0: missing identifying field "isbn"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tt.script))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseScript() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestScriptRecordsEveryOp(t *testing.T) {
	s, err := ParseScript([]byte(`
steps:
  - {op: add, collection: a, records: [{id: 1}]}
  - {op: set, collection: a, records: [{id: 1}]}
  - {op: set_all, collection: b}
  - {op: update, collection: a, ids: ["1"], changes: {n: 2}}
  - {op: upsert, collection: c, records: [{id: 1}]}
  - {op: remove, collection: a, ids: ["1"]}
  - {op: remove_all, collection: c}
`))
	if err != nil {
		t.Fatal("ParseScript() failed:", err)
	}
	var r changeset.Recorder
	s.Record(&r)
	if got := r.Len(); got != len(s.Steps) {
		t.Errorf("recorded %d steps, want %d", got, len(s.Steps))
	}
}
