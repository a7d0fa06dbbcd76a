package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/go-digitaltwin/go-entitystore"
	"github.com/go-digitaltwin/go-entitystore/changeset"
)

// A Script declares collections of records and the steps to replay on them.
//
//	collections:
//	  - name: book
//	    id: isbn
//	    records:
//	      - {isbn: "0441172717", title: Dune}
//	steps:
//	  - op: update
//	    collection: book
//	    ids: ["0441172717"]
//	    changes: {title: "Dune (1965)"}
type Script struct {
	Collections []CollectionSpec `yaml:"collections"`
	Steps       []StepSpec       `yaml:"steps"`
}

// CollectionSpec declares a collection of records. ID names the identifying
// field of its records and defaults to "id".
type CollectionSpec struct {
	Name    string             `yaml:"name"`
	ID      string             `yaml:"id,omitempty"`
	Records []changeset.Record `yaml:"records,omitempty"`
}

// StepSpec is a single recorded step. Which of Records, IDs and Changes are
// required depends on Op.
type StepSpec struct {
	Op         string             `yaml:"op"`
	Collection string             `yaml:"collection"`
	Records    []changeset.Record `yaml:"records,omitempty"`
	IDs        []string           `yaml:"ids,omitempty"`
	Changes    changeset.Record   `yaml:"changes,omitempty"`
}

// Ops lists the operations a step may perform.
var Ops = []string{"add", "set", "set_all", "update", "upsert", "remove", "remove_all"}

// LoadScript reads and validates the script at path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a script. Unknown fields are rejected.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &s, nil
}

func (s *Script) validate() error {
	ids := make(map[string]string, len(s.Collections))
	for i := range s.Collections {
		c := &s.Collections[i]
		if c.Name == "" {
			return fmt.Errorf("collection %d: missing name", i)
		}
		if _, ok := ids[c.Name]; ok {
			return fmt.Errorf("collection %q: declared twice", c.Name)
		}
		if c.ID == "" {
			c.ID = "id"
		}
		ids[c.Name] = c.ID
		if err := hasField(c.ID, c.Records); err != nil {
			return fmt.Errorf("collection %q: %w", c.Name, err)
		}
	}

	var errs []error
	for i, step := range s.Steps {
		if err := step.validate(ids); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// validate checks the step's arguments. Steps on undeclared collections are
// valid here, and fail when replayed.
func (s StepSpec) validate(ids map[string]string) error {
	if !slices.Contains(Ops, s.Op) {
		return fmt.Errorf("unknown op %q: must be one of %v", s.Op, Ops)
	}
	if s.Collection == "" {
		return errors.New("missing collection")
	}
	switch s.Op {
	case "add", "set", "upsert":
		if len(s.Records) == 0 {
			return fmt.Errorf("%s: missing records", s.Op)
		}
	case "update":
		if len(s.IDs) == 0 || len(s.Changes) == 0 {
			return errors.New("update: missing ids or changes")
		}
		if field, ok := ids[s.Collection]; ok {
			if _, ok := s.Changes[field]; ok {
				return fmt.Errorf("update: changes rewrite the identifying field %q", field)
			}
		}
	case "remove":
		if len(s.IDs) == 0 {
			return errors.New("remove: missing ids")
		}
	}
	if field, ok := ids[s.Collection]; ok {
		return hasField(field, s.Records)
	}
	return nil
}

func hasField(field string, recs []changeset.Record) error {
	for i, r := range recs {
		if _, ok := r[field]; !ok {
			return fmt.Errorf("record %d: missing identifying field %q", i, field)
		}
	}
	return nil
}

// Build returns a store of the script's collections, populated with their
// declared records.
func (s *Script) Build() (*entitystore.Store, error) {
	var b entitystore.Builder
	for _, c := range s.Collections {
		changeset.WithRecords(&b, c.Name, c.ID, c.Records...)
	}
	return b.Build()
}

// Record records the script's steps with r.
func (s *Script) Record(r *changeset.Recorder) {
	for _, step := range s.Steps {
		switch step.Op {
		case "add":
			r.AddMany(step.Collection, step.Records...)
		case "set":
			r.SetMany(step.Collection, step.Records...)
		case "set_all":
			r.SetAll(step.Collection, step.Records...)
		case "update":
			r.UpdateMany(step.Collection, step.IDs, step.Changes)
		case "upsert":
			r.UpsertMany(step.Collection, step.Records...)
		case "remove":
			r.RemoveMany(step.Collection, step.IDs...)
		case "remove_all":
			r.RemoveAll(step.Collection)
		}
	}
}
