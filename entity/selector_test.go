package entity_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	. "github.com/go-digitaltwin/go-entitystore/entity"
)

type tagged struct {
	Key  string `entity:"id"`
	ID   string
	Name string
}

type named struct {
	Name string
}

func (n named) EntityID() string { return "n:" + n.Name }

type embedded struct {
	book
	Extra string
}

func TestDefaultSelector(t *testing.T) {
	t.Run("field", func(t *testing.T) {
		if got := DefaultSelector[int, book]()(book{ID: 7}); got != 7 {
			t.Errorf("select(book) = %v, want 7", got)
		}
	})

	t.Run("pointer", func(t *testing.T) {
		if got := DefaultSelector[int, *book]()(&book{ID: 7}); got != 7 {
			t.Errorf("select(*book) = %v, want 7", got)
		}
	})

	t.Run("tag wins over name", func(t *testing.T) {
		if got := DefaultSelector[string, tagged]()(tagged{Key: "k", ID: "i"}); got != "k" {
			t.Errorf("select(tagged) = %q, want %q", got, "k")
		}
	})

	t.Run("method", func(t *testing.T) {
		if got := DefaultSelector[string, named]()(named{Name: "x"}); got != "n:x" {
			t.Errorf("select(named) = %q, want %q", got, "n:x")
		}
	})

	t.Run("embedded", func(t *testing.T) {
		if got := DefaultSelector[int, embedded]()(embedded{book: book{ID: 3}}); got != 3 {
			t.Errorf("select(embedded) = %v, want 3", got)
		}
	})

	t.Run("map", func(t *testing.T) {
		if got := DefaultSelector[string, map[string]any]()(map[string]any{"id": "a"}); got != "a" {
			t.Errorf("select(map) = %q, want %q", got, "a")
		}
	})

	t.Run("numeric conversion", func(t *testing.T) {
		if got := DefaultSelector[int64, map[string]any]()(map[string]any{"id": 12}); got != 12 {
			t.Errorf("select(map) = %v, want 12", got)
		}
	})

	t.Run("integral float conversion", func(t *testing.T) {
		if got := DefaultSelector[int, map[string]any]()(map[string]any{"id": 3.0}); got != 3 {
			t.Errorf("select(map) = %v, want 3", got)
		}
	})

	t.Run("fractional float is not truncated", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("select(1.5 id as int) did not panic")
			}
		}()
		DefaultSelector[int, map[string]any]()(map[string]any{"id": 1.5})
	})

	t.Run("missing identifier panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("select(struct without ID) did not panic")
			}
		}()
		DefaultSelector[string, struct{ Name string }]()(struct{ Name string }{Name: "x"})
	})

	t.Run("string is not converted to number", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("select(string id as int) did not panic")
			}
		}()
		DefaultSelector[int, map[string]any]()(map[string]any{"id": "1"})
	})
}

func TestFieldSelector(t *testing.T) {
	type isbnBook struct {
		ISBN  string
		Title string
	}
	sel := FieldSelector[string, isbnBook]("ISBN")
	if got := sel(isbnBook{ISBN: "978"}); got != "978" {
		t.Errorf("select(ISBN) = %q, want %q", got, "978")
	}

	rec := FieldSelector[string, map[string]any]("isbn")
	if got := rec(map[string]any{"isbn": "979"}); got != "979" {
		t.Errorf("select(map isbn) = %q, want %q", got, "979")
	}
}

func TestMerge(t *testing.T) {
	type profile struct {
		Name   string
		Age    int
		Labels map[string]string
		Boss   *profile
	}

	t.Run("struct", func(t *testing.T) {
		labels := map[string]string{"team": "a"}
		boss := &profile{Name: "boss"}
		dst := profile{Name: "x", Age: 1, Labels: labels, Boss: boss}

		got := Merge(dst, profile{Age: 2, Labels: map[string]string{"role": "b"}, Boss: &profile{Name: "new"}})

		want := profile{Name: "x", Age: 2, Labels: map[string]string{"role": "b"}, Boss: &profile{Name: "new"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
		}
		// Map and pointer fields are replaced, never merged into.
		if diff := cmp.Diff(map[string]string{"team": "a"}, labels); diff != "" {
			t.Errorf("Merge() modified the original map (-want +got):\n%s", diff)
		}
		if boss.Name != "boss" {
			t.Errorf("Merge() modified the original pointee: %q", boss.Name)
		}
	})

	t.Run("pointer", func(t *testing.T) {
		dst := &profile{Name: "x", Age: 1}
		got := Merge(dst, &profile{Age: 5})
		if got == dst {
			t.Fatal("Merge(pointer) returned the original pointer")
		}
		if diff := cmp.Diff(&profile{Name: "x", Age: 5}, got); diff != "" {
			t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
		}
		if dst.Age != 1 {
			t.Errorf("Merge() modified the original pointee: Age = %d", dst.Age)
		}
	})

	t.Run("map", func(t *testing.T) {
		dst := map[string]any{"id": "1", "title": "a"}
		got := Merge(dst, map[string]any{"title": "b", "pages": 3})

		want := map[string]any{"id": "1", "title": "b", "pages": 3}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
		}
		if dst["title"] != "a" {
			t.Errorf("Merge() modified the original map: %v", dst)
		}
	})

	t.Run("scalar", func(t *testing.T) {
		if got := Merge(1, 2); got != 2 {
			t.Errorf("Merge(1, 2) = %v, want 2", got)
		}
	})
}
