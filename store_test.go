package entitystore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-digitaltwin/go-entitystore"
)

type book struct {
	ID       int
	Title    string
	AuthorID int
}

type author struct {
	ID   int
	Name string
}

type library struct {
	store   *entitystore.Store
	books   entitystore.CollectionKey[int, book]
	authors entitystore.CollectionKey[int, author]
	filter  entitystore.StateKey[string]
}

func newLibrary(t *testing.T) library {
	t.Helper()
	var b entitystore.Builder
	l := library{
		books:   entitystore.WithCollection[int, book](&b, "book", nil, book{ID: 1, Title: "Dune", AuthorID: 10}, book{ID: 2, Title: "Emma", AuthorID: 20}),
		authors: entitystore.WithCollection[int, author](&b, "author", nil, author{ID: 10, Name: "Herbert"}, author{ID: 20, Name: "Austen"}),
		filter:  entitystore.WithState(&b, "filter", ""),
	}
	s, err := b.Build()
	if err != nil {
		t.Fatal("Build() failed:", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	l.store = s
	return l
}

func TestCollectionsAreIndependent(t *testing.T) {
	l := newLibrary(t)
	authorsBefore := l.authors.Get(l.store)

	if err := l.store.Dispatch(context.Background(), l.books.RemoveOne(1)); err != nil {
		t.Fatal("Dispatch() failed:", err)
	}

	if diff := cmp.Diff([]int{2}, l.books.Get(l.store).IDs()); diff != "" {
		t.Errorf("book ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{10, 20}, l.authors.Get(l.store).IDs()); diff != "" {
		t.Errorf("author ids mismatch (-want +got):\n%s", diff)
	}
	if !l.authors.Get(l.store).Same(authorsBefore) {
		t.Error("removing a book replaced the author collection")
	}
	if rev, _ := l.store.Snapshot().Revision("author"); rev != 0 {
		t.Errorf("author revision = %d, want 0", rev)
	}
}

func TestDispatchDuplicateKeepsSnapshot(t *testing.T) {
	l := newLibrary(t)
	before := l.store.Snapshot()

	err := l.store.Dispatch(context.Background(), l.books.AddOne(book{ID: 1, Title: "Other"}))
	if !errors.Is(err, entitystore.ErrDuplicateIdentifier) {
		t.Fatalf("Dispatch() error = %v, want %v", err, entitystore.ErrDuplicateIdentifier)
	}
	if l.store.Snapshot() != before {
		t.Error("a failed dispatch replaced the snapshot")
	}
	if b, _ := l.books.Get(l.store).Get(1); b.Title != "Dune" {
		t.Errorf("book 1 title = %q, want %q", b.Title, "Dune")
	}
}

func TestDispatchIsAllOrNothing(t *testing.T) {
	l := newLibrary(t)
	before := l.store.Snapshot()

	err := l.store.Dispatch(context.Background(),
		l.filter.Set("dune"),
		l.authors.RemoveAll(),
		l.books.AddMany(book{ID: 3}, book{ID: 2}),
	)
	if !errors.Is(err, entitystore.ErrDuplicateIdentifier) {
		t.Fatalf("Dispatch() error = %v, want %v", err, entitystore.ErrDuplicateIdentifier)
	}
	if l.store.Snapshot() != before {
		t.Fatal("a failed dispatch replaced the snapshot")
	}
	if got := l.filter.Get(l.store); got != "" {
		t.Errorf("filter = %q, want it untouched", got)
	}
	if got := l.authors.Get(l.store).Len(); got != 2 {
		t.Errorf("authors = %d, want 2", got)
	}
}

func TestDispatchNoopKeepsSnapshot(t *testing.T) {
	l := newLibrary(t)
	notified := 0
	l.store.Subscribe(func(entitystore.Changed) { notified++ })
	before := l.store.Snapshot()

	err := l.store.Dispatch(context.Background(),
		l.books.UpdateOne(404, book{Title: "missing"}),
		l.authors.RemoveOne(404),
	)
	if err != nil {
		t.Fatal("Dispatch() failed:", err)
	}
	if l.store.Snapshot() != before {
		t.Error("a dispatch without changes replaced the snapshot")
	}
	if notified != 0 {
		t.Errorf("listeners notified %d times, want 0", notified)
	}
}

func TestDispatchUnknownCollection(t *testing.T) {
	l := newLibrary(t)
	tests := []struct {
		name  string
		patch entitystore.Patch
		want  error
	}{
		{"UnregisteredName", entitystore.CollectionNamed[int, book]("magazine").AddOne(book{ID: 1}), entitystore.ErrUnknownCollection},
		{"MismatchedTypes", entitystore.CollectionNamed[string, book]("book").RemoveOne("1"), entitystore.ErrUnknownCollection},
		{"StateAsCollection", entitystore.CollectionNamed[int, book]("filter").RemoveAll(), entitystore.ErrUnknownCollection},
		{"UnregisteredState", entitystore.StateNamed[int]("page").Set(2), entitystore.ErrUnknownSlice},
		{"MismatchedState", entitystore.StateNamed[int]("filter").Set(2), entitystore.ErrUnknownSlice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.store.Dispatch(context.Background(), tt.patch)
			if !errors.Is(err, tt.want) {
				t.Errorf("Dispatch() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	l := newLibrary(t)
	var calls []string
	l.store.Subscribe(func(entitystore.Changed) { calls = append(calls, "first") })
	cancel := l.store.Subscribe(func(entitystore.Changed) { calls = append(calls, "second") })
	var got entitystore.Changed
	l.store.Subscribe(func(c entitystore.Changed) {
		calls = append(calls, "third")
		got = c
	})

	err := l.store.Dispatch(context.Background(),
		l.books.RemoveOne(1),
		l.books.AddOne(book{ID: 3, Title: "Persuasion", AuthorID: 20}),
		l.filter.Set("austen"),
	)
	if err != nil {
		t.Fatal("Dispatch() failed:", err)
	}

	want := entitystore.Changed{
		Store:  l.store.ID(),
		Before: 0,
		Slices: []entitystore.SliceChanged{
			{Name: "book", Kind: entitystore.KindCollection, Len: 2, Added: []string{"3"}, Removed: []string{"1"}},
			{Name: "filter", Kind: entitystore.KindState},
		},
		After: 1,
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(entitystore.Changed{}, "Timestamp")); diff != "" {
		t.Errorf("Changed mismatch (-want +got):\n%s", diff)
	}
	if got.Timestamp.IsZero() {
		t.Error("Changed.Timestamp is not set")
	}

	cancel()
	if err := l.store.Dispatch(context.Background(), l.filter.Set("herbert")); err != nil {
		t.Fatal("Dispatch() failed:", err)
	}
	wantCalls := []string{"first", "second", "third", "first", "third"}
	if diff := cmp.Diff(wantCalls, calls); diff != "" {
		t.Errorf("listener calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStateMerge(t *testing.T) {
	type settings struct {
		Theme    string
		PageSize int
		Labels   map[string]string
	}
	var b entitystore.Builder
	key := entitystore.WithState(&b, "settings", settings{Theme: "dark", PageSize: 20, Labels: map[string]string{"a": "1"}})
	s, err := b.Build()
	if err != nil {
		t.Fatal("Build() failed:", err)
	}
	before := key.Get(s)

	if err := s.Dispatch(context.Background(), key.Merge(settings{PageSize: 50, Labels: map[string]string{"b": "2"}})); err != nil {
		t.Fatal("Dispatch() failed:", err)
	}
	want := settings{Theme: "dark", PageSize: 50, Labels: map[string]string{"b": "2"}}
	if diff := cmp.Diff(want, key.Get(s)); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"a": "1"}, before.Labels); diff != "" {
		t.Errorf("previous settings were modified (-want +got):\n%s", diff)
	}

	if err := s.Dispatch(context.Background(), key.Update(func(v settings) settings {
		v.Theme = ""
		return v
	})); err != nil {
		t.Fatal("Dispatch() failed:", err)
	}
	if got := key.Get(s).Theme; got != "" {
		t.Errorf("theme = %q, want it cleared", got)
	}
}

func TestSnapshotVersions(t *testing.T) {
	l := newLibrary(t)
	first := l.store.Snapshot()
	for _, p := range []entitystore.Patch{l.filter.Set("a"), l.books.RemoveOne(404), l.filter.Set("b")} {
		if err := l.store.Dispatch(context.Background(), p); err != nil {
			t.Fatal("Dispatch() failed:", err)
		}
	}
	last := l.store.Snapshot()

	if got := last.Version(); got != 2 {
		t.Errorf("Version() = %d, want 2", got)
	}
	if rev, ok := last.Revision("filter"); !ok || rev != 2 {
		t.Errorf("Revision(filter) = %d, %v, want 2, true", rev, ok)
	}
	if _, ok := last.Revision("missing"); ok {
		t.Error("Revision(missing) reported ok")
	}
	if got := l.filter.Of(first); got != "" {
		t.Errorf("filter of the first snapshot = %q, want it unchanged", got)
	}
	if diff := cmp.Diff([]string{"author", "book", "filter"}, last.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"book", "author", "filter"}, l.store.Slices()); diff != "" {
		t.Errorf("Slices() mismatch (-want +got):\n%s", diff)
	}
	if got := l.store.KindOf("author"); got != entitystore.KindCollection {
		t.Errorf("KindOf(author) = %v, want %v", got, entitystore.KindCollection)
	}
}

func TestCloseStopsDispatches(t *testing.T) {
	l := newLibrary(t)
	if err := l.store.Close(); err != nil {
		t.Fatal("Close() failed:", err)
	}
	if err := l.store.Close(); err != nil {
		t.Error("second Close() failed:", err)
	}

	err := l.store.Dispatch(context.Background(), l.filter.Set("x"))
	if !errors.Is(err, entitystore.ErrClosed) {
		t.Errorf("Dispatch() error = %v, want %v", err, entitystore.ErrClosed)
	}
	if err := l.store.Activate(context.Background()); !errors.Is(err, entitystore.ErrClosed) {
		t.Errorf("Activate() error = %v, want %v", err, entitystore.ErrClosed)
	}
	// Reads keep returning the last snapshot.
	if got := l.books.Get(l.store).Len(); got != 2 {
		t.Errorf("books after Close() = %d, want 2", got)
	}
}

func TestBind(t *testing.T) {
	l := newLibrary(t)
	rename := entitystore.Bind(l.store, func(a author) entitystore.Patch {
		return l.authors.UpdateOne(a.ID, author{Name: a.Name})
	})

	if err := rename(context.Background(), author{ID: 20, Name: "Jane Austen"}); err != nil {
		t.Fatal("rename() failed:", err)
	}
	got, _ := l.authors.Get(l.store).Get(20)
	if diff := cmp.Diff(author{ID: 20, Name: "Jane Austen"}, got); diff != "" {
		t.Errorf("author mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatChanged(t *testing.T) {
	c := entitystore.Changed{
		Before: 4,
		Slices: []entitystore.SliceChanged{
			{Name: "book", Kind: entitystore.KindCollection, Len: 2, Added: []string{"3"}, Removed: []string{"1"}},
			{Name: "filter", Kind: entitystore.KindState},
		},
		Invalidated: []string{"visible"},
		After:       5,
	}
	want := "" +
		"> baseline snapshot: 4\n" +
		"> * book (collection, 2 entities)\n" +
		">   + 3\n" +
		">   - 1\n" +
		"> * filter (state)\n" +
		"> ~ visible\n" +
		"> current snapshot: 5\n"
	if diff := cmp.Diff(want, entitystore.FormatChanged(c, "> ")); diff != "" {
		t.Errorf("FormatChanged() mismatch (-want +got):\n%s", diff)
	}
	if c.IsEmpty() {
		t.Error("IsEmpty() = true, want false")
	}
	if _, ok := c.Slice("filter"); !ok {
		t.Error("Slice(filter) not found")
	}
}
