package entitystore_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"

	"github.com/go-digitaltwin/go-entitystore"
)

// Book and Author are the entities of this example; both are identified by
// their ID field, which the default selector picks.
type Book struct {
	ID     int
	Title  string
	Author int
}

type Author struct {
	ID   int
	Name string
}

// We compose a store of two independent collections and a computed value
// spanning both, then mutate it through methods bound to the store.
func ExampleBuilder() {
	var b entitystore.Builder
	books := entitystore.WithCollection[int, Book](&b, "book", nil,
		Book{ID: 1, Title: "Dune", Author: 10},
		Book{ID: 2, Title: "Emma", Author: 20},
	)
	authors := entitystore.WithCollection[int, Author](&b, "author", nil,
		Author{ID: 10, Name: "Herbert"},
		Author{ID: 20, Name: "Austen"},
	)
	catalogue := entitystore.WithComputed(&b, "catalogue", func(r entitystore.Reader) string {
		var lines []string
		for _, book := range books.From(r).All() {
			a, _ := authors.From(r).Get(book.Author)
			lines = append(lines, fmt.Sprintf("%s by %s", book.Title, a.Name))
		}
		return strings.Join(lines, "\n")
	}, books, authors)

	store, err := b.Build()
	if err != nil {
		panic(err)
	}
	defer store.Close()

	// Methods are domain functions dispatching patches.
	removeBook := entitystore.Bind(store, books.RemoveOne)
	renameAuthor := entitystore.Bind(store, func(a Author) entitystore.Patch {
		return authors.UpdateOne(a.ID, Author{Name: a.Name})
	})

	fmt.Println(catalogue.Get(store))
	if err := removeBook(context.Background(), 1); err != nil {
		panic(err)
	}
	if err := renameAuthor(context.Background(), Author{ID: 20, Name: "Jane Austen"}); err != nil {
		panic(err)
	}
	fmt.Println(catalogue.Get(store))
	fmt.Println("authors:", authors.Get(store).IDs())

	// Adding a present identifier fails the whole dispatch.
	err = store.Dispatch(context.Background(), books.AddOne(Book{ID: 2, Title: "Emma, again"}))
	fmt.Println(err)
	// Output:
	// Dune by Herbert
	// Emma by Austen
	// Emma by Jane Austen
	// authors: [10 20]
	// dispatch: patch 0: collection "book": entity 2: duplicate entity identifier
}

// We bridge an external push-based source of sign-in events into a store, and
// derive whether a user is authenticated.
func ExampleWithBridge() {
	var emit func(entitystore.Event[string])
	signIns := entitystore.SourceFunc[string](func(ctx context.Context, e func(entitystore.Event[string])) (func(), error) {
		emit = e
		return func() { fmt.Println("unsubscribed") }, nil
	})

	var b entitystore.Builder
	session := entitystore.WithBridge(&b, "session", signIns)
	isAuthenticated := entitystore.WithComputed(&b, "isAuthenticated", func(r entitystore.Reader) bool {
		s := session.From(r)
		return s.IsReady() && s.Value != ""
	}, session)
	store, err := b.Build()
	if err != nil {
		panic(err)
	}
	if err := store.Activate(context.Background()); err != nil {
		panic(err)
	}

	fmt.Println(session.Get(store).Status, isAuthenticated.Get(store))
	emit(entitystore.Value("userA"))
	fmt.Println(session.Get(store).Status, isAuthenticated.Get(store))
	emit(entitystore.Value(""))
	fmt.Println(session.Get(store).Status, isAuthenticated.Get(store))

	_ = store.Close()
	emit(entitystore.Value("userB")) // dropped
	fmt.Println(session.Get(store).Status, isAuthenticated.Get(store))
	// Output:
	// pending false
	// ready true
	// ready false
	// unsubscribed
	// ready false
}

// We run a store and its change feed as part of a component, which owns their
// lifecycle.
func ExampleServe() {
	// For this example, we assume the topic was opened by the component's
	// bootstrap function.
	var changes *pubsub.Topic

	var b entitystore.Builder
	entitystore.WithCollection[int, Book](&b, "book", nil)
	store, err := b.Build()
	if err != nil {
		panic(err)
	}

	component.RunProc(func(l *component.L) {
		l.Fork("store", entitystore.Serve(store))
		l.Fork("changes", entitystore.NewPublisher(store, changes, 16))
	})
}
