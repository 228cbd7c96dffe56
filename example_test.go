package trident_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/trident"
)

// exampleDir returns a scratch directory for a knowledge base.
func exampleDir() string {
	dir, err := os.MkdirTemp("", "trident-example")
	if err != nil {
		log.Fatal(err)
	}
	return dir
}

var exampleTriples = []trident.Triple{
	{S: 1, P: 1, O: 2},
	{S: 1, P: 1, O: 3},
	{S: 2, P: 1, O: 3},
}

// Example loads three triples, reopens the knowledge base and lists the
// objects of subject 1.
func Example() {
	ctx := context.Background()
	dir := exampleDir()
	defer os.RemoveAll(dir)

	if _, err := trident.Build(ctx, dir, exampleTriples); err != nil {
		log.Fatal(err)
	}

	kb, err := trident.Open(dir, trident.WithReadOnly(true))
	if err != nil {
		log.Fatal(err)
	}
	defer kb.Close()

	q, err := kb.NewQuerier()
	if err != nil {
		log.Fatal(err)
	}

	it, err := q.Iterator(trident.SPO, 1, trident.Any, trident.Any)
	if err != nil {
		log.Fatal(err)
	}
	defer q.Release(it)

	for it.HasNext() {
		it.Next()
		fmt.Println(it.Value1(), it.Value2())
	}
	// Output:
	// 1 2
	// 1 3
}

// ExampleBuild bulk loads triples with aggregated tables and a flat tree.
func ExampleBuild() {
	dir := exampleDir()
	defer os.RemoveAll(dir)

	res, err := trident.Build(context.Background(), dir, exampleTriples,
		trident.WithAggregation(true),
		trident.WithFlatTree(true))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("triples:", res.NTriples)
	// Output: triples: 3
}

// ExampleOpen opens a knowledge base and prints its size.
func ExampleOpen() {
	dir := exampleDir()
	defer os.RemoveAll(dir)

	if _, err := trident.Build(context.Background(), dir, exampleTriples); err != nil {
		log.Fatal(err)
	}

	kb, err := trident.Open(dir, trident.WithMaxNodesInCache(64))
	if err != nil {
		log.Fatal(err)
	}
	defer kb.Close()

	stats, err := kb.Stats()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("triples:", stats.NTriples)
	// Output: triples: 3
}

// ExampleQuerier_Iterator answers (?s, 1, 3) from the POS permutation,
// where the bound predicate and object lead.
func ExampleQuerier_Iterator() {
	dir := exampleDir()
	defer os.RemoveAll(dir)

	if _, err := trident.Build(context.Background(), dir, exampleTriples); err != nil {
		log.Fatal(err)
	}
	kb, err := trident.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	defer kb.Close()

	q, err := kb.NewQuerier()
	if err != nil {
		log.Fatal(err)
	}

	it, err := q.Iterator(trident.POS, trident.Any, 1, 3)
	if err != nil {
		log.Fatal(err)
	}
	defer q.Release(it)

	for it.HasNext() {
		it.Next()
		fmt.Println("subject:", it.Value2())
	}
	// Output:
	// subject: 1
	// subject: 2
}

// ExampleKB_AddTriples records an update layer. Triples already stored
// are not counted, and queriers opened afterwards see the new triple.
func ExampleKB_AddTriples() {
	ctx := context.Background()
	dir := exampleDir()
	defer os.RemoveAll(dir)

	if _, err := trident.Build(ctx, dir, exampleTriples); err != nil {
		log.Fatal(err)
	}
	kb, err := trident.Open(dir)
	if err != nil {
		log.Fatal(err)
	}
	defer kb.Close()

	n, err := kb.AddTriples(ctx, []trident.Triple{
		{S: 1, P: 1, O: 3},
		{S: 2, P: 1, O: 4},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("added:", n)

	q, err := kb.NewQuerier()
	if err != nil {
		log.Fatal(err)
	}
	ok, err := q.Exists(2, 1, 4)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("exists:", ok)
	// Output:
	// added: 1
	// exists: true
}
