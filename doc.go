// Package trident is an embedded store for RDF triples encoded as integer
// term IDs.
//
// A knowledge base keeps every triple in up to six permutations (SPO, OPS,
// POS, SOP, OSP, PSO). Each permutation groups the triples by their
// leading term into a binary table of (Value1, Value2) pairs, and a
// B+-tree maps every term to the tables it leads.
//
// # Quick Start
//
// Bulk-load triples once, then open the directory for queries:
//
//	ctx := context.Background()
//	_, err := trident.Build(ctx, "./kb", []trident.Triple{{S: 1, P: 10, O: 2}})
//	kb, err := trident.Open("./kb")
//	defer kb.Close()
//
// # Queries
//
// A Querier turns a pattern into an iterator over the pairs of the
// permutation chosen for it. Unbound positions are Any:
//
//	q, _ := kb.NewQuerier()
//	it, _ := q.Iterator(trident.SPO, 1, trident.Any, trident.Any)
//	defer q.Release(it)
//	for it.HasNext() {
//	    it.Next()
//	    fmt.Println(it.Value1(), it.Value2()) // predicate, object
//	}
//
// Index picks the permutation in which the bound terms lead. Cardinality
// helpers (Card, CardAt, EstCard, CardOnIndex) answer from the table
// metadata when they can.
//
// # Updates
//
// AddTriples and RemoveTriples append update layers. Iterators merge the
// base tables with the layers in order; a Querier sees the layers that
// existed when it was created.
//
// # Reduced layouts
//
// WithSkipReversed stores only SPO, OPS and POS and serves the others by
// re-sorting the reverse permutation through a bounded cache.
// WithAggregation stores predicate tables with few distinct first values
// as pointers into SPO and OPS.
package trident
