// Package tree implements the B+tree that maps a term to the coordinates
// of its tables in every permutation.
//
// Nodes are addressed by id and loaded on demand through an LRU cache of
// bounded size. Evicted nodes are written back through a NodeManager that
// keeps every node in a slot of a single data file. Leaves are recycled by
// a small factory so that bulk loads do not allocate one node per split.
package tree
