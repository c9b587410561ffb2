// Package saddle provides the saddle list used by the merge stages.
//
// A saddle records the highest point on the boundary between a region and one
// neighbouring region. Each region keeps a List of saddles to its neighbours;
// merging two regions concatenates their lists and deduplicates by
// neighbour id.
package saddle
