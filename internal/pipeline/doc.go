// Package pipeline drives the findfoci stages incrementally.
//
// Diff compares a new parameter set with the one behind the cached result
// and returns the earliest Stage whose inputs changed. A Controller keeps
// the output of every stage of the last successful run and resumes the
// processor from that stage, so moving a late slider (sort order, mask
// method) never repeats the blur or the search.
//
// A Worker owns a Controller on a single goroutine and accepts parameter
// sets through a latest-wins Mailbox: a set posted while a run is in
// progress replaces any set still waiting, and only the newest is run.
package pipeline
