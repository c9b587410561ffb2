// Package findfoci implements the staged foci detection processor.
//
// The processor is a fixed sequence of stages:
//
//	Blur -> Init -> Search -> MergeByHeight -> MergeBySize -> MergeFinal -> Results [-> MaskResults]
//
// Each stage is a pure function of the previous stage's output and the
// subset of Params it depends on, so a caller can cache any prefix of the
// sequence and resume from the first stage whose inputs changed (see the
// pipeline package).
//
// Init produces an InitState whose per-pixel scratch arrays are mutated by
// Search and MergeFinal. Those two stages only accept a *WorkState, which
// can only be obtained from InitState.CopyForStagedProcessing, so a cached
// InitState is never modified by a later stage.
//
// Stages never panic on bad input; they return an error wrapping
// ErrStageFailed.
package findfoci
