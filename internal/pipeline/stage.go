package pipeline

import "fmt"

// Stage identifies a step of the staged run. Stages are totally ordered; a
// run resumed at stage S recomputes S and everything after it.
type Stage int

const (
	StageInitial Stage = iota
	StageFindMaxima
	StageSearch
	StageMergeHeight
	StageMergeSize
	StageMergeSaddle
	StageCalculateResults
	StageCalculateOutputMask
	StageShowResults
	// StageComplete means nothing needs to run.
	StageComplete
)

var stageNames = []string{
	"initial", "find_maxima", "search", "merge_height", "merge_size",
	"merge_saddle", "calculate_results", "calculate_output_mask",
	"show_results", "complete",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}
