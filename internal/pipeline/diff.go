package pipeline

import "github.com/banshee-data/findfoci/internal/findfoci"

// Snapshot is what Diff needs to know about the previous run.
type Snapshot struct {
	Params findfoci.Params
	// ResultCount is the number of foci the previous run reported.
	ResultCount int
}

// Diff returns the earliest stage invalidated by moving from prev to next.
// A nil prev means nothing is cached and the result is StageInitial. When
// the only differences are display-only fields that never change any output
// the result is StageComplete.
func Diff(next findfoci.Params, prev *Snapshot) Stage {
	if prev == nil {
		return StageInitial
	}
	old := prev.Params

	if next.GaussianBlur != old.GaussianBlur {
		return StageInitial
	}
	if next.BackgroundMethod != old.BackgroundMethod ||
		next.BackgroundParameter != old.BackgroundParameter ||
		next.ThresholdMethod != old.ThresholdMethod ||
		next.StatisticsMode != old.StatisticsMode {
		return StageFindMaxima
	}
	if next.SearchMethod != old.SearchMethod || next.SearchParameter != old.SearchParameter {
		return StageSearch
	}
	if next.PeakMethod != old.PeakMethod || next.PeakParameter != old.PeakParameter {
		return StageMergeHeight
	}
	if next.MinSize != old.MinSize {
		return StageMergeSize
	}
	if next.MinimumAboveSaddle != old.MinimumAboveSaddle ||
		next.RemoveEdgeMaxima != old.RemoveEdgeMaxima ||
		(next.MinimumAboveSaddle && next.ConnectedAboveSaddle != old.ConnectedAboveSaddle) {
		return StageMergeSaddle
	}
	if next.SortIndex != old.SortIndex ||
		next.CentroidMethod != old.CentroidMethod ||
		(next.CentroidMethod.UsesParameter() && next.CentroidParameter != old.CentroidParameter) ||
		maxPeaksChanged(next.MaxPeaks, old.MaxPeaks, prev.ResultCount) {
		return StageCalculateResults
	}
	if next.MaskMethod != old.MaskMethod ||
		(next.MaskMethod.UsesParameter() && next.FractionParameter != old.FractionParameter) {
		return StageCalculateOutputMask
	}
	if next.ShowTable != old.ShowTable ||
		next.MarkMaxima != old.MarkMaxima ||
		next.ShowMaskMaximaAsDots != old.ShowMaskMaximaAsDots {
		return StageShowResults
	}
	// ShowLogMessages and anything else left over is ignorable.
	return StageComplete
}

// maxPeaksChanged reports whether a change of the result cap can change the
// reported list. Zero means no cap.
func maxPeaksChanged(next, old, count int) bool {
	if next == old {
		return false
	}
	if old > 0 && count >= old {
		// The previous list may have been truncated.
		return true
	}
	return next > 0 && next < count
}
