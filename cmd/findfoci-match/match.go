package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/banshee-data/findfoci/internal/assign"
	"github.com/banshee-data/findfoci/internal/findfoci"
	"github.com/banshee-data/findfoci/internal/gridpair"
)

// match links a reference focus to a candidate focus.
type match struct {
	Ref, Cand findfoci.FociRecord
	Distance  float64
}

// summary scores a candidate set against a reference set.
type summary struct {
	Matches       int
	UnmatchedRef  int
	UnmatchedCand int
	MeanDistance  float64
}

func summarize(ms []match, nRef, nCand int) summary {
	s := summary{Matches: len(ms), UnmatchedRef: nRef - len(ms), UnmatchedCand: nCand - len(ms)}
	for _, m := range ms {
		s.MeanDistance += m.Distance
	}
	if len(ms) > 0 {
		s.MeanDistance /= float64(len(ms))
	}
	return s
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Precision is the fraction of candidates that matched.
func (s summary) Precision() float64 { return ratio(s.Matches, s.Matches+s.UnmatchedCand) }

// Recall is the fraction of references that matched.
func (s summary) Recall() float64 { return ratio(s.Matches, s.Matches+s.UnmatchedRef) }

// F1 is the harmonic mean of precision and recall.
func (s summary) F1() float64 { return ratio(2*s.Matches, 2*s.Matches+s.UnmatchedRef+s.UnmatchedCand) }

func distance(a, b findfoci.FociRecord, zWeight float64) float64 {
	dx, dy := float64(a.X-b.X), float64(a.Y-b.Y)
	dz := float64(a.Z-b.Z) * zWeight
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// matchAssign takes each reference in rank order and assigns it the closest
// (or, with highest, the brightest) unassigned candidate within maxDist.
// z differences are multiplied by zWeight; a non-positive weight means 1.
func matchAssign(ref, cand findfoci.FociList, maxDist, zWeight float64, highest bool) []match {
	if zWeight <= 0 {
		zWeight = 1
	}
	scale := assign.Scale{X: 1, Y: 1, Z: 1 / zWeight}
	ix := assign.NewIndex(cand, scale)
	ix.SetSearchDistance(maxDist)
	if highest {
		ix.SetMode(assign.Highest)
	}

	var out []match
	for _, r := range ref {
		got := ix.Find(float64(r.X), float64(r.Y), float64(r.Z), false)
		if got == nil {
			continue
		}
		got.Assigned = true
		out = append(out, match{Ref: r, Cand: got.FociRecord, Distance: distance(r, got.FociRecord, zWeight)})
	}
	return out
}

// matchMutual pairs references and candidates that are each other's
// closest point in XY within maxDist. Pairs inside one set do not count.
func matchMutual(ref, cand findfoci.FociList, maxDist float64) ([]match, error) {
	pts := make([]gridpair.Point, 0, len(ref)+len(cand))
	for i, f := range ref {
		pts = append(pts, gridpair.Point{ID: i, X: float64(f.X), Y: float64(f.Y)})
	}
	for i, f := range cand {
		pts = append(pts, gridpair.Point{ID: len(ref) + i, X: float64(f.X), Y: float64(f.Y)})
	}
	clusters, err := (&gridpair.Engine{}).Pair(pts, maxDist)
	if err != nil {
		return nil, err
	}

	var out []match
	for _, c := range clusters {
		if c.Size() != 2 {
			continue
		}
		// Points are in ID order, so a cross pair has the reference first.
		a, b := c.Points[0].ID, c.Points[1].ID
		if a >= len(ref) || b < len(ref) {
			continue
		}
		r, k := ref[a], cand[b-len(ref)]
		out = append(out, match{Ref: r, Cand: k, Distance: distance(r, k, 0)})
	}
	return out, nil
}

func writeMatches(w io.Writer, ms []match) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ref_id\tref_x\tref_y\tref_z\tcand_id\tcand_x\tcand_y\tcand_z\tdistance")
	for _, m := range ms {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.3f\n",
			m.Ref.ID, m.Ref.X, m.Ref.Y, m.Ref.Z, m.Cand.ID, m.Cand.X, m.Cand.Y, m.Cand.Z, m.Distance)
	}
	return tw.Flush()
}

func writeSummary(w io.Writer, s summary) error {
	_, err := fmt.Fprintf(w, "matches=%d unmatched_ref=%d unmatched_cand=%d precision=%.4f recall=%.4f f1=%.4f mean_distance=%.3f\n",
		s.Matches, s.UnmatchedRef, s.UnmatchedCand, s.Precision(), s.Recall(), s.F1(), s.MeanDistance)
	return err
}
