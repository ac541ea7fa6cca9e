package partitions

import (
	"context"
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/notargets/polyredist/comm"
)

// Balance summarizes how many cells each rank of a group holds
type Balance struct {
	Counts       []float64
	Mean, StdDev float64
	Min, Max     float64
	Imbalance    float64 // Max over Mean, minus one
}

func NewBalance(counts []float64) (b Balance) {
	b.Counts = counts
	if len(counts) == 0 {
		return
	}
	b.Mean, b.StdDev = stat.MeanStdDev(counts, nil)
	b.Min, b.Max = floats.Min(counts), floats.Max(counts)
	if b.Mean > 0 {
		b.Imbalance = b.Max/b.Mean - 1
	}
	return
}

// MeasureBalance gathers the cell count of every rank. Collective.
func MeasureBalance(ctx context.Context, g comm.Group, numCells int) (b Balance, err error) {
	all, err := comm.AllgatherInt64s(ctx, g, []int64{int64(numCells)})
	if err != nil {
		return
	}
	counts := make([]float64, len(all))
	for r, v := range all {
		if len(v) != 1 {
			return b, fmt.Errorf("%w: cell count from rank %d", comm.ErrMalformed, r)
		}
		counts[r] = float64(v[0])
	}
	return NewBalance(counts), nil
}

func (b Balance) Print(w io.Writer) {
	fmt.Fprintf(w, "Load balance over %d ranks:\n", len(b.Counts))
	fmt.Fprintf(w, "  Cells: %.0f total, range [%.0f, %.0f], avg: %.1f, stddev: %.2f\n",
		floats.Sum(b.Counts), b.Min, b.Max, b.Mean, b.StdDev)
	fmt.Fprintf(w, "  Load imbalance: %.2f%%\n", b.Imbalance*100)
}

// EdgeCut counts the dual graph edges whose cells are assigned to different
// ranks, each edge once, and the shared point weight across them
func EdgeCut(dg *DualGraph, dest []int) (cutEdges int, volume int64) {
	for c := 0; c < dg.NumVertices(); c++ {
		for k := dg.Xadj[c]; k < dg.Xadj[c+1]; k++ {
			nb := int(dg.Adjncy[k])
			if nb > c && dest[nb] != dest[c] {
				cutEdges++
				volume += int64(dg.Adjwgt[k])
			}
		}
	}
	return
}
