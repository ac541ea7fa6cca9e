package partitions

import (
	"context"
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	metis "github.com/notargets/go-metis"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
)

// DualGraph is the cell adjacency of a mesh in METIS compressed form. Two
// cells are adjacent when they share at least two distinct points, and the
// edge weight is the number of points they share.
type DualGraph struct {
	Xadj, Adjncy, Vwgt, Adjwgt []int32
}

func (dg *DualGraph) NumVertices() int { return len(dg.Xadj) - 1 }

func (dg *DualGraph) Neighbors(c int) []int32 { return dg.Adjncy[dg.Xadj[c]:dg.Xadj[c+1]] }

// NewDualGraph builds the graph from the cell to point incidence matrix A,
// the product A*At holding the shared point count of every cell pair.
func NewDualGraph(m *polymesh.Mesh) *DualGraph {
	var (
		nc, np = m.NumCells(), m.NumPoints()
		dg     = &DualGraph{Xadj: make([]int32, nc+1), Vwgt: make([]int32, nc)}
	)
	for c := 0; c < nc; c++ {
		dg.Vwgt[c] = int32(max(m.Polys.CellLength(c)-1, 1))
	}
	if nc == 0 || np == 0 {
		return dg
	}
	CToPTmp := sparse.NewDOK(nc, np)
	for c := 0; c < nc; c++ {
		for _, p := range m.Polys.Cell(c) {
			CToPTmp.Set(c, int(p), 1)
		}
	}
	CToP := CToPTmp.ToCSR()
	CToC := sparse.NewCSR(nc, nc, nil, nil, nil)
	CToC.Mul(CToP, CToP.T())

	type edge struct{ to, w int32 }
	rows := make([][]edge, nc)
	CToC.DoNonZero(func(i, j int, v float64) {
		if i != j && v >= 2 {
			rows[i] = append(rows[i], edge{int32(j), int32(v)})
		}
	})
	for c, row := range rows {
		sort.Slice(row, func(a, b int) bool { return row[a].to < row[b].to })
		for _, e := range row {
			dg.Adjncy = append(dg.Adjncy, e.to)
			dg.Adjwgt = append(dg.Adjwgt, e.w)
		}
		dg.Xadj[c+1] = int32(len(dg.Adjncy))
	}
	return dg
}

// GraphAssigner partitions each rank's local cells over the whole group
// with METIS, weighting cells by their point count. Ranks partition
// independently, so cuts between the input pieces are not optimized.
type GraphAssigner struct {
	Imbalance float32 // 1.05 when zero
	Objective string  // "vol" or "cut", vol when empty
}

func (ga GraphAssigner) Assign(ctx context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error) {
	var (
		nc    = m.NumCells()
		parts = g.Size()
	)
	if parts == 1 || nc < parts || m.NumPoints() == 0 {
		return splitLocal(nc, parts), nil
	}
	dg := NewDualGraph(m)
	if len(dg.Adjncy) == 0 {
		return splitLocal(nc, parts), nil
	}
	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if ga.Objective == "cut" {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	}
	imbalance := ga.Imbalance
	if imbalance <= 1 {
		imbalance = 1.05
	}
	part, objval, err := metis.PartGraphKwayWeighted(
		dg.Xadj, dg.Adjncy, dg.Vwgt, dg.Adjwgt,
		int32(parts), nil, []float32{imbalance}, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	Logger.Debug("graph partition", "rank", g.Rank(), "cells", nc,
		"edges", len(dg.Adjncy)/2, "parts", parts, "objval", objval)
	dest := make([]int, nc)
	for c := range dest {
		dest[c] = int(part[c])
	}
	return dest, nil
}

func splitLocal(nc, parts int) []int {
	var (
		pm   = NewPartitionMap(parts, nc)
		dest = make([]int, nc)
	)
	for c := range dest {
		dest[c] = pm.Bucket(c)
	}
	return dest
}
