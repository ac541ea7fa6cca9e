package redistribute

import (
	"fmt"
	"slices"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
)

// packedBlock is a set of cells ready for the wire. Conn holds the cells in
// the flat [n, id0..idn-1, ...] layout with ids renumbered from zero in first
// reference order, PointIDs maps each new id back to the original point and
// Coords holds the xyz of those points in the same order.
type packedBlock struct {
	conn     []int64
	pointIDs []int
	coords   []float64
}

// packCells renumbers the points of cr and gathers everything a receiver
// needs to rebuild the cells. numPoints and connLen size the buffers.
func packCells(m *polymesh.Mesh, cr cellRange, rt *remapTable, numPoints, connLen int) packedBlock {
	rt.reset()
	defer rt.reset()
	blk := packedBlock{conn: make([]int64, 0, connLen)}
	for i := 0; i < cr.len(); i++ {
		ids := m.Polys.Cell(cr.at(i))
		blk.conn = append(blk.conn, int64(len(ids)))
		for _, pt := range ids {
			blk.conn = append(blk.conn, rt.lookup(pt))
		}
	}
	blk.pointIDs = make([]int, 0, numPoints)
	blk.pointIDs = append(blk.pointIDs, rt.order()...)
	blk.coords = make([]float64, 3*len(blk.pointIDs))
	for i, pt := range blk.pointIDs {
		copy(blk.coords[3*i:3*i+3], m.Points[3*pt:3*pt+3])
	}
	return blk
}

// rebaseCells fills the offsets of numCells cells whose connectivity was
// written at connStart, and shifts their point ids by pointBase. Ids must be
// below numPoints and the cells must use exactly connLen entries.
func rebaseCells(ca *polymesh.CellArray, firstCell, numCells, connStart, connLen, pointBase, numPoints int) error {
	var (
		o   = connStart
		end = connStart + connLen
	)
	for c := firstCell; c < firstCell+numCells; c++ {
		if o >= end {
			return fmt.Errorf("%w: connectivity ends before cell %d", comm.ErrMalformed, c-firstCell)
		}
		n := ca.Conn[o]
		if n < 0 || o+1+int(n) > end {
			return fmt.Errorf("%w: cell %d claims %d points", comm.ErrMalformed, c-firstCell, n)
		}
		ca.Offsets[c] = o
		for k := o + 1; k <= o+int(n); k++ {
			id := ca.Conn[k]
			if id < 0 || id >= int64(numPoints) {
				return fmt.Errorf("%w: point id %d outside [0,%d)", comm.ErrMalformed, id, numPoints)
			}
			ca.Conn[k] = id + int64(pointBase)
		}
		o += int(n) + 1
	}
	if o != end {
		return fmt.Errorf("%w: %d connectivity entries left over", comm.ErrMalformed, end-o)
	}
	return nil
}

// copyCells writes the cells of cr from src into dst at watermark wm with the
// same renumbering packCells applies. It returns the original ids of the
// points written, in their new order, and the connectivity length.
func copyCells(dst, src *polymesh.Mesh, cr cellRange, rt *remapTable, wm watermark) (pointIDs []int, connLen int) {
	rt.reset()
	defer rt.reset()
	o := wm.conn
	for i := 0; i < cr.len(); i++ {
		ids := src.Polys.Cell(cr.at(i))
		dst.Polys.Offsets[wm.cell+i] = o
		dst.Polys.Conn[o] = int64(len(ids))
		o++
		for _, pt := range ids {
			dst.Polys.Conn[o] = int64(wm.point) + rt.lookup(pt)
			o++
		}
	}
	for i, pt := range rt.order() {
		copy(dst.Points[3*(wm.point+i):3*(wm.point+i)+3], src.Points[3*pt:3*pt+3])
	}
	return slices.Clone(rt.order()), o - wm.conn
}

// copyVerbatim copies the whole of src to the start of dst unchanged, every
// point in its original order whether referenced or not
func copyVerbatim(dst, src *polymesh.Mesh) (numPoints, connLen int) {
	copy(dst.Points, src.Points)
	copy(dst.Polys.Conn, src.Polys.Conn)
	copy(dst.Polys.Offsets, src.Polys.Offsets)
	return src.NumPoints(), len(src.Polys.Conn)
}
