package redistribute

import "github.com/notargets/polyredist/types"

// cellRange addresses local cells, either an explicit ascending list or a
// contiguous block
type cellRange struct {
	cells        []int
	start, count int
}

func explicitCells(cells []int) cellRange { return cellRange{cells: cells, count: len(cells)} }

func contiguousCells(start, count int) cellRange { return cellRange{start: start, count: count} }

func (cr cellRange) len() int { return cr.count }

func (cr cellRange) at(i int) int {
	if cr.cells != nil {
		return cr.cells[i]
	}
	return cr.start + i
}

func (cr cellRange) selection() types.Selection {
	if cr.cells != nil {
		return types.ByIndex(cr.cells)
	}
	return types.ByRange(cr.start, cr.count)
}

const unassigned = -1

// remapTable maps original point ids to compact ids, assigned in first
// reference order. It is sized to the mesh's point count once per pass and
// cleared between uses by undoing only the entries that were touched.
type remapTable struct {
	ids     []int64
	touched []int // original ids in assignment order
}

func newRemapTable(numPoints int) *remapTable {
	rt := &remapTable{ids: make([]int64, numPoints)}
	for i := range rt.ids {
		rt.ids[i] = unassigned
	}
	return rt
}

func (rt *remapTable) reset() {
	for _, id := range rt.touched {
		rt.ids[id] = unassigned
	}
	rt.touched = rt.touched[:0]
}

// lookup returns the compact id of original point pt, assigning the next one
// on first sight
func (rt *remapTable) lookup(pt int64) int64 {
	if id := rt.ids[pt]; id != unassigned {
		return id
	}
	id := int64(len(rt.touched))
	rt.ids[pt] = id
	rt.touched = append(rt.touched, int(pt))
	return id
}

// size is the number of distinct points seen since the last reset
func (rt *remapTable) size() int { return len(rt.touched) }

// order returns the original ids in compact id order, aliasing the table
func (rt *remapTable) order() []int { return rt.touched }
