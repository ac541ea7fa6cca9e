// Package meshtest builds attribute fixtures for tests of the mesh consumers.
package meshtest

import (
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/types"
)

// AddAttributes attaches one array per role to both attribute sets,
// with values derived from a global id base so moved data can be traced:
//   - cell scalars: int64 [base+c, -(base+c)], active component 0
//   - cell vectors: float64 xyz of the cell center
//   - cell tensors: uint16, 9 components
//   - point scalars: float32 base+p
//   - point normals: float64 (0,0,1)
//   - point tcoords: uint8 2 components
func AddAttributes(m *polymesh.Mesh, cellBase, pointBase int) {
	var (
		nc = m.NumCells()
		np = m.NumPoints()
	)
	cs := types.NewArray[int64]("GlobalCellId", 2, nc)
	cv := types.NewArray[float64]("Center", 3, nc)
	ct := types.NewArray[uint16]("Stress", 9, nc)
	for c := 0; c < nc; c++ {
		cs.Set(c, 0, int64(cellBase+c))
		cs.Set(c, 1, -int64(cellBase+c))
		center := m.CellCenter(c)
		copy(cv.Tuple(c), center[:])
		for k := 0; k < 9; k++ {
			ct.Set(c, k, uint16(cellBase+c+k))
		}
	}
	m.CellData.Set(polymesh.Scalars, cs)
	m.CellData.Set(polymesh.Vectors, cv)
	m.CellData.Set(polymesh.Tensors, ct)

	ps := types.NewArray[float32]("GlobalPointId", 1, np)
	pn := types.NewArray[float64]("Normals", 3, np)
	pt := types.NewArray[uint8]("UV", 2, np)
	for p := 0; p < np; p++ {
		ps.Set(p, 0, float32(pointBase+p))
		pn.Set(p, 2, 1)
		pt.Set(p, 0, uint8(p%256))
		pt.Set(p, 1, uint8((pointBase+p)%256))
	}
	m.PointData.Set(polymesh.Scalars, ps)
	m.PointData.Set(polymesh.Normals, pn)
	m.PointData.Set(polymesh.TCoords, pt)
}
