package polymesh

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// CellArray stores polygon connectivity in the flat legacy layout
// [n0, id, id, ..., n1, id, ...], with Offsets[i] locating the length header
// of cell i inside Conn
type CellArray struct {
	Conn    []int64
	Offsets []int
}

func (ca *CellArray) NumCells() int { return len(ca.Offsets) }

// Cell returns the point ids of cell i, aliasing Conn
func (ca *CellArray) Cell(i int) []int64 {
	o := ca.Offsets[i]
	n := int(ca.Conn[o])
	return ca.Conn[o+1 : o+1+n]
}

// CellLength is the size of cell i in the flat layout, header included
func (ca *CellArray) CellLength(i int) int { return int(ca.Conn[ca.Offsets[i]]) + 1 }

func (ca *CellArray) InsertNextCell(ids ...int64) int {
	ca.Offsets = append(ca.Offsets, len(ca.Conn))
	ca.Conn = append(ca.Conn, int64(len(ids)))
	ca.Conn = append(ca.Conn, ids...)
	return len(ca.Offsets) - 1
}

// Allocate sizes the array for numCells cells filling connLen flat slots.
// Contents are written later in place.
func (ca *CellArray) Allocate(numCells, connLen int) {
	ca.Conn = make([]int64, connLen)
	ca.Offsets = make([]int, numCells)
}

// Mesh is a polygonal mesh: points, polygon connectivity, and attribute sets
// keyed by cell and by point
type Mesh struct {
	Points    []float64 // xyz interleaved
	Polys     CellArray
	CellData  *AttributeSet
	PointData *AttributeSet
}

func NewMesh() *Mesh {
	return &Mesh{
		Points:    []float64{},
		Polys:     CellArray{Conn: []int64{}, Offsets: []int{}},
		CellData:  NewAttributeSet(),
		PointData: NewAttributeSet(),
	}
}

func (m *Mesh) NumPoints() int { return len(m.Points) / 3 }

func (m *Mesh) NumCells() int { return m.Polys.NumCells() }

func (m *Mesh) NumArrays() int { return m.CellData.NumArrays() + m.PointData.NumArrays() }

func (m *Mesh) AddPoint(x, y, z float64) int {
	m.Points = append(m.Points, x, y, z)
	return m.NumPoints() - 1
}

func (m *Mesh) Point(i int) [3]float64 {
	return [3]float64{m.Points[3*i], m.Points[3*i+1], m.Points[3*i+2]}
}

func (m *Mesh) AddCell(ids ...int) int {
	cell := make([]int64, len(ids))
	for i, id := range ids {
		cell[i] = int64(id)
	}
	return m.Polys.InsertNextCell(cell...)
}

// CellCenter is the vertex average of cell i
func (m *Mesh) CellCenter(i int) (c [3]float64) {
	ids := m.Polys.Cell(i)
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		p := m.Point(int(id))
		floats.Add(c[:], p[:])
	}
	floats.Scale(1/float64(len(ids)), c[:])
	return
}

// Bounds returns the per axis min and max of the points, ok is false for a
// mesh without points
func (m *Mesh) Bounds() (lo, hi [3]float64, ok bool) {
	np := m.NumPoints()
	if np == 0 {
		return
	}
	axis := make([]float64, np)
	for d := 0; d < 3; d++ {
		for i := 0; i < np; i++ {
			axis[i] = m.Points[3*i+d]
		}
		lo[d], hi[d] = floats.Min(axis), floats.Max(axis)
	}
	return lo, hi, true
}

// Validate checks the connectivity and attribute length invariants
func (m *Mesh) Validate() error {
	if len(m.Points)%3 != 0 {
		return fmt.Errorf("point buffer length %d is not a multiple of 3", len(m.Points))
	}
	var (
		np   = int64(m.NumPoints())
		next int
	)
	for i, o := range m.Polys.Offsets {
		if o != next || o >= len(m.Polys.Conn) {
			return fmt.Errorf("cell %d offset %d, expected %d", i, o, next)
		}
		n := int(m.Polys.Conn[o])
		if n < 0 || o+1+n > len(m.Polys.Conn) {
			return fmt.Errorf("cell %d length %d overruns connectivity", i, n)
		}
		for _, id := range m.Polys.Cell(i) {
			if id < 0 || id >= np {
				return fmt.Errorf("cell %d references point %d, mesh has %d points", i, id, np)
			}
		}
		next = o + 1 + n
	}
	if next != len(m.Polys.Conn) {
		return fmt.Errorf("connectivity has %d trailing entries", len(m.Polys.Conn)-next)
	}
	if m.CellData == nil || m.PointData == nil {
		return fmt.Errorf("mesh has no cell or point attribute set")
	}
	if err := m.CellData.Validate(m.NumCells(), "cell"); err != nil {
		return err
	}
	return m.PointData.Validate(m.NumPoints(), "point")
}

// String returns a one line summary
func (m *Mesh) String() string {
	return fmt.Sprintf("%d cells, %d points, %d connectivity entries, %d cell arrays, %d point arrays",
		m.NumCells(), m.NumPoints(), len(m.Polys.Conn), m.CellData.NumArrays(), m.PointData.NumArrays())
}
