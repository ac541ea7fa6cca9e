package polymesh

// NewQuadGrid builds an nx by ny grid of unit quads in the z = 0 plane,
// offset by origin. Cells are numbered row major, points likewise.
func NewQuadGrid(nx, ny int, origin [3]float64) *Mesh {
	m := NewMesh()
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.AddPoint(origin[0]+float64(i), origin[1]+float64(j), origin[2])
		}
	}
	pt := func(i, j int) int { return j*(nx+1) + i }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			m.AddCell(pt(i, j), pt(i+1, j), pt(i+1, j+1), pt(i, j+1))
		}
	}
	return m
}
