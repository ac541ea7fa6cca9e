package redistribute

import "github.com/notargets/polyredist/polymesh"

// estimate walks the cells of cr once and returns the number of distinct
// points they reference and their flattened connectivity length, length
// headers included. The mesh is not modified.
func estimate(m *polymesh.Mesh, cr cellRange, rt *remapTable) (numPoints, connLen int) {
	rt.reset()
	defer rt.reset()
	for i := 0; i < cr.len(); i++ {
		ids := m.Polys.Cell(cr.at(i))
		connLen += len(ids) + 1
		for _, pt := range ids {
			rt.lookup(pt)
		}
	}
	return rt.size(), connLen
}
