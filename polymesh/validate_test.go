package polymesh_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/polymesh/meshtest"
)

func TestMeshValidateAttributes(t *testing.T) {
	newMesh := func() *polymesh.Mesh {
		m := polymesh.NewQuadGrid(2, 2, [3]float64{})
		meshtest.AddAttributes(m, 0, 0)
		require.NoError(t, m.Validate())
		return m
	}
	{ // Attribute length
		m := newMesh()
		m.CellData.Get(polymesh.Vectors).Resize(3)
		assert.Error(t, m.Validate())
	}
	{ // Active scalar component out of range
		m := newMesh()
		m.CellData.ActiveComponent = 2
		assert.Error(t, m.Validate())
	}
	{ // Negative active scalar component
		m := newMesh()
		m.CellData.ActiveComponent = -1
		assert.ErrorContains(t, m.Validate(), "negative")
		m = newMesh()
		m.PointData.ActiveComponent = -3
		assert.ErrorContains(t, m.Validate(), "point active scalar component -3")
	}
	{ // Missing attribute sets are reported, not dereferenced
		m := newMesh()
		m.PointData = nil
		assert.NotPanics(t, func() { assert.Error(t, m.Validate()) })
	}
}
