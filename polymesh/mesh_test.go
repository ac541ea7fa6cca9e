package polymesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/polyredist/types"
)

func TestQuadGrid(t *testing.T) {
	m := NewQuadGrid(3, 2, [3]float64{1, 0, 0})
	require.NoError(t, m.Validate())
	assert.Equal(t, 6, m.NumCells())
	assert.Equal(t, 12, m.NumPoints())
	assert.Equal(t, 6*5, len(m.Polys.Conn))
	assert.Equal(t, []int64{0, 1, 5, 4}, m.Polys.Cell(0))
	assert.Equal(t, []int64{6, 7, 11, 10}, m.Polys.Cell(5))
	assert.Equal(t, 5, m.Polys.CellLength(3))
	assert.Equal(t, [3]float64{1.5, 0.5, 0}, m.CellCenter(0))
	lo, hi, ok := m.Bounds()
	assert.True(t, ok)
	assert.Equal(t, [3]float64{1, 0, 0}, lo)
	assert.Equal(t, [3]float64{4, 2, 0}, hi)
	_, _, ok = NewMesh().Bounds()
	assert.False(t, ok)
}

func TestMeshValidate(t *testing.T) {
	{ // Point index past the end
		m := NewQuadGrid(1, 1, [3]float64{})
		m.AddCell(0, 1, 9)
		assert.Error(t, m.Validate())
	}
	{ // Offsets out of step with the flat layout
		m := NewQuadGrid(2, 1, [3]float64{})
		m.Polys.Offsets[1] = 3
		assert.Error(t, m.Validate())
	}
	{ // Degenerate polygons are legal
		m := NewQuadGrid(1, 1, [3]float64{})
		m.AddCell(0, 1, 1, 3)
		assert.NoError(t, m.Validate())
	}
}

func TestAttributeSet(t *testing.T) {
	as := NewAttributeSet()
	for _, r := range AllRoles() {
		assert.True(t, as.CopyEnabled(r))
	}
	assert.Equal(t, 0, as.NumArrays())
	as.Set(Scalars, types.NewArray[int32]("s", 3, 4))
	as.Set(Tensors, types.NewArray[float64]("t", 9, 4))
	as.SetCopy(Vectors, false)
	as.ActiveComponent = 1
	assert.Equal(t, 2, as.NumArrays())
	assert.Equal(t, RoleMask(1<<Scalars|1<<Tensors), as.Present())
	assert.True(t, as.Present().Has(Tensors))
	assert.False(t, as.Present().Has(Normals))
	assert.Equal(t, types.ActiveComponent(1), as.ComponentSel(Scalars))
	assert.Equal(t, types.AllComponents, as.ComponentSel(Tensors))

	clone := as.CloneLayout()
	assert.Equal(t, 2, clone.NumArrays())
	assert.Equal(t, 0, clone.Get(Scalars).Tuples())
	assert.Equal(t, 3, clone.Get(Scalars).Components())
	assert.Equal(t, "t", clone.Get(Tensors).Name())
	assert.False(t, clone.CopyEnabled(Vectors))
	assert.Equal(t, 1, clone.ActiveComponent)
	clone.Resize(7)
	assert.NoError(t, clone.Validate(7, "cell"))
	assert.Equal(t, 4, as.Get(Scalars).Tuples())

	{ // A single component scalar moves whole
		single := NewAttributeSet()
		single.Set(Scalars, types.NewArray[int8]("one", 1, 1))
		single.ActiveComponent = 0
		assert.Equal(t, types.AllComponents, single.ComponentSel(Scalars))
	}
	for name, r := range RoleNameMap {
		assert.Equal(t, name, r.String())
	}
}
