package redistribute

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/polymesh/meshtest"
	"github.com/notargets/polyredist/types"
)

// runPass runs one pass over len(inputs) in-process ranks
func runPass(t *testing.T, inputs []*polymesh.Mesh, opts Options) ([]*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var (
		rd      = New(opts)
		results = make([]*Result, len(inputs))
	)
	err := comm.RunLocal(ctx, len(inputs), func(ctx context.Context, g comm.Group) (err error) {
		results[g.Rank()], err = rd.Run(ctx, g, inputs[g.Rank()])
		return
	})
	return results, err
}

// fixedSchedules hands every rank its own prepared schedule
func fixedSchedules(scheds ...*Schedule) Planner {
	return PlannerFunc(func(_ context.Context, g comm.Group, _ *polymesh.Mesh) (*Schedule, error) {
		return scheds[g.Rank()], nil
	})
}

type assignerFunc func(ctx context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error)

func (f assignerFunc) Assign(ctx context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error) {
	return f(ctx, g, m)
}

// strip is a row of ncells unit quads with traceable attributes
func strip(ncells, cellBase, pointBase int, y float64) *polymesh.Mesh {
	m := polymesh.NewQuadGrid(ncells, 1, [3]float64{0, y, 0})
	meshtest.AddAttributes(m, cellBase, pointBase)
	return m
}

func cellIDs(m *polymesh.Mesh) (ids []int64) {
	arr := m.CellData.Get(polymesh.Scalars).(*types.Array[int64])
	for c := 0; c < m.NumCells(); c++ {
		ids = append(ids, arr.At(c, 0))
	}
	return
}

func pointIDs(m *polymesh.Mesh) (ids []int) {
	arr := m.PointData.Get(polymesh.Scalars).(*types.Array[float32])
	for p := 0; p < m.NumPoints(); p++ {
		ids = append(ids, int(arr.At(p, 0)))
	}
	return
}

func swapHalves() Planner {
	return fixedSchedules(
		&Schedule{KeepCount: 5, Sends: []SendOp{{Peer: 1, Count: 5}}, Recvs: []RecvOp{{Peer: 1, Count: 5}}},
		&Schedule{KeepCount: 5, Sends: []SendOp{{Peer: 0, Count: 5}}, Recvs: []RecvOp{{Peer: 0, Count: 5}}},
	)
}

func TestIdentityRoundTrip(t *testing.T) {
	inputs := make([]*polymesh.Mesh, 3)
	for r := range inputs {
		m := polymesh.NewQuadGrid(4, r+1, [3]float64{0, 0, float64(r)})
		m.AddPoint(99, 99, 99) // referenced by nothing
		meshtest.AddAttributes(m, 100*r, 1000*r)
		m.CellData.ActiveComponent = 1
		inputs[r] = m
	}
	results, err := runPass(t, inputs, Options{})
	require.NoError(t, err)
	for r, res := range results {
		require.NoError(t, res.Mesh.Validate())
		assert.Equal(t, inputs[r], res.Mesh)
		assert.Empty(t, res.Skipped)
		st := res.Stats
		assert.Equal(t, r, st.Rank)
		assert.Equal(t, 4*(r+1), st.CellsKept)
		assert.Equal(t, inputs[r].NumPoints(), st.PointsKept)
		assert.Zero(t, st.CellsSent+st.CellsReceived)
		assert.Zero(t, st.TotalBytesSent()+st.TotalBytesReceived())
		var states []State
		for _, tm := range st.Timings {
			states = append(states, tm.State)
		}
		assert.Equal(t, []State{Start, BuildSchedule, OrderSchedule, NegotiateAttributeLayout, SizeLocalCells,
			ExchangeSizes, AllocateOutput, CopyRetainedCells, ExchangeCellsInterleaved}, states)
	}
}

func TestTwoRankSwap(t *testing.T) {
	// Rank 0 owns cells 0..9, rank 1 owns 10..19; 5..9 go to 1 and 15..19 to 0
	inputs := []*polymesh.Mesh{strip(10, 0, 0, 0), strip(10, 10, 100, 5)}
	results, err := runPass(t, inputs, Options{Planner: swapHalves()})
	require.NoError(t, err)

	total := 0
	for _, res := range results {
		require.NoError(t, res.Mesh.Validate())
		assert.Equal(t, 10, res.Mesh.NumCells())
		total += res.Mesh.NumCells()
	}
	assert.Equal(t, 20, total)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 15, 16, 17, 18, 19}, cellIDs(results[0].Mesh))
	assert.Equal(t, []int64{10, 11, 12, 13, 14, 5, 6, 7, 8, 9}, cellIDs(results[1].Mesh))

	// Every point of a moved cell arrives exactly once, with its coordinates
	for r, res := range results {
		var (
			src      = inputs[1-r]
			base     = 100 * (1 - r)
			received = make(map[int]int)
		)
		for p, id := range pointIDs(res.Mesh) {
			if id < base || id >= base+src.NumPoints() {
				continue
			}
			received[id-base]++
			assert.Equal(t, src.Point(id-base), res.Mesh.Point(p))
		}
		// Cells 5..9 of an 11 x 2 point strip use columns 5..10 of both rows
		want := []int{5, 6, 7, 8, 9, 10, 16, 17, 18, 19, 20, 21}
		assert.Len(t, received, len(want))
		for _, p := range want {
			assert.Equal(t, 1, received[p], "point %d", p)
		}
		assert.Equal(t, 24, res.Mesh.NumPoints())

		st := res.Stats
		assert.Equal(t, 5, st.CellsKept)
		assert.Equal(t, 5, st.CellsSent)
		assert.Equal(t, 5, st.CellsReceived)
		assert.Equal(t, 12, st.PointsSent)
		assert.Equal(t, 12, st.PointsReceived)
		assert.Positive(t, st.BytesSent[1-r])
		assert.Equal(t, results[1-r].Stats.BytesReceived[r], st.BytesSent[1-r])
	}
}

func TestAttributeFidelity(t *testing.T) {
	inputs := []*polymesh.Mesh{strip(10, 0, 0, 0), strip(10, 10, 100, 5)}
	results, err := runPass(t, inputs, Options{Planner: swapHalves()})
	require.NoError(t, err)
	for r, res := range results {
		var (
			m       = res.Mesh
			scalars = m.CellData.Get(polymesh.Scalars).(*types.Array[int64])
			centers = m.CellData.Get(polymesh.Vectors).(*types.Array[float64])
			stress  = m.CellData.Get(polymesh.Tensors).(*types.Array[uint16])
			normals = m.PointData.Get(polymesh.Normals).(*types.Array[float64])
			uv      = m.PointData.Get(polymesh.TCoords).(*types.Array[uint8])
		)
		for c := 0; c < m.NumCells(); c++ {
			id := scalars.At(c, 0)
			if c < 5 {
				assert.Equal(t, -id, scalars.At(c, 1), "kept cells keep every component")
			} else {
				assert.Zero(t, scalars.At(c, 1), "only the active component travels")
			}
			center := m.CellCenter(c)
			assert.InDeltaSlice(t, center[:], centers.Tuple(c), 1e-12)
			for k := 0; k < 9; k++ {
				assert.EqualValues(t, id+int64(k), stress.At(c, k))
			}
		}
		for p, id := range pointIDs(m) {
			assert.Equal(t, []float64{0, 0, 1}, normals.Tuple(p))
			assert.EqualValues(t, id%256, uv.At(p, 1), "rank %d point %d", r, p)
		}
	}
}

func fidelity[T types.Numeric](t *testing.T) {
	mk := func(ncells, base int, y float64) *polymesh.Mesh {
		m := polymesh.NewQuadGrid(ncells, 1, [3]float64{0, y, 0})
		arr := types.NewArray[T]("Value", 3, ncells)
		for c := 0; c < ncells; c++ {
			for k := 0; k < 3; k++ {
				arr.Set(c, k, T(base+3*c+k))
			}
		}
		m.CellData.Set(polymesh.Vectors, arr)
		return m
	}
	inputs := []*polymesh.Mesh{mk(10, 0, 0), mk(10, 30, 5)}
	results, err := runPass(t, inputs, Options{Planner: swapHalves()})
	require.NoError(t, err)
	for r, res := range results {
		var (
			got  = res.Mesh.CellData.Get(polymesh.Vectors).(*types.Array[T])
			kept = inputs[r].CellData.Get(polymesh.Vectors).(*types.Array[T])
			recv = inputs[1-r].CellData.Get(polymesh.Vectors).(*types.Array[T])
		)
		assert.Equal(t, slices.Concat(kept.Data[:15], recv.Data[15:]), got.Data)
	}
}

func TestAttributeFidelityAllTypes(t *testing.T) {
	t.Run("int8", fidelity[int8])
	t.Run("uint8", fidelity[uint8])
	t.Run("int16", fidelity[int16])
	t.Run("uint16", fidelity[uint16])
	t.Run("int32", fidelity[int32])
	t.Run("uint32", fidelity[uint32])
	t.Run("int64", fidelity[int64])
	t.Run("uint64", fidelity[uint64])
	t.Run("float32", fidelity[float32])
	t.Run("float64", fidelity[float64])
}

func TestDegenerateCellMoves(t *testing.T) {
	src := degenerateMesh()
	results, err := runPass(t, []*polymesh.Mesh{src, polymesh.NewMesh()}, Options{Planner: fixedSchedules(
		&Schedule{KeepCount: 1, Sends: []SendOp{{Peer: 1, Count: 2}}},
		&Schedule{Recvs: []RecvOp{{Peer: 0, Count: 2}}},
	)})
	require.NoError(t, err)
	m := results[1].Mesh
	require.NoError(t, m.Validate())
	require.Equal(t, 2, m.NumCells())
	cell := m.Polys.Cell(0)
	require.Len(t, cell, 4)
	assert.Equal(t, cell[1], cell[3])
	assert.Equal(t, src.Point(7), m.Point(int(cell[1])))
	n := 0
	for p := 0; p < m.NumPoints(); p++ {
		if m.Point(p) == src.Point(7) {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, m.NumPoints())

	// Rank 0 keeps cell 0 and only the points it uses
	assert.Equal(t, 1, results[0].Mesh.NumCells())
	assert.Equal(t, 3, results[0].Mesh.NumPoints())
}

func TestCellConservation(t *testing.T) {
	const size = 4
	inputs := make([]*polymesh.Mesh, size)
	for r := range inputs {
		inputs[r] = strip(6+r, 100*r, 1000*r, float64(2*r))
	}
	dest := func(id int64) int { return int(id*7+3) % size }
	planner := &AssignmentPlanner{Assigner: assignerFunc(
		func(_ context.Context, _ comm.Group, m *polymesh.Mesh) ([]int, error) {
			ids := cellIDs(m)
			out := make([]int, len(ids))
			for c, id := range ids {
				out[c] = dest(id)
			}
			return out, nil
		})}
	results, err := runPass(t, inputs, Options{Planner: planner})
	require.NoError(t, err)

	var before, after []int64
	for r := range inputs {
		before = append(before, cellIDs(inputs[r])...)
		m := results[r].Mesh
		require.NoError(t, m.Validate())
		for _, id := range cellIDs(m) {
			assert.Equal(t, r, dest(id), "cell %d landed on rank %d", id, r)
			after = append(after, id)
		}
		// Every output cell still sits on its own four points
		centers := m.CellData.Get(polymesh.Vectors).(*types.Array[float64])
		for c := 0; c < m.NumCells(); c++ {
			center := m.CellCenter(c)
			assert.InDeltaSlice(t, center[:], centers.Tuple(c), 1e-12)
		}
	}
	slices.Sort(before)
	slices.Sort(after)
	assert.Equal(t, before, after)
}

func TestAssignmentPlannerRejectsBadRank(t *testing.T) {
	planner := &AssignmentPlanner{Assigner: assignerFunc(
		func(_ context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error) {
			out := make([]int, m.NumCells())
			out[0] = g.Size()
			return out, nil
		})}
	_, err := runPass(t, []*polymesh.Mesh{strip(3, 0, 0, 0), strip(3, 3, 10, 2)}, Options{Planner: planner})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestScheduleAsymmetryDetected(t *testing.T) {
	inputs := []*polymesh.Mesh{strip(5, 0, 0, 0), strip(5, 5, 100, 2)}
	_, err := runPass(t, inputs, Options{Planner: fixedSchedules(
		&Schedule{KeepCount: 2, Sends: []SendOp{{Peer: 1, Count: 3}}},
		&Schedule{KeepCount: 5, Recvs: []RecvOp{{Peer: 0, Count: 2}}},
	)})
	assert.ErrorIs(t, err, ErrScheduleAsymmetry)
}

func TestLayoutMismatchDetected(t *testing.T) {
	inputs := []*polymesh.Mesh{strip(5, 0, 0, 0), strip(5, 5, 100, 2)}
	inputs[1].CellData.Remove(polymesh.Vectors)
	_, err := runPass(t, inputs, Options{Planner: fixedSchedules(
		&Schedule{KeepCount: 2, Sends: []SendOp{{Peer: 1, Count: 3}}},
		&Schedule{KeepCount: 5, Recvs: []RecvOp{{Peer: 0, Count: 3}}},
	)})
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestEmptyRankLearnsLayout(t *testing.T) {
	inputs := []*polymesh.Mesh{strip(6, 0, 0, 0), polymesh.NewMesh(), polymesh.NewMesh()}
	inputs[0].PointData.SetCopy(polymesh.TCoords, false)
	results, err := runPass(t, inputs, Options{Planner: fixedSchedules(
		&Schedule{KeepCount: 2, Sends: []SendOp{{Peer: 1, Count: 2}, {Peer: 2, Count: 2}}},
		&Schedule{Recvs: []RecvOp{{Peer: 0, Count: 2}}},
		&Schedule{Recvs: []RecvOp{{Peer: 0, Count: 2}}},
	)})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, cellIDs(results[1].Mesh))
	assert.Equal(t, []int64{4, 5}, cellIDs(results[2].Mesh))
	for _, res := range results {
		m := res.Mesh
		require.NoError(t, m.Validate())
		assert.Equal(t, "GlobalCellId", m.CellData.Get(polymesh.Scalars).Name())
		assert.Equal(t, types.Uint16, m.CellData.Get(polymesh.Tensors).Type())
		assert.Equal(t, 9, m.CellData.Get(polymesh.Tensors).Components())
		assert.Nil(t, m.PointData.Get(polymesh.TCoords), "copy disabled roles are not carried")
		assert.NotNil(t, m.PointData.Get(polymesh.Normals))
	}
	assert.Equal(t, 6, results[1].Mesh.NumPoints())
}

func TestLegacyTypeSetSkips(t *testing.T) {
	inputs := []*polymesh.Mesh{strip(10, 0, 0, 0), strip(10, 10, 100, 5)}
	results, err := runPass(t, inputs, Options{Planner: swapHalves(), Types: types.LegacyTypeSet})
	require.NoError(t, err)
	for _, res := range results {
		require.Len(t, res.Skipped, 1)
		sk := res.Skipped[0]
		assert.Equal(t, CellAssociation, sk.Association)
		assert.Equal(t, polymesh.Tensors, sk.Role)
		assert.Equal(t, "Stress", sk.Name)
		assert.ErrorIs(t, sk.Err, types.ErrUnsupportedType)
		assert.Nil(t, res.Mesh.CellData.Get(polymesh.Tensors))
		// Everything else still moves
		require.NoError(t, res.Mesh.Validate())
		assert.Len(t, cellIDs(res.Mesh), 10)
		assert.NotNil(t, res.Mesh.PointData.Get(polymesh.TCoords))
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 15, 16, 17, 18, 19}, cellIDs(results[0].Mesh))
}

func TestRecolor(t *testing.T) {
	inputs := []*polymesh.Mesh{strip(10, 0, 0, 0), strip(10, 10, 100, 5)}
	results, err := runPass(t, inputs, Options{Planner: swapHalves(), Recolor: true})
	require.NoError(t, err)
	for r, res := range results {
		centers := res.Mesh.CellData.Get(polymesh.Vectors).(*types.Array[float64])
		for _, v := range centers.Data {
			assert.Equal(t, float64(r), v)
		}
		normals := res.Mesh.PointData.Get(polymesh.Normals).(*types.Array[float64])
		for _, v := range normals.Data {
			assert.Equal(t, float64(r), v)
		}
		// Other types are untouched
		assert.Equal(t, int64(10*r), cellIDs(res.Mesh)[0])
	}
}

func TestRunWithoutGroup(t *testing.T) {
	_, err := New(Options{}).Run(context.Background(), nil, polymesh.NewMesh())
	assert.ErrorIs(t, err, comm.ErrNoGroup)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	m := strip(2, 0, 0, 0)
	m.Polys.Conn[1] = 42
	_, err := runPass(t, []*polymesh.Mesh{m}, Options{})
	assert.Error(t, err)
}

func TestRunAcceptsMeshWithoutAttributeSets(t *testing.T) {
	bare := &polymesh.Mesh{Points: []float64{0, 0, 0}}
	results, err := runPass(t, []*polymesh.Mesh{bare}, Options{})
	require.NoError(t, err)
	require.NoError(t, results[0].Mesh.Validate())
	assert.Equal(t, 1, results[0].Mesh.NumPoints())
	assert.Nil(t, bare.CellData, "the caller's mesh is not modified")
	assert.Nil(t, bare.PointData)

	// A bare rank still takes the layout of the cells it receives
	results, err = runPass(t, []*polymesh.Mesh{{}, strip(2, 0, 0, 0)}, Options{Planner: fixedSchedules(
		&Schedule{Recvs: []RecvOp{{Peer: 1, Count: 2}}},
		&Schedule{Sends: []SendOp{{Peer: 0, Count: 2}}},
	)})
	require.NoError(t, err)
	require.NoError(t, results[0].Mesh.Validate())
	assert.Equal(t, []int64{0, 1}, cellIDs(results[0].Mesh))
	assert.Zero(t, results[1].Mesh.NumCells())
}

func TestRunRejectsListCountMismatch(t *testing.T) {
	inputs := []*polymesh.Mesh{strip(4, 0, 0, 0), strip(4, 4, 100, 2)}
	_, err := runPass(t, inputs, Options{Planner: fixedSchedules(
		&Schedule{KeepCells: []int{0, 1}, Sends: []SendOp{{Peer: 1, Count: 3, Cells: []int{2, 3}}}},
		&Schedule{KeepCount: 4, Recvs: []RecvOp{{Peer: 0, Count: 3}}},
	)})
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}
