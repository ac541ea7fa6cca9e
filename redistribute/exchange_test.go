package redistribute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
)

// playSender drives rank 1 of a two rank group by hand. It follows the pass
// up to announcing a one cell block of conn entries and points points to
// rank 0, then leaves the block itself to cells.
func playSender(ctx context.Context, g comm.Group, conn, points int64,
	cells func(ctx context.Context, g comm.Group) error) error {
	for i := 0; i < 2; i++ {
		if err := g.Barrier(ctx); err != nil {
			return err
		}
	}
	flag, err := comm.RecvInt64s(ctx, g, 0, comm.TagSchemaRequest, 1)
	if err != nil {
		return err
	}
	empty := polymesh.NewAttributeSet()
	if flag[0] == 1 {
		if err = g.Send(ctx, 0, comm.TagSchemaResponse, encodeSchema(empty, empty)); err != nil {
			return err
		}
	}
	ts := transferSize{cells: 1, cellSig: signature(empty, 0), pointSig: signature(empty, 0)}
	if err = comm.SendInt64s(ctx, g, 0, comm.TagTransferHeader, ts.header()...); err != nil {
		return err
	}
	if err = comm.SendInt64s(ctx, g, 0, comm.TagConnLength, conn); err != nil {
		return err
	}
	if err = comm.SendInt64s(ctx, g, 0, comm.TagPointCount, points); err != nil {
		return err
	}
	if cells == nil {
		return nil
	}
	return cells(ctx, g)
}

// receiveFrom runs rank 0 of the pass against playSender and returns the
// error of rank 0
func receiveFrom(t *testing.T, conn, points int64, cells func(ctx context.Context, g comm.Group) error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	groups := comm.NewLocalGroups(2)
	defer func() {
		for _, g := range groups {
			g.Close()
		}
	}()
	done := make(chan error, 1)
	go func() { done <- playSender(ctx, groups[1], conn, points, cells) }()

	rd := New(Options{Planner: fixedSchedules(&Schedule{Recvs: []RecvOp{{Peer: 1, Count: 1}}})})
	res, err := rd.Run(ctx, groups[0], polymesh.NewMesh())
	assert.Nil(t, res)
	cancel()
	<-done
	return err
}

func sendTriangle(conn []int64, coords []float64) func(ctx context.Context, g comm.Group) error {
	return func(ctx context.Context, g comm.Group) error {
		if err := g.Send(ctx, 0, comm.TagConnectivity, comm.EncodeInt64s(conn)); err != nil {
			return err
		}
		return g.Send(ctx, 0, comm.TagPoints, comm.EncodeFloat64s(coords))
	}
}

func TestAnnouncedSizeOutOfBounds(t *testing.T) {
	tests := []struct {
		name         string
		conn, points int64
	}{
		{"connectivity past bound", maxBlock + 1, 3},
		{"negative connectivity", -1, 3},
		{"points past bound", 4, maxBlock + 1},
		{"negative points", 4, -7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := receiveFrom(t, tt.conn, tt.points, nil)
			assert.ErrorIs(t, err, ErrAllocation)
			assert.ErrorContains(t, err, "ExchangeSizes")
		})
	}
}

func TestShortPayloadDetected(t *testing.T) {
	var (
		conn   = []int64{3, 0, 1, 2}
		coords = []float64{0, 0, 0, 1, 0, 0, 0, 1, 0}
	)
	{ // A well formed block arrives whole
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		groups := comm.NewLocalGroups(2)
		defer groups[0].Close()
		defer groups[1].Close()
		done := make(chan error, 1)
		go func() { done <- playSender(ctx, groups[1], 4, 3, sendTriangle(conn, coords)) }()
		rd := New(Options{Planner: fixedSchedules(&Schedule{Recvs: []RecvOp{{Peer: 1, Count: 1}}})})
		res, err := rd.Run(ctx, groups[0], polymesh.NewMesh())
		require.NoError(t, err)
		require.NoError(t, <-done)
		require.NoError(t, res.Mesh.Validate())
		assert.Equal(t, conn, res.Mesh.Polys.Conn)
		assert.Equal(t, coords, res.Mesh.Points)
	}
	tests := []struct {
		name   string
		conn   []int64
		coords []float64
	}{
		{"short connectivity", conn[:3], coords},
		{"long connectivity", append(conn, 0), coords},
		{"short points", conn, coords[:6]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := receiveFrom(t, 4, 3, sendTriangle(tt.conn, tt.coords))
			assert.ErrorIs(t, err, ErrSizeMismatch)
			assert.ErrorContains(t, err, "ExchangeCellsInterleaved")
		})
	}
}
