package redistribute

import (
	"context"
	"fmt"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
)

// Planner builds this rank's schedule for one pass. Every rank of the group
// calls Plan together, so a planner may communicate.
type Planner interface {
	Plan(ctx context.Context, g comm.Group, m *polymesh.Mesh) (*Schedule, error)
}

// PlannerFunc adapts a function to a Planner
type PlannerFunc func(ctx context.Context, g comm.Group, m *polymesh.Mesh) (*Schedule, error)

func (f PlannerFunc) Plan(ctx context.Context, g comm.Group, m *polymesh.Mesh) (*Schedule, error) {
	return f(ctx, g, m)
}

// IdentityPlanner keeps every cell where it is
type IdentityPlanner struct{}

func (IdentityPlanner) Plan(_ context.Context, _ comm.Group, m *polymesh.Mesh) (*Schedule, error) {
	return IdentitySchedule(m.NumCells()), nil
}

// Assigner picks a destination rank for every local cell
type Assigner interface {
	Assign(ctx context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error)
}

// AssignmentPlanner turns an Assigner's per cell destinations into a schedule
type AssignmentPlanner struct {
	Assigner Assigner
}

func (ap *AssignmentPlanner) Plan(ctx context.Context, g comm.Group, m *polymesh.Mesh) (*Schedule, error) {
	if ap.Assigner == nil {
		return nil, fmt.Errorf("%w: assignment planner without an assigner", ErrInvalidSchedule)
	}
	dest, err := ap.Assigner.Assign(ctx, g, m)
	if err != nil {
		return nil, err
	}
	if len(dest) != m.NumCells() {
		return nil, fmt.Errorf("%w: %d destinations for %d cells", ErrInvalidSchedule, len(dest), m.NumCells())
	}
	return ScheduleFromAssignment(ctx, g, dest)
}

// ScheduleFromAssignment groups the local cells by destination into explicit
// send lists and learns the receive counts from an all-to-all exchange of
// per destination counts, so the resulting schedules agree across the group.
// Cells assigned to this rank are kept; when they form a prefix KeepCells is
// left nil.
func ScheduleFromAssignment(ctx context.Context, g comm.Group, dest []int) (*Schedule, error) {
	var (
		size, rank = g.Size(), g.Rank()
		lists      = make([][]int, size)
	)
	for c, d := range dest {
		if d < 0 || d >= size {
			return nil, fmt.Errorf("%w: cell %d assigned to rank %d of %d", ErrInvalidSchedule, c, d, size)
		}
		lists[d] = append(lists[d], c)
	}
	s := &Schedule{KeepCount: len(lists[rank])}
	if !isPrefix(lists[rank]) {
		s.KeepCells = lists[rank]
	}
	counts := make([]int64, size)
	for d, cells := range lists {
		if d == rank || len(cells) == 0 {
			continue
		}
		s.Sends = append(s.Sends, SendOp{Peer: d, Count: len(cells), Cells: cells})
		counts[d] = int64(len(cells))
	}
	incoming, err := comm.AlltoallInt64s(ctx, g, counts)
	if err != nil {
		return nil, fmt.Errorf("count handshake: %w", err)
	}
	for src, n := range incoming {
		if src != rank && n > 0 {
			s.Recvs = append(s.Recvs, RecvOp{Peer: src, Count: int(n)})
		}
	}
	return s, nil
}

func isPrefix(cells []int) bool {
	for i, c := range cells {
		if c != i {
			return false
		}
	}
	return true
}
