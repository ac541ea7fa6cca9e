package redistribute

import (
	"fmt"
	"strings"
)

// SendOp moves Count local cells to Peer. Cells lists them explicitly in
// ascending order; when nil they are the contiguous block starting at Start.
type SendOp struct {
	Peer  int
	Count int
	Cells []int
	Start int
}

// RecvOp expects Count cells from Peer
type RecvOp struct {
	Peer  int
	Count int
}

// Schedule is one rank's plan for a single redistribution pass. The cells
// kept locally are KeepCells, or the prefix [0, KeepCount) when KeepCells is
// nil. Every rank's receive from a peer must be matched by a send of the same
// count on that peer.
type Schedule struct {
	KeepCount int
	KeepCells []int
	Sends     []SendOp
	Recvs     []RecvOp
}

// IdentitySchedule keeps every local cell and moves nothing
func IdentitySchedule(numCells int) *Schedule {
	return &Schedule{KeepCount: numCells}
}

func (s *Schedule) keepRange() cellRange {
	if s.KeepCells != nil {
		return explicitCells(s.KeepCells)
	}
	return contiguousCells(0, s.KeepCount)
}

func (op *SendOp) cellRange() cellRange {
	if op.Cells != nil {
		return explicitCells(op.Cells)
	}
	return contiguousCells(op.Start, op.Count)
}

// IncomingCells is the number of cells the schedule expects to receive
func (s *Schedule) IncomingCells() (n int) {
	for _, r := range s.Recvs {
		n += r.Count
	}
	return
}

// OutgoingCells is the number of cells the schedule sends away
func (s *Schedule) OutgoingCells() (n int) {
	for _, op := range s.Sends {
		n += op.Count
	}
	return
}

// resolveBlocks places the contiguous send blocks one after the other, in
// the order they were declared, after the kept prefix. A zero count beside
// an explicit list is taken from the list; any other count is left for
// Validate to check against it.
func (s *Schedule) resolveBlocks() {
	next := 0
	if s.KeepCells == nil {
		next = s.KeepCount
	}
	for i := range s.Sends {
		op := &s.Sends[i]
		if op.Cells != nil {
			if op.Count == 0 {
				op.Count = len(op.Cells)
			}
			continue
		}
		op.Start = next
		next += op.Count
	}
	if s.KeepCells != nil && s.KeepCount == 0 {
		s.KeepCount = len(s.KeepCells)
	}
}

// Validate checks the schedule of rank in a group of size against a mesh of
// numCells local cells: peers in range and distinct, counts non-negative,
// explicit lists ascending, and every local cell either kept or sent exactly
// once.
func (s *Schedule) Validate(rank, size, numCells int) error {
	if s.KeepCount < 0 || (s.KeepCells != nil && s.KeepCount != len(s.KeepCells)) {
		return fmt.Errorf("%w: keep count %d", ErrInvalidSchedule, s.KeepCount)
	}
	checkPeer := func(kind string, peer, count int, seen map[int]bool) error {
		switch {
		case peer < 0 || peer >= size:
			return fmt.Errorf("%w: %s peer %d outside group of %d", ErrInvalidSchedule, kind, peer, size)
		case peer == rank:
			return fmt.Errorf("%w: %s to self at rank %d", ErrInvalidSchedule, kind, rank)
		case count < 0:
			return fmt.Errorf("%w: %s count %d for peer %d", ErrInvalidSchedule, kind, count, peer)
		case seen[peer]:
			return fmt.Errorf("%w: more than one %s for peer %d", ErrInvalidSchedule, kind, peer)
		}
		seen[peer] = true
		return nil
	}
	var (
		covered = make([]bool, numCells)
		cover   = func(what string, cr cellRange) error {
			prev := -1
			for i := 0; i < cr.len(); i++ {
				c := cr.at(i)
				if c < 0 || c >= numCells {
					return fmt.Errorf("%w: %s cell %d outside [0,%d)", ErrInvalidSchedule, what, c, numCells)
				}
				if c <= prev {
					return fmt.Errorf("%w: %s cells not ascending at %d", ErrInvalidSchedule, what, c)
				}
				if covered[c] {
					return fmt.Errorf("%w: cell %d is scheduled twice", ErrInvalidSchedule, c)
				}
				covered[c], prev = true, c
			}
			return nil
		}
		seen = make(map[int]bool)
	)
	if err := cover("kept", s.keepRange()); err != nil {
		return err
	}
	for i := range s.Sends {
		op := &s.Sends[i]
		if err := checkPeer("send", op.Peer, op.Count, seen); err != nil {
			return err
		}
		if op.Cells != nil && len(op.Cells) != op.Count {
			return fmt.Errorf("%w: send to %d lists %d cells for count %d", ErrInvalidSchedule,
				op.Peer, len(op.Cells), op.Count)
		}
		if err := cover(fmt.Sprintf("send to %d", op.Peer), op.cellRange()); err != nil {
			return err
		}
	}
	clear(seen)
	for _, r := range s.Recvs {
		if err := checkPeer("receive", r.Peer, r.Count, seen); err != nil {
			return err
		}
	}
	for c, ok := range covered {
		if !ok {
			return fmt.Errorf("%w: cell %d is neither kept nor sent", ErrInvalidSchedule, c)
		}
	}
	return nil
}

func (s *Schedule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "keep %d", s.KeepCount)
	for _, op := range s.Sends {
		fmt.Fprintf(&b, ", send %d->%d", op.Count, op.Peer)
	}
	for _, r := range s.Recvs {
		fmt.Fprintf(&b, ", recv %d<-%d", r.Count, r.Peer)
	}
	return b.String()
}
