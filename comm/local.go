package comm

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

type message struct {
	tag     Tag
	payload []byte
}

// fabric links every ordered pair of ranks with an unbuffered channel, so a
// Send only completes when the peer takes the message. Two ranks that both
// Send to each other first deadlock, as they would on a transport without
// buffering.
type fabric struct {
	links  [][]chan message // [src][dst]
	closed []chan struct{}
	once   []sync.Once
}

// LocalGroup is an in-process Group, one per goroutine
type LocalGroup struct {
	rank int
	f    *fabric
}

// NewLocalGroups builds the n members of an in-process group
func NewLocalGroups(n int) []*LocalGroup {
	f := &fabric{
		links:  make([][]chan message, n),
		closed: make([]chan struct{}, n),
		once:   make([]sync.Once, n),
	}
	groups := make([]*LocalGroup, n)
	for src := 0; src < n; src++ {
		f.links[src] = make([]chan message, n)
		for dst := 0; dst < n; dst++ {
			if dst != src {
				f.links[src][dst] = make(chan message)
			}
		}
		f.closed[src] = make(chan struct{})
		groups[src] = &LocalGroup{rank: src, f: f}
	}
	return groups
}

func (lg *LocalGroup) Rank() int { return lg.rank }

func (lg *LocalGroup) Size() int { return len(lg.f.links) }

func (lg *LocalGroup) Send(ctx context.Context, dst int, tag Tag, payload []byte) error {
	if err := checkPeer(lg, dst); err != nil {
		return err
	}
	msg := message{tag: tag, payload: bytes.Clone(payload)}
	select {
	case lg.f.links[lg.rank][dst] <- msg:
		return nil
	case <-lg.f.closed[dst]:
		return fmt.Errorf("%w: sending %v to rank %d", ErrPeerClosed, tag, dst)
	case <-lg.f.closed[lg.rank]:
		return fmt.Errorf("%w: rank %d is closed", ErrPeerClosed, lg.rank)
	case <-ctx.Done():
		return fmt.Errorf("sending %v to rank %d: %w", tag, dst, ctx.Err())
	}
}

func (lg *LocalGroup) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	if err := checkPeer(lg, src); err != nil {
		return nil, err
	}
	select {
	case msg := <-lg.f.links[src][lg.rank]:
		if err := checkTag(src, tag, msg.tag); err != nil {
			return nil, err
		}
		return msg.payload, nil
	case <-lg.f.closed[src]:
		return nil, fmt.Errorf("%w: receiving %v from rank %d", ErrPeerClosed, tag, src)
	case <-lg.f.closed[lg.rank]:
		return nil, fmt.Errorf("%w: rank %d is closed", ErrPeerClosed, lg.rank)
	case <-ctx.Done():
		return nil, fmt.Errorf("receiving %v from rank %d: %w", tag, src, ctx.Err())
	}
}

func (lg *LocalGroup) Barrier(ctx context.Context) error { return linearBarrier(ctx, lg) }

func (lg *LocalGroup) Close() error {
	lg.f.once[lg.rank].Do(func() { close(lg.f.closed[lg.rank]) })
	return nil
}
