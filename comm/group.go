// Package comm provides the process group a redistribution pass runs on:
// ranked participants exchanging tagged byte payloads with blocking, ordered,
// point to point Send and Recv.
package comm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNoGroup is returned when an operation is started without a process group
	ErrNoGroup = errors.New("no process group")
	// ErrTagMismatch means the next message from a peer carried another tag
	// than the one the receiver expected
	ErrTagMismatch = errors.New("message tag mismatch")
	// ErrPeerClosed means the peer left the group
	ErrPeerClosed = errors.New("peer closed")
	ErrBadRank    = errors.New("rank out of range")
	ErrMalformed  = errors.New("malformed message")
)

// Logger is used by every group implementation in this package
var Logger = slog.Default()

// Tag identifies the purpose of a message
type Tag uint16

const (
	TagSchemaRequest Tag = iota + 1
	TagSchemaResponse
	TagTransferHeader
	TagConnLength
	TagPointCount
	TagConnectivity
	TagPoints
	TagCounts
	TagGather
	TagReduce
	TagBarrier
	TagHello
)

const (
	tagCellAttributeBase  Tag = 64
	tagPointAttributeBase Tag = 96
)

// CellAttributeTag is the tag of the cell attribute block for a role index
func CellAttributeTag(role int) Tag { return tagCellAttributeBase + Tag(role) }

// PointAttributeTag is the tag of the point attribute block for a role index
func PointAttributeTag(role int) Tag { return tagPointAttributeBase + Tag(role) }

var tagNames = map[Tag]string{
	TagSchemaRequest:  "SchemaRequest",
	TagSchemaResponse: "SchemaResponse",
	TagTransferHeader: "TransferHeader",
	TagConnLength:     "ConnLength",
	TagPointCount:     "PointCount",
	TagConnectivity:   "Connectivity",
	TagPoints:         "Points",
	TagCounts:         "Counts",
	TagGather:         "Gather",
	TagReduce:         "Reduce",
	TagBarrier:        "Barrier",
	TagHello:          "Hello",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	switch {
	case t >= tagPointAttributeBase:
		return fmt.Sprintf("PointAttribute[%d]", t-tagPointAttributeBase)
	case t >= tagCellAttributeBase:
		return fmt.Sprintf("CellAttribute[%d]", t-tagCellAttributeBase)
	}
	return fmt.Sprintf("Tag(%d)", uint16(t))
}

// Group is one participant's view of the process group. Send and Recv block
// until the transfer completes, the peer goes away, or ctx is done. Messages
// between one ordered pair of ranks arrive in the order they were sent.
type Group interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dst int, tag Tag, payload []byte) error
	Recv(ctx context.Context, src int, tag Tag) ([]byte, error)
	// Barrier returns once every rank has entered it
	Barrier(ctx context.Context) error
	Close() error
}

func checkPeer(g Group, peer int) error {
	if peer < 0 || peer >= g.Size() || peer == g.Rank() {
		return fmt.Errorf("%w: peer %d of group size %d at rank %d", ErrBadRank,
			peer, g.Size(), g.Rank())
	}
	return nil
}

func checkTag(src int, want, have Tag) error {
	if want != have {
		return fmt.Errorf("%w: from rank %d expected %v, received %v", ErrTagMismatch,
			src, want, have)
	}
	return nil
}

// linearBarrier gathers a token from every rank on rank 0, then releases
// them all
func linearBarrier(ctx context.Context, g Group) error {
	if g.Rank() == 0 {
		for r := 1; r < g.Size(); r++ {
			if _, err := g.Recv(ctx, r, TagBarrier); err != nil {
				return fmt.Errorf("barrier: %w", err)
			}
		}
		for r := 1; r < g.Size(); r++ {
			if err := g.Send(ctx, r, TagBarrier, nil); err != nil {
				return fmt.Errorf("barrier: %w", err)
			}
		}
		return nil
	}
	if err := g.Send(ctx, 0, TagBarrier, nil); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	if _, err := g.Recv(ctx, 0, TagBarrier); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	return nil
}
