package redistribute

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/notargets/polyredist/comm"
)

type State uint8

const (
	Start State = iota
	BuildSchedule
	OrderSchedule
	NegotiateAttributeLayout
	SizeLocalCells
	ExchangeSizes
	AllocateOutput
	CopyRetainedCells
	ExchangeCellsInterleaved
	Done
)

var stateNames = [...]string{
	Start:                    "Start",
	BuildSchedule:            "BuildSchedule",
	OrderSchedule:            "OrderSchedule",
	NegotiateAttributeLayout: "NegotiateAttributeLayout",
	SizeLocalCells:           "SizeLocalCells",
	ExchangeSizes:            "ExchangeSizes",
	AllocateOutput:           "AllocateOutput",
	CopyRetainedCells:        "CopyRetainedCells",
	ExchangeCellsInterleaved: "ExchangeCellsInterleaved",
	Done:                     "Done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

type StateTiming struct {
	State   State
	Elapsed time.Duration
}

// Stats describes one rank's pass
type Stats struct {
	Rank, Size                             int
	CellsIn, PointsIn                      int
	CellsOut, PointsOut                    int
	CellsKept, CellsSent, CellsReceived    int
	PointsKept, PointsSent, PointsReceived int
	BytesSent, BytesReceived               map[int]int64 // by peer
	Timings                                []StateTiming
}

func (st *Stats) TotalBytesSent() (n int64) {
	for _, b := range st.BytesSent {
		n += b
	}
	return
}

func (st *Stats) TotalBytesReceived() (n int64) {
	for _, b := range st.BytesReceived {
		n += b
	}
	return
}

func (st *Stats) Elapsed() (d time.Duration) {
	for _, t := range st.Timings {
		d += t.Elapsed
	}
	return
}

func (st *Stats) Print() {
	fmt.Printf("Rank %d of %d\n", st.Rank, st.Size)
	fmt.Printf("\tCells  in/out = %d/%d, kept %d, sent %d, received %d\n",
		st.CellsIn, st.CellsOut, st.CellsKept, st.CellsSent, st.CellsReceived)
	fmt.Printf("\tPoints in/out = %d/%d, kept %d, sent %d, received %d\n",
		st.PointsIn, st.PointsOut, st.PointsKept, st.PointsSent, st.PointsReceived)
	peers := make([]int, 0, len(st.BytesSent)+len(st.BytesReceived))
	for p := range st.BytesSent {
		peers = append(peers, p)
	}
	for p := range st.BytesReceived {
		if _, ok := st.BytesSent[p]; !ok {
			peers = append(peers, p)
		}
	}
	sort.Ints(peers)
	for _, p := range peers {
		fmt.Printf("\tPeer %d: sent %d bytes, received %d bytes\n", p, st.BytesSent[p], st.BytesReceived[p])
	}
	for _, t := range st.Timings {
		fmt.Printf("\t%-26s %v\n", t.State, t.Elapsed)
	}
}

// passTimer records how long a pass spends in each state
type passTimer struct {
	state   State
	since   time.Time
	timings []StateTiming
}

func newPassTimer() *passTimer { return &passTimer{state: Start, since: time.Now()} }

func (pt *passTimer) enter(s State) {
	now := time.Now()
	pt.timings = append(pt.timings, StateTiming{State: pt.state, Elapsed: now.Sub(pt.since)})
	pt.state, pt.since = s, now
}

// countingGroup tallies the payload bytes moved with each peer
type countingGroup struct {
	comm.Group
	sent, recv map[int]int64
}

func newCountingGroup(g comm.Group) *countingGroup {
	return &countingGroup{Group: g, sent: make(map[int]int64), recv: make(map[int]int64)}
}

func (cg *countingGroup) Send(ctx context.Context, dst int, tag comm.Tag, payload []byte) error {
	err := cg.Group.Send(ctx, dst, tag, payload)
	if err == nil {
		cg.sent[dst] += int64(len(payload))
	}
	return err
}

func (cg *countingGroup) Recv(ctx context.Context, src int, tag comm.Tag) ([]byte, error) {
	buf, err := cg.Group.Recv(ctx, src, tag)
	if err == nil {
		cg.recv[src] += int64(len(buf))
	}
	return buf, err
}
