// Package redistribute migrates polygonal cells, the points they reference
// and their attribute arrays between the ranks of a process group, so that
// every rank ends a pass holding the cells its schedule assigns it with
// points renumbered and deduplicated.
package redistribute

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/types"
)

// Logger is the default logger of a Redistributor
var Logger = slog.Default()

type Options struct {
	Planner Planner       // IdentityPlanner when nil
	Types   types.TypeSet // FullTypeSet when zero
	Recolor bool          // paint received Float64 attributes with the owning rank
	Logger  *slog.Logger
}

type Redistributor struct {
	opts Options
}

func New(opts Options) *Redistributor {
	if opts.Planner == nil {
		opts.Planner = IdentityPlanner{}
	}
	if opts.Logger == nil {
		opts.Logger = Logger
	}
	return &Redistributor{opts: opts}
}

// Result is the outcome of a pass on one rank
type Result struct {
	Mesh    *polymesh.Mesh
	Stats   Stats
	Skipped []SkippedArray
}

// transferSize is what moves in one block of cells: the announced sizes and
// the attribute roles carried, with a signature of their layout
type transferSize struct {
	cells, points, conn int
	cellMask, pointMask polymesh.RoleMask
	cellSig, pointSig   int64
}

func (ts transferSize) header() []int64 {
	return []int64{int64(ts.cells), int64(ts.cellMask), int64(ts.pointMask), ts.cellSig, ts.pointSig}
}

const headerLen = 5

// maxBlock bounds the connectivity length and point count one block may
// announce, keeping the output sizes clear of int overflow
const maxBlock = math.MaxInt32 << 16

// watermark is the next free cell, connectivity and point slot of the output
type watermark struct {
	cell, conn, point int
}

type pass struct {
	g     *countingGroup
	rank  int
	log   *slog.Logger
	timer *passTimer
	xfer  *attributeTransfer
	rt    *remapTable

	in, out                 *polymesh.Mesh
	cellLayout, pointLayout *polymesh.AttributeSet

	sched    *Schedule
	steps    []step
	verbatim bool
	keep     transferSize
	sends    []transferSize
	recvs    []transferSize

	wm, total watermark
}

// Run executes one redistribution pass of in on this rank. Every rank of g
// must call Run with the same options. On failure the returned mesh is nil
// and in is left untouched.
func (rd *Redistributor) Run(ctx context.Context, g comm.Group, in *polymesh.Mesh) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("redistribute: %w", comm.ErrNoGroup)
	}
	if in == nil {
		return nil, fmt.Errorf("redistribute: rank %d has no input mesh", g.Rank())
	}
	if in.CellData == nil || in.PointData == nil {
		// a mesh without attribute sets carries no arrays, work on a copy
		// that has empty ones
		cp := *in
		if cp.CellData == nil {
			cp.CellData = polymesh.NewAttributeSet()
		}
		if cp.PointData == nil {
			cp.PointData = polymesh.NewAttributeSet()
		}
		in = &cp
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("redistribute: rank %d input: %w", g.Rank(), err)
	}
	codec := types.NewCodec(rd.opts.Types, g.Rank())
	codec.Recolor = rd.opts.Recolor
	log := rd.opts.Logger.With("rank", g.Rank())
	p := &pass{
		g:     newCountingGroup(g),
		rank:  g.Rank(),
		log:   log,
		timer: newPassTimer(),
		xfer:  newAttributeTransfer(codec, log),
		rt:    newRemapTable(in.NumPoints()),
		in:    in,
	}
	if err := p.run(ctx, rd.opts.Planner); err != nil {
		log.Error("redistribution failed", "state", p.timer.state.String(), "err", err)
		return nil, fmt.Errorf("redistribute: rank %d in %v: %w", p.rank, p.timer.state, err)
	}
	return &Result{Mesh: p.out, Stats: p.stats(), Skipped: p.xfer.skipped}, nil
}

func (p *pass) enter(s State) {
	p.timer.enter(s)
	p.log.Debug("state", "state", s.String())
}

func (p *pass) run(ctx context.Context, planner Planner) (err error) {
	p.enter(BuildSchedule)
	if err = p.g.Barrier(ctx); err != nil {
		return
	}
	if p.sched, err = planner.Plan(ctx, p.g, p.in); err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	if p.sched == nil {
		return fmt.Errorf("%w: planner returned no schedule", ErrInvalidSchedule)
	}
	p.sched.resolveBlocks()
	if err = p.sched.Validate(p.rank, p.g.Size(), p.in.NumCells()); err != nil {
		return
	}
	if err = p.g.Barrier(ctx); err != nil {
		return
	}

	p.enter(OrderSchedule)
	p.sched.Order()
	p.steps = p.sched.interleave(p.rank)
	p.log.Debug("schedule", "schedule", p.sched.String())

	for _, stage := range []struct {
		state State
		fn    func(context.Context) error
	}{
		{NegotiateAttributeLayout, p.negotiateLayout},
		{SizeLocalCells, p.sizeLocal},
		{ExchangeSizes, p.exchangeSizes},
		{AllocateOutput, p.allocate},
		{CopyRetainedCells, p.copyRetained},
		{ExchangeCellsInterleaved, p.exchangeCells},
	} {
		p.enter(stage.state)
		if err = stage.fn(ctx); err != nil {
			return
		}
	}
	if p.wm != p.total {
		return fmt.Errorf("%w: filled %+v of %+v", ErrSizeMismatch, p.wm, p.total)
	}
	p.enter(Done)
	return
}

// negotiateLayout gives a rank without attribute arrays the layout of its
// first sending peer, so that data it receives has somewhere to go
func (p *pass) negotiateLayout(ctx context.Context) error {
	p.cellLayout, p.pointLayout = p.in.CellData.CloneLayout(), p.in.PointData.CloneLayout()
	p.xfer.prune(CellAssociation, p.cellLayout)
	p.xfer.prune(PointAssociation, p.pointLayout)
	want := p.in.NumArrays() == 0
	for _, st := range p.steps {
		if st.send {
			flag, err := comm.RecvInt64s(ctx, p.g, st.peer, comm.TagSchemaRequest, 1)
			if err != nil {
				return err
			}
			if flag[0] == 0 {
				continue
			}
			schema := encodeSchema(p.cellLayout, p.pointLayout)
			if err = p.g.Send(ctx, st.peer, comm.TagSchemaResponse, schema); err != nil {
				return err
			}
			continue
		}
		if err := comm.SendInt64s(ctx, p.g, st.peer, comm.TagSchemaRequest, boolInt(want)); err != nil {
			return err
		}
		if !want {
			continue
		}
		want = false
		buf, err := p.g.Recv(ctx, st.peer, comm.TagSchemaResponse)
		if err != nil {
			return err
		}
		if p.cellLayout, p.pointLayout, err = decodeSchema(buf); err != nil {
			return fmt.Errorf("schema from rank %d: %w", st.peer, err)
		}
		p.xfer.prune(CellAssociation, p.cellLayout)
		p.xfer.prune(PointAssociation, p.pointLayout)
		p.log.Debug("learned attribute layout", "peer", st.peer,
			"cellArrays", p.cellLayout.NumArrays(), "pointArrays", p.pointLayout.NumArrays())
	}
	return nil
}

func (p *pass) sizeLocal(context.Context) error {
	kr := p.sched.keepRange()
	p.verbatim = p.sched.KeepCells == nil && p.sched.KeepCount == p.in.NumCells()
	p.keep = transferSize{
		cells:     kr.len(),
		cellMask:  p.xfer.roles(p.in.CellData, p.cellLayout),
		pointMask: p.xfer.roles(p.in.PointData, p.pointLayout),
	}
	if p.verbatim {
		p.keep.points, p.keep.conn = p.in.NumPoints(), len(p.in.Polys.Conn)
	} else {
		p.keep.points, p.keep.conn = estimate(p.in, kr, p.rt)
	}
	return nil
}

func (p *pass) exchangeSizes(ctx context.Context) (err error) {
	p.sends = make([]transferSize, len(p.sched.Sends))
	p.recvs = make([]transferSize, len(p.sched.Recvs))
	for _, st := range p.steps {
		if st.send {
			err = p.sendSizes(ctx, st)
		} else {
			err = p.recvSizes(ctx, st)
		}
		if err != nil {
			return
		}
	}
	return
}

func (p *pass) sendSizes(ctx context.Context, st step) error {
	op := &p.sched.Sends[st.idx]
	ts := transferSize{
		cells:     op.Count,
		cellMask:  p.xfer.roles(p.in.CellData, p.cellLayout),
		pointMask: p.xfer.roles(p.in.PointData, p.pointLayout),
	}
	ts.points, ts.conn = estimate(p.in, op.cellRange(), p.rt)
	ts.cellSig = signature(p.in.CellData, ts.cellMask)
	ts.pointSig = signature(p.in.PointData, ts.pointMask)
	p.sends[st.idx] = ts
	if err := comm.SendInt64s(ctx, p.g, st.peer, comm.TagTransferHeader, ts.header()...); err != nil {
		return err
	}
	if err := comm.SendInt64s(ctx, p.g, st.peer, comm.TagConnLength, int64(ts.conn)); err != nil {
		return err
	}
	return comm.SendInt64s(ctx, p.g, st.peer, comm.TagPointCount, int64(ts.points))
}

func (p *pass) recvSizes(ctx context.Context, st step) error {
	op := p.sched.Recvs[st.idx]
	hdr, err := comm.RecvInt64s(ctx, p.g, st.peer, comm.TagTransferHeader, headerLen)
	if err != nil {
		return err
	}
	if hdr[0] != int64(op.Count) {
		return fmt.Errorf("%w: rank %d announces %d cells, schedule expects %d",
			ErrScheduleAsymmetry, st.peer, hdr[0], op.Count)
	}
	ts := transferSize{
		cells:     op.Count,
		cellMask:  p.xfer.roles(p.cellLayout, p.cellLayout),
		pointMask: p.xfer.roles(p.pointLayout, p.pointLayout),
	}
	ts.cellSig = signature(p.cellLayout, ts.cellMask)
	ts.pointSig = signature(p.pointLayout, ts.pointMask)
	if want := ts.header(); hdr[1] != want[1] || hdr[3] != want[3] {
		return fmt.Errorf("%w: rank %d sends cell roles %08b, this rank takes %08b",
			ErrLayoutMismatch, st.peer, hdr[1], want[1])
	} else if hdr[2] != want[2] || hdr[4] != want[4] {
		return fmt.Errorf("%w: rank %d sends point roles %08b, this rank takes %08b",
			ErrLayoutMismatch, st.peer, hdr[2], want[2])
	}
	conn, err := comm.RecvInt64s(ctx, p.g, st.peer, comm.TagConnLength, 1)
	if err != nil {
		return err
	}
	points, err := comm.RecvInt64s(ctx, p.g, st.peer, comm.TagPointCount, 1)
	if err != nil {
		return err
	}
	if conn[0] < 0 || points[0] < 0 || conn[0] > maxBlock || points[0] > maxBlock {
		return fmt.Errorf("%w: rank %d announces %d connectivity entries and %d points",
			ErrAllocation, st.peer, conn[0], points[0])
	}
	ts.conn, ts.points = int(conn[0]), int(points[0])
	p.recvs[st.idx] = ts
	return nil
}

// allocate sizes the output once for the kept cells plus everything
// announced
func (p *pass) allocate(context.Context) error {
	var (
		total = watermark{cell: p.keep.cells, conn: p.keep.conn, point: p.keep.points}
		ok    = true
		add   = func(sum *int, n int) {
			if n < 0 || *sum > maxBlock-n {
				ok = false
			}
			*sum += n
		}
	)
	for _, ts := range p.recvs {
		add(&total.cell, ts.cells)
		add(&total.conn, ts.conn)
		add(&total.point, ts.points)
	}
	if !ok {
		return fmt.Errorf("%w: %d cells, %d connectivity entries, %d points",
			ErrAllocation, total.cell, total.conn, total.point)
	}
	out := &polymesh.Mesh{
		Points:    make([]float64, 3*total.point),
		CellData:  p.cellLayout.CloneLayout(),
		PointData: p.pointLayout.CloneLayout(),
	}
	out.Polys.Allocate(total.cell, total.conn)
	out.CellData.Resize(total.cell)
	out.PointData.Resize(total.point)
	p.out, p.total = out, total
	p.log.Debug("allocated output", "cells", total.cell, "points", total.point, "conn", total.conn)
	return nil
}

func (p *pass) copyRetained(context.Context) error {
	var (
		kr       = p.sched.keepRange()
		pointSel types.Selection
		points   int
		conn     int
	)
	if p.verbatim {
		points, conn = copyVerbatim(p.out, p.in)
		pointSel = types.ByRange(0, points)
	} else {
		var ids []int
		ids, conn = copyCells(p.out, p.in, kr, p.rt, p.wm)
		points, pointSel = len(ids), types.ByIndex(ids)
	}
	if points != p.keep.points || conn != p.keep.conn {
		return fmt.Errorf("%w: kept cells use %d points and %d connectivity entries, sized %d and %d",
			ErrSizeMismatch, points, conn, p.keep.points, p.keep.conn)
	}
	if err := p.xfer.copy(p.keep.cellMask, p.out.CellData, p.wm.cell, p.in.CellData, kr.selection()); err != nil {
		return err
	}
	if err := p.xfer.copy(p.keep.pointMask, p.out.PointData, p.wm.point, p.in.PointData, pointSel); err != nil {
		return err
	}
	p.wm.cell += p.keep.cells
	p.wm.conn += conn
	p.wm.point += points
	return nil
}

func (p *pass) exchangeCells(ctx context.Context) (err error) {
	for _, st := range p.steps {
		if st.send {
			op := &p.sched.Sends[st.idx]
			err = p.sendCells(ctx, st.peer, op.cellRange(), p.sends[st.idx])
		} else {
			err = p.recvCells(ctx, st.peer, p.recvs[st.idx])
		}
		if err != nil {
			return
		}
	}
	return
}

// sendCells ships one block: cell attributes, connectivity, point
// coordinates, then point attributes
func (p *pass) sendCells(ctx context.Context, peer int, cr cellRange, ts transferSize) error {
	blk := packCells(p.in, cr, p.rt, ts.points, ts.conn)
	if len(blk.pointIDs) != ts.points || len(blk.conn) != ts.conn {
		return fmt.Errorf("%w: block for rank %d packs %d points and %d connectivity entries, announced %d and %d",
			ErrSizeMismatch, peer, len(blk.pointIDs), len(blk.conn), ts.points, ts.conn)
	}
	if err := p.xfer.send(ctx, p.g, peer, CellAssociation, ts.cellMask, p.in.CellData, cr.selection()); err != nil {
		return err
	}
	if err := p.g.Send(ctx, peer, comm.TagConnectivity, comm.EncodeInt64s(blk.conn)); err != nil {
		return err
	}
	if err := p.g.Send(ctx, peer, comm.TagPoints, comm.EncodeFloat64s(blk.coords)); err != nil {
		return err
	}
	return p.xfer.send(ctx, p.g, peer, PointAssociation, ts.pointMask, p.in.PointData,
		types.ByIndex(blk.pointIDs))
}

// recvCells unpacks one block at the current watermark
func (p *pass) recvCells(ctx context.Context, peer int, ts transferSize) error {
	wm := p.wm
	if err := p.xfer.recv(ctx, p.g, peer, CellAssociation, ts.cellMask, p.out.CellData, wm.cell, ts.cells); err != nil {
		return err
	}
	buf, err := p.g.Recv(ctx, peer, comm.TagConnectivity)
	if err != nil {
		return err
	}
	if len(buf) != 8*ts.conn {
		return fmt.Errorf("%w: %d connectivity bytes from rank %d, announced %d entries",
			ErrSizeMismatch, len(buf), peer, ts.conn)
	}
	if err = comm.DecodeInt64sInto(p.out.Polys.Conn[wm.conn:wm.conn+ts.conn], buf); err != nil {
		return err
	}
	if err = rebaseCells(&p.out.Polys, wm.cell, ts.cells, wm.conn, ts.conn, wm.point, ts.points); err != nil {
		return fmt.Errorf("cells from rank %d: %w", peer, err)
	}
	if buf, err = p.g.Recv(ctx, peer, comm.TagPoints); err != nil {
		return err
	}
	if len(buf) != 24*ts.points {
		return fmt.Errorf("%w: %d coordinate bytes from rank %d, announced %d points",
			ErrSizeMismatch, len(buf), peer, ts.points)
	}
	if err = comm.DecodeFloat64sInto(p.out.Points[3*wm.point:3*(wm.point+ts.points)], buf); err != nil {
		return err
	}
	if err = p.xfer.recv(ctx, p.g, peer, PointAssociation, ts.pointMask, p.out.PointData, wm.point, ts.points); err != nil {
		return err
	}
	p.wm = watermark{cell: wm.cell + ts.cells, conn: wm.conn + ts.conn, point: wm.point + ts.points}
	return nil
}

func (p *pass) stats() Stats {
	st := Stats{
		Rank:          p.rank,
		Size:          p.g.Size(),
		CellsIn:       p.in.NumCells(),
		PointsIn:      p.in.NumPoints(),
		CellsOut:      p.out.NumCells(),
		PointsOut:     p.out.NumPoints(),
		CellsKept:     p.keep.cells,
		PointsKept:    p.keep.points,
		BytesSent:     p.g.sent,
		BytesReceived: p.g.recv,
		Timings:       p.timer.timings,
	}
	for _, ts := range p.sends {
		st.CellsSent += ts.cells
		st.PointsSent += ts.points
	}
	for _, ts := range p.recvs {
		st.CellsReceived += ts.cells
		st.PointsReceived += ts.points
	}
	return st
}
