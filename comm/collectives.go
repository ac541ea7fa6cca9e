package comm

import (
	"context"
	"fmt"
	"math"
)

// Exchange swaps one payload with peer. The lower rank receives first and the
// higher rank sends first, so the pair never blocks on two sends.
func Exchange(ctx context.Context, g Group, peer int, tag Tag, payload []byte) (in []byte, err error) {
	if g.Rank() < peer {
		if in, err = g.Recv(ctx, peer, tag); err != nil {
			return nil, err
		}
		return in, g.Send(ctx, peer, tag, payload)
	}
	if err = g.Send(ctx, peer, tag, payload); err != nil {
		return nil, err
	}
	return g.Recv(ctx, peer, tag)
}

// forEachPeer runs one Exchange with every other rank in ascending rank order
func forEachPeer(ctx context.Context, g Group, tag Tag, payload func(peer int) []byte,
	receive func(peer int, in []byte) error) error {
	if g == nil {
		return ErrNoGroup
	}
	for peer := 0; peer < g.Size(); peer++ {
		if peer == g.Rank() {
			continue
		}
		in, err := Exchange(ctx, g, peer, tag, payload(peer))
		if err != nil {
			return err
		}
		if err = receive(peer, in); err != nil {
			return err
		}
	}
	return nil
}

// AlltoallInt64s sends send[r] to every rank r and returns recv with recv[r]
// the value rank r sent here
func AlltoallInt64s(ctx context.Context, g Group, send []int64) ([]int64, error) {
	if g == nil {
		return nil, ErrNoGroup
	}
	if len(send) != g.Size() {
		return nil, fmt.Errorf("alltoall: %d values for group size %d", len(send), g.Size())
	}
	recv := make([]int64, g.Size())
	recv[g.Rank()] = send[g.Rank()]
	err := forEachPeer(ctx, g, TagCounts,
		func(peer int) []byte { return EncodeInt64s(send[peer : peer+1]) },
		func(peer int, in []byte) error {
			vals, err := DecodeInt64s(in)
			if err != nil {
				return err
			}
			if len(vals) != 1 {
				return fmt.Errorf("%w: alltoall from rank %d has %d values", ErrMalformed, peer, len(vals))
			}
			recv[peer] = vals[0]
			return nil
		})
	return recv, err
}

// AllgatherInt64s returns every rank's vals indexed by rank
func AllgatherInt64s(ctx context.Context, g Group, vals []int64) ([][]int64, error) {
	if g == nil {
		return nil, ErrNoGroup
	}
	all := make([][]int64, g.Size())
	all[g.Rank()] = append([]int64{}, vals...)
	payload := EncodeInt64s(vals)
	err := forEachPeer(ctx, g, TagGather,
		func(int) []byte { return payload },
		func(peer int, in []byte) (err error) {
			all[peer], err = DecodeInt64s(in)
			return
		})
	return all, err
}

func allgatherFloat64s(ctx context.Context, g Group, vals []float64) ([][]float64, error) {
	all := make([][]float64, g.Size())
	all[g.Rank()] = append([]float64{}, vals...)
	payload := EncodeFloat64s(vals)
	err := forEachPeer(ctx, g, TagReduce,
		func(int) []byte { return payload },
		func(peer int, in []byte) error {
			all[peer] = make([]float64, len(vals))
			return DecodeFloat64sInto(all[peer], in)
		})
	return all, err
}

// AllreduceSumInt64s returns the element wise sum of vals over all ranks
func AllreduceSumInt64s(ctx context.Context, g Group, vals []int64) ([]int64, error) {
	all, err := AllgatherInt64s(ctx, g, vals)
	if err != nil {
		return nil, err
	}
	sum := make([]int64, len(vals))
	for r, rv := range all {
		if len(rv) != len(vals) {
			return nil, fmt.Errorf("%w: allreduce from rank %d has %d values, want %d",
				ErrMalformed, r, len(rv), len(vals))
		}
		for i, v := range rv {
			sum[i] += v
		}
	}
	return sum, nil
}

// AllreduceMinMax returns the element wise min of lo and max of hi over all
// ranks. NaN entries are ignored, so a rank without data can pass NaNs.
func AllreduceMinMax(ctx context.Context, g Group, lo, hi []float64) (gLo, gHi []float64, err error) {
	if g == nil {
		return nil, nil, ErrNoGroup
	}
	if len(lo) != len(hi) {
		return nil, nil, fmt.Errorf("allreduce: %d minima and %d maxima", len(lo), len(hi))
	}
	n := len(lo)
	all, err := allgatherFloat64s(ctx, g, append(append([]float64{}, lo...), hi...))
	if err != nil {
		return nil, nil, err
	}
	gLo, gHi = make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		gLo[i], gHi[i] = math.NaN(), math.NaN()
	}
	for _, rv := range all {
		for i := 0; i < n; i++ {
			if v := rv[i]; !math.IsNaN(v) && (math.IsNaN(gLo[i]) || v < gLo[i]) {
				gLo[i] = v
			}
			if v := rv[n+i]; !math.IsNaN(v) && (math.IsNaN(gHi[i]) || v > gHi[i]) {
				gHi[i] = v
			}
		}
	}
	return gLo, gHi, nil
}
