package partitions

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
)

const (
	mortonAxisBits = 10
	mortonBits     = 3 * mortonAxisBits
)

// expand3 spreads the low 10 bits of v so that two zero bits follow each
func expand3(v uint32) uint32 {
	v = (v | (v << 16)) & 0xFF0000FF
	v = (v | (v << 8)) & 0x0F00F00F
	v = (v | (v << 4)) & 0xC30C30C3
	v = (v | (v << 2)) & 0x49249249
	return v
}

func morton3D(x, y, z uint32) uint32 {
	return expand3(x) | (expand3(y) << 1) | (expand3(z) << 2)
}

func quantize(v, lo, hi float64) uint32 {
	if !(hi > lo) {
		return 0
	}
	q := (v - lo) / (hi - lo) * float64(1<<mortonAxisBits-1)
	return uint32(math.Max(0, math.Min(q, 1<<mortonAxisBits-1)))
}

// MortonAssigner orders cells along a Z curve through the group's bounding
// box and cuts the curve into runs of equal cell count. Runs are cut on a
// histogram of 2^Bits bins, so cells sharing a bin always share a rank.
type MortonAssigner struct {
	Bits int // 12 when zero
}

func (ma MortonAssigner) Assign(ctx context.Context, g comm.Group, m *polymesh.Mesh) ([]int, error) {
	bits := ma.Bits
	if bits <= 0 || bits > mortonBits {
		bits = 12
	}
	lo := []float64{math.NaN(), math.NaN(), math.NaN()}
	hi := []float64{math.NaN(), math.NaN(), math.NaN()}
	if l, h, ok := m.Bounds(); ok {
		lo, hi = l[:], h[:]
	}
	gLo, gHi, err := comm.AllreduceMinMax(ctx, g, lo, hi)
	if err != nil {
		return nil, err
	}
	var (
		shift = mortonBits - bits
		keys  = make([]uint32, m.NumCells())
		hist  = make([]int64, 1<<bits)
	)
	for c := range keys {
		x := m.CellCenter(c)
		keys[c] = morton3D(quantize(x[0], gLo[0], gHi[0]),
			quantize(x[1], gLo[1], gHi[1]), quantize(x[2], gLo[2], gHi[2]))
		hist[keys[c]>>shift]++
	}
	ghist, err := comm.AllreduceSumInt64s(ctx, g, hist)
	if err != nil {
		return nil, err
	}
	var (
		counts = make([]float64, len(ghist))
		cum    = make([]float64, len(ghist))
		size   = float64(g.Size())
	)
	for b, n := range ghist {
		counts[b] = float64(n)
	}
	floats.CumSum(cum, counts)
	total := cum[len(cum)-1]
	dest := make([]int, len(keys))
	for c, k := range keys {
		b := k >> shift
		before := cum[b] - counts[b]
		dest[c] = min(int(before*size/total), g.Size()-1)
	}
	return dest, nil
}
