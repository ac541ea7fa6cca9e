package comm

import (
	"context"
	"encoding/binary"
	"fmt"
)

func EncodeInt64s(vals []int64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(v))
	}
	return buf
}

func DecodeInt64s(buf []byte) ([]int64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of int64", ErrMalformed, len(buf))
	}
	vals := make([]int64, len(buf)/8)
	_, err := binary.Decode(buf, binary.LittleEndian, vals)
	return vals, err
}

// DecodeInt64sInto decodes buf into dst, which must have exactly the decoded
// length
func DecodeInt64sInto(dst []int64, buf []byte) error {
	if len(buf) != 8*len(dst) {
		return fmt.Errorf("%w: %d bytes for %d int64", ErrMalformed, len(buf), len(dst))
	}
	_, err := binary.Decode(buf, binary.LittleEndian, dst)
	return err
}

func EncodeFloat64s(vals []float64) []byte {
	buf, _ := binary.Append(make([]byte, 0, 8*len(vals)), binary.LittleEndian, vals)
	return buf
}

// DecodeFloat64sInto decodes buf into dst, which must have exactly the
// decoded length
func DecodeFloat64sInto(dst []float64, buf []byte) error {
	if len(buf) != 8*len(dst) {
		return fmt.Errorf("%w: %d bytes for %d float64", ErrMalformed, len(buf), len(dst))
	}
	_, err := binary.Decode(buf, binary.LittleEndian, dst)
	return err
}

func SendInt64s(ctx context.Context, g Group, dst int, tag Tag, vals ...int64) error {
	return g.Send(ctx, dst, tag, EncodeInt64s(vals))
}

// RecvInt64s receives an int64 array, n < 0 accepts any length
func RecvInt64s(ctx context.Context, g Group, src int, tag Tag, n int) ([]int64, error) {
	buf, err := g.Recv(ctx, src, tag)
	if err != nil {
		return nil, err
	}
	vals, err := DecodeInt64s(buf)
	if err != nil {
		return nil, fmt.Errorf("%v from rank %d: %w", tag, src, err)
	}
	if n >= 0 && len(vals) != n {
		return nil, fmt.Errorf("%w: %v from rank %d has %d values, want %d", ErrMalformed,
			tag, src, len(vals), n)
	}
	return vals, nil
}
