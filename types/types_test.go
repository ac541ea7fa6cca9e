package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip[T Numeric](t *testing.T, vals []T) {
	var (
		codec = NewCodec(FullTypeSet, 0)
		src   = NewArrayFromData[T]("src", 2, vals)
		dst   = NewArray[T]("dst", 2, src.Tuples()+1)
	)
	payload, err := codec.Pack(src, ByIndex([]int{2, 0}), AllComponents)
	require.NoError(t, err)
	assert.Equal(t, 4*src.Type().Size(), len(payload))
	n, err := codec.Unpack(dst, 1, AllComponents, payload)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, src.Tuple(2), dst.Tuple(1))
	assert.Equal(t, src.Tuple(0), dst.Tuple(2))
	assert.Equal(t, []T{0, 0}, dst.Tuple(0))
}

func TestCodecAllTypes(t *testing.T) {
	roundTrip(t, []int8{1, -2, 3, -4, 5, -6})
	roundTrip(t, []uint8{1, 2, 3, 4, 5, 255})
	roundTrip(t, []int16{1, -2, 3, -4, 5, -32768})
	roundTrip(t, []uint16{1, 2, 3, 4, 5, 65535})
	roundTrip(t, []int32{1, -2, 3, -4, 5, -1 << 31})
	roundTrip(t, []uint32{1, 2, 3, 4, 5, 1<<32 - 1})
	roundTrip(t, []int64{1, -2, 3, -4, 5, -1 << 62})
	roundTrip(t, []uint64{1, 2, 3, 4, 5, 1<<64 - 1})
	roundTrip(t, []float32{1.5, -2.5, 3.25, -4, 5, 6e20})
	roundTrip(t, []float64{1.5, -2.5, 3.25, -4, 5, 6e200})
}

func TestCodecSelections(t *testing.T) {
	codec := NewCodec(FullTypeSet, 3)
	src := NewArrayFromData[int32]("s", 3, []int32{
		0, 1, 2,
		10, 11, 12,
		20, 21, 22,
		30, 31, 32,
	})
	{ // Contiguous block
		dst := NewArray[int32]("d", 3, 2)
		require.NoError(t, codec.Copy(dst, 0, src, ByRange(1, 2), AllComponents))
		assert.Equal(t, []int32{10, 11, 12, 20, 21, 22}, dst.Data)
	}
	{ // Active component only moves one value per tuple
		payload, err := codec.Pack(src, ByRange(2, 2), ActiveComponent(0))
		require.NoError(t, err)
		assert.Equal(t, 2*4, len(payload))
		dst := NewArray[int32]("d", 3, 2)
		n, err := codec.Unpack(dst, 0, ActiveComponent(0), payload)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []int32{20, 0, 0, 30, 0, 0}, dst.Data)
	}
	{ // Bad addressing
		_, err := codec.Pack(src, ByIndex([]int{4}), AllComponents)
		assert.ErrorIs(t, err, ErrOutOfRange)
		_, err = codec.Pack(src, ByRange(0, 1), ActiveComponent(3))
		assert.ErrorIs(t, err, ErrOutOfRange)
		dst := NewArray[int32]("d", 3, 1)
		payload, _ := codec.Pack(src, ByRange(0, 2), AllComponents)
		_, err = codec.Unpack(dst, 0, AllComponents, payload)
		assert.ErrorIs(t, err, ErrOutOfRange)
		_, err = codec.Unpack(dst, 0, AllComponents, payload[:5])
		assert.ErrorIs(t, err, ErrPayloadSize)
		assert.ErrorIs(t, codec.Copy(NewArray[int64]("x", 3, 4), 0, src, ByRange(0, 1), AllComponents),
			ErrTypeMismatch)
	}
}

func TestCodecUnsupported(t *testing.T) {
	legacy := NewCodec(LegacyTypeSet, 0)
	for _, arr := range []DataArray{
		NewArray[int16]("a", 1, 2),
		NewArray[uint16]("b", 1, 2),
		NewArray[uint32]("c", 1, 2),
		NewBitArray("d", 1, 2),
	} {
		_, err := legacy.Pack(arr, ByRange(0, 2), AllComponents)
		assert.ErrorIs(t, err, ErrUnsupportedType, arr.Type().String())
	}
	{ // Nothing is written on refusal
		dst := NewArrayFromData[uint16]("u", 1, []uint16{7, 7})
		_, err := legacy.Unpack(dst, 0, AllComponents, []byte{1, 0, 2, 0})
		assert.ErrorIs(t, err, ErrUnsupportedType)
		assert.Equal(t, []uint16{7, 7}, dst.Data)
	}
	full := NewCodec(0, 0)
	_, err := full.Pack(NewArray[uint16]("u", 1, 1), ByRange(0, 1), AllComponents)
	assert.NoError(t, err)
	_, err = full.Pack(NewBitArray("bits", 1, 1), ByRange(0, 1), AllComponents)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.True(t, full.Supports(Uint32))
	assert.False(t, legacy.Supports(Uint32))
}

func TestCodecRecolor(t *testing.T) {
	codec := &Codec{Types: FullTypeSet, Recolor: true, Owner: 5}
	src := NewArrayFromData[float64]("f", 2, []float64{1, 2, 3, 4})
	payload, err := codec.Pack(src, ByRange(0, 2), AllComponents)
	require.NoError(t, err)
	assert.Equal(t, 32, len(payload))
	dst := NewArray[float64]("f", 2, 3)
	_, err = codec.Unpack(dst, 1, AllComponents, payload)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 5, 5, 5, 5}, dst.Data)
	{ // Integer types are never recolored
		isrc := NewArrayFromData[int64]("i", 1, []int64{9, 8})
		idst := NewArray[int64]("i", 1, 2)
		require.NoError(t, codec.Copy(idst, 0, isrc, ByRange(0, 2), AllComponents))
		assert.Equal(t, []int64{9, 8}, idst.Data)
	}
}

func TestDataArrayFactory(t *testing.T) {
	for name, et := range ElementTypeNameMap {
		arr, err := NewDataArray(et, name, 3)
		require.NoError(t, err)
		assert.Equal(t, et, arr.Type())
		assert.Equal(t, name, arr.Type().String())
		assert.Equal(t, 3, arr.Components())
		arr.Resize(4)
		assert.Equal(t, 4, arr.Tuples())
	}
	_, err := NewDataArray(ElementType(200), "x", 1)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = NewDataArray(Int8, "x", 0)
	assert.Error(t, err)
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 0, Bit.Size())
}
