package types

import (
	"fmt"
)

// Numeric is the closed set of element types a typed Array can hold
type Numeric interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 |
		float32 | float64
}

// DataArray is a named, multi component array of tuples. Data is stored
// interleaved, component fastest.
type DataArray interface {
	Type() ElementType
	Name() string
	SetName(name string)
	Components() int
	Tuples() int
	// Resize reallocates storage for tuples, keeping the leading values
	Resize(tuples int)
	// NewEmpty returns an array of the same type, name and width with no tuples
	NewEmpty() DataArray
	// Raw returns the backing slice, e.g. []float64
	Raw() any
}

type Array[T Numeric] struct {
	name  string
	comps int
	Data  []T
}

func NewArray[T Numeric](name string, comps, tuples int) *Array[T] {
	if comps < 1 {
		panic(fmt.Errorf("array %q: component count must be >= 1, have %d", name, comps))
	}
	return &Array[T]{
		name:  name,
		comps: comps,
		Data:  make([]T, comps*tuples),
	}
}

func NewArrayFromData[T Numeric](name string, comps int, data []T) *Array[T] {
	if comps < 1 || len(data)%comps != 0 {
		panic(fmt.Errorf("array %q: %d values do not divide into %d components",
			name, len(data), comps))
	}
	return &Array[T]{name: name, comps: comps, Data: data}
}

func elementTypeOf[T Numeric]() ElementType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	default:
		return Float64
	}
}

func (a *Array[T]) Type() ElementType    { return elementTypeOf[T]() }
func (a *Array[T]) Name() string         { return a.name }
func (a *Array[T]) SetName(name string)  { a.name = name }
func (a *Array[T]) Components() int      { return a.comps }
func (a *Array[T]) Tuples() int          { return len(a.Data) / a.comps }
func (a *Array[T]) Raw() any             { return a.Data }
func (a *Array[T]) NewEmpty() DataArray  { return &Array[T]{name: a.name, comps: a.comps, Data: []T{}} }
func (a *Array[T]) Tuple(i int) []T      { return a.Data[i*a.comps : (i+1)*a.comps] }
func (a *Array[T]) At(i, comp int) T     { return a.Data[i*a.comps+comp] }
func (a *Array[T]) Set(i, comp int, v T) { a.Data[i*a.comps+comp] = v }

func (a *Array[T]) Resize(tuples int) {
	data := make([]T, tuples*a.comps)
	copy(data, a.Data)
	a.Data = data
}

func (a *Array[T]) AppendTuple(vals ...T) {
	if len(vals) != a.comps {
		panic(fmt.Errorf("array %q: tuple has %d values, want %d", a.name, len(vals), a.comps))
	}
	a.Data = append(a.Data, vals...)
}

// BitArray holds packed booleans. It is a valid attribute but no Codec will
// transfer it.
type BitArray struct {
	name  string
	comps int
	Bits  []bool
}

func NewBitArray(name string, comps, tuples int) *BitArray {
	return &BitArray{name: name, comps: comps, Bits: make([]bool, comps*tuples)}
}

func (b *BitArray) Type() ElementType   { return Bit }
func (b *BitArray) Name() string        { return b.name }
func (b *BitArray) SetName(name string) { b.name = name }
func (b *BitArray) Components() int     { return b.comps }
func (b *BitArray) Tuples() int         { return len(b.Bits) / b.comps }
func (b *BitArray) Raw() any            { return b.Bits }
func (b *BitArray) NewEmpty() DataArray { return &BitArray{name: b.name, comps: b.comps, Bits: []bool{}} }

func (b *BitArray) Resize(tuples int) {
	bits := make([]bool, tuples*b.comps)
	copy(bits, b.Bits)
	b.Bits = bits
}

// NewDataArray builds an empty array for a type tag, used when an array
// layout arrives over the wire
func NewDataArray(et ElementType, name string, comps int) (DataArray, error) {
	if comps < 1 {
		return nil, fmt.Errorf("array %q: component count must be >= 1, have %d", name, comps)
	}
	switch et {
	case Bit:
		return NewBitArray(name, comps, 0), nil
	case Int8:
		return NewArray[int8](name, comps, 0), nil
	case Uint8:
		return NewArray[uint8](name, comps, 0), nil
	case Int16:
		return NewArray[int16](name, comps, 0), nil
	case Uint16:
		return NewArray[uint16](name, comps, 0), nil
	case Int32:
		return NewArray[int32](name, comps, 0), nil
	case Uint32:
		return NewArray[uint32](name, comps, 0), nil
	case Int64:
		return NewArray[int64](name, comps, 0), nil
	case Uint64:
		return NewArray[uint64](name, comps, 0), nil
	case Float32:
		return NewArray[float32](name, comps, 0), nil
	case Float64:
		return NewArray[float64](name, comps, 0), nil
	}
	return nil, fmt.Errorf("array %q: %w: %v", name, ErrUnsupportedType, et)
}
