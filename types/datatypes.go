package types

import "fmt"

// ElementType tags the primitive element type of a DataArray
type ElementType uint8

const (
	Bit ElementType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	numElementTypes
)

var ElementTypeNameMap = map[string]ElementType{
	"bit":     Bit,
	"int8":    Int8,
	"uint8":   Uint8,
	"int16":   Int16,
	"uint16":  Uint16,
	"int32":   Int32,
	"uint32":  Uint32,
	"int64":   Int64,
	"uint64":  Uint64,
	"float32": Float32,
	"float64": Float64,
}

var elementTypeNames = func() (names [numElementTypes]string) {
	for name, et := range ElementTypeNameMap {
		names[et] = name
	}
	return
}()

func (et ElementType) String() string {
	if et >= numElementTypes {
		return fmt.Sprintf("ElementType(%d)", uint8(et))
	}
	return elementTypeNames[et]
}

// Size is the width in bytes of one value on the wire, zero for Bit
func (et ElementType) Size() int {
	switch et {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

func (et ElementType) Valid() bool { return et < numElementTypes }

// TypeSet is the set of element types a Codec is willing to move
type TypeSet uint16

func NewTypeSet(ets ...ElementType) (ts TypeSet) {
	for _, et := range ets {
		ts |= 1 << et
	}
	return
}

var (
	// FullTypeSet carries every numeric type
	FullTypeSet = NewTypeSet(Int8, Uint8, Int16, Uint16, Int32, Uint32,
		Int64, Uint64, Float32, Float64)
	// LegacyTypeSet matches the older wire format which refused the short,
	// unsigned short, unsigned int and bit arrays
	LegacyTypeSet = NewTypeSet(Int8, Uint8, Int32, Int64, Uint64, Float32,
		Float64)
)

func (ts TypeSet) Has(et ElementType) bool {
	if !et.Valid() {
		return false
	}
	return ts&(1<<et) != 0
}

func (ts TypeSet) Without(ets ...ElementType) TypeSet {
	return ts &^ NewTypeSet(ets...)
}

var TypeSetNameMap = map[string]TypeSet{
	"full":   FullTypeSet,
	"legacy": LegacyTypeSet,
}
