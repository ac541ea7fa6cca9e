package types

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedType = errors.New("unsupported element type")
	ErrTypeMismatch    = errors.New("element type mismatch")
	ErrPayloadSize     = errors.New("payload size mismatch")
	ErrOutOfRange      = errors.New("tuple index out of range")
)

// Selection addresses tuples of an array, either an explicit index list or a
// contiguous block [Start, Start+Count)
type Selection struct {
	Indices      []int
	Start, Count int
}

func ByIndex(idx []int) Selection { return Selection{Indices: idx, Count: len(idx)} }

func ByRange(start, count int) Selection { return Selection{Start: start, Count: count} }

func (s Selection) Len() int {
	if s.Indices != nil {
		return len(s.Indices)
	}
	return s.Count
}

func (s Selection) At(i int) int {
	if s.Indices != nil {
		return s.Indices[i]
	}
	return s.Start + i
}

// ComponentSel picks either every component of a tuple or a single active one
type ComponentSel int

const AllComponents ComponentSel = -1

func ActiveComponent(comp int) ComponentSel { return ComponentSel(comp) }

func (cs ComponentSel) width(comps int) int {
	if cs == AllComponents {
		return comps
	}
	return 1
}

func (cs ComponentSel) check(arr DataArray) error {
	if cs != AllComponents && (cs < 0 || int(cs) >= arr.Components()) {
		return fmt.Errorf("%w: component %d of %d in %q", ErrOutOfRange,
			int(cs), arr.Components(), arr.Name())
	}
	return nil
}

type typedArray interface {
	DataArray
	encode(sel Selection, comp ComponentSel) ([]byte, error)
	decode(offset int, comp ComponentSel, payload []byte) (int, error)
	copyFrom(offset int, src DataArray, sel Selection, comp ComponentSel) error
}

func (a *Array[T]) gather(sel Selection, comp ComponentSel) ([]T, error) {
	var (
		n   = a.Tuples()
		out = make([]T, 0, sel.Len()*comp.width(a.comps))
	)
	for i := 0; i < sel.Len(); i++ {
		t := sel.At(i)
		if t < 0 || t >= n {
			return nil, fmt.Errorf("%w: tuple %d of %d in %q", ErrOutOfRange, t, n, a.name)
		}
		if comp == AllComponents {
			out = append(out, a.Data[t*a.comps:(t+1)*a.comps]...)
		} else {
			out = append(out, a.Data[t*a.comps+int(comp)])
		}
	}
	return out, nil
}

func (a *Array[T]) scatter(offset int, comp ComponentSel, vals []T) (count int, err error) {
	count = len(vals) / comp.width(a.comps)
	if offset < 0 || offset+count > a.Tuples() {
		return 0, fmt.Errorf("%w: tuples [%d,%d) of %d in %q", ErrOutOfRange,
			offset, offset+count, a.Tuples(), a.name)
	}
	if comp == AllComponents {
		copy(a.Data[offset*a.comps:], vals)
		return
	}
	for i := 0; i < count; i++ {
		a.Data[(offset+i)*a.comps+int(comp)] = vals[i]
	}
	return
}

func (a *Array[T]) encode(sel Selection, comp ComponentSel) ([]byte, error) {
	vals, err := a.gather(sel, comp)
	if err != nil {
		return nil, err
	}
	return binary.Append(make([]byte, 0, len(vals)*a.Type().Size()), binary.LittleEndian, vals)
}

func (a *Array[T]) decode(offset int, comp ComponentSel, payload []byte) (int, error) {
	var (
		size   = a.Type().Size()
		stride = size * comp.width(a.comps)
	)
	if len(payload)%stride != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of %d byte tuples in %q",
			ErrPayloadSize, len(payload), stride, a.name)
	}
	vals := make([]T, len(payload)/size)
	if _, err := binary.Decode(payload, binary.LittleEndian, vals); err != nil {
		return 0, err
	}
	return a.scatter(offset, comp, vals)
}

func (a *Array[T]) copyFrom(offset int, src DataArray, sel Selection, comp ComponentSel) error {
	s, ok := src.(*Array[T])
	if !ok {
		return fmt.Errorf("%w: cannot copy %v %q into %v %q", ErrTypeMismatch,
			src.Type(), src.Name(), a.Type(), a.name)
	}
	vals, err := s.gather(sel, comp)
	if err != nil {
		return err
	}
	_, err = a.scatter(offset, comp, vals)
	return err
}

// Codec moves selected tuples of typed arrays into and out of little endian
// wire payloads. Types outside the codec's TypeSet are refused with
// ErrUnsupportedType and nothing is written.
type Codec struct {
	Types TypeSet
	// Recolor overwrites every Float64 value written by Unpack or Copy with
	// Owner, to paint received data by owning process
	Recolor bool
	Owner   int
}

func NewCodec(ts TypeSet, owner int) *Codec {
	return &Codec{Types: ts, Owner: owner}
}

func (c *Codec) typeSet() TypeSet {
	if c.Types == 0 {
		return FullTypeSet
	}
	return c.Types
}

func (c *Codec) Supports(et ElementType) bool { return c.typeSet().Has(et) }

func (c *Codec) lookup(arr DataArray) (typedArray, error) {
	if arr == nil {
		return nil, fmt.Errorf("nil array")
	}
	ta, ok := arr.(typedArray)
	if !ok || !c.Supports(arr.Type()) {
		return nil, fmt.Errorf("%w: %v array %q", ErrUnsupportedType, arr.Type(), arr.Name())
	}
	return ta, nil
}

func (c *Codec) Pack(src DataArray, sel Selection, comp ComponentSel) ([]byte, error) {
	ta, err := c.lookup(src)
	if err != nil {
		return nil, err
	}
	if err = comp.check(src); err != nil {
		return nil, err
	}
	return ta.encode(sel, comp)
}

// Unpack writes payload into dst starting at tuple offset and returns the
// number of tuples written
func (c *Codec) Unpack(dst DataArray, offset int, comp ComponentSel, payload []byte) (int, error) {
	ta, err := c.lookup(dst)
	if err != nil {
		return 0, err
	}
	if err = comp.check(dst); err != nil {
		return 0, err
	}
	count, err := ta.decode(offset, comp, payload)
	if err != nil {
		return 0, err
	}
	c.recolor(dst, offset, count, comp)
	return count, nil
}

// Copy moves selected tuples of src into dst at offset without a wire payload
func (c *Codec) Copy(dst DataArray, offset int, src DataArray, sel Selection, comp ComponentSel) error {
	ta, err := c.lookup(dst)
	if err != nil {
		return err
	}
	if _, err = c.lookup(src); err != nil {
		return err
	}
	if err = comp.check(src); err != nil {
		return err
	}
	if err = comp.check(dst); err != nil {
		return err
	}
	if err = ta.copyFrom(offset, src, sel, comp); err != nil {
		return err
	}
	c.recolor(dst, offset, sel.Len(), comp)
	return nil
}

func (c *Codec) recolor(dst DataArray, offset, count int, comp ComponentSel) {
	if !c.Recolor {
		return
	}
	arr, ok := dst.(*Array[float64])
	if !ok {
		return
	}
	owner := float64(c.Owner)
	for i := offset; i < offset+count; i++ {
		if comp == AllComponents {
			for j := range arr.Tuple(i) {
				arr.Set(i, j, owner)
			}
		} else {
			arr.Set(i, int(comp), owner)
		}
	}
}
