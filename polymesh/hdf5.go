package polymesh

import (
	"fmt"

	"github.com/scigolib/hdf5"
)

// hdf5Data maps an attribute array onto a datatype the hdf5 reader can load
// back. Narrow integers widen to int32, unsigned 32 and 64 bit to int64.
// Bit arrays have no mapping.
func hdf5Data(raw any) (hdf5.Datatype, any, bool) {
	switch d := raw.(type) {
	case []float64:
		return hdf5.Float64, d, true
	case []float32:
		return hdf5.Float32, d, true
	case []int64:
		return hdf5.Int64, d, true
	case []int32:
		return hdf5.Int32, d, true
	case []int8:
		return hdf5.Int32, widen[int8, int32](d), true
	case []uint8:
		return hdf5.Int32, widen[uint8, int32](d), true
	case []int16:
		return hdf5.Int32, widen[int16, int32](d), true
	case []uint16:
		return hdf5.Int32, widen[uint16, int32](d), true
	case []uint32:
		return hdf5.Int64, widen[uint32, int64](d), true
	case []uint64:
		return hdf5.Int64, widen[uint64, int64](d), true
	}
	return 0, nil, false
}

func widen[S, D int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64](src []S) []D {
	dst := make([]D, len(src))
	for i, v := range src {
		dst[i] = D(v)
	}
	return dst
}

// WriteHDF5 writes the mesh as flat datasets: /points [np,3],
// /connectivity, /offsets, and one /cell_<role> or /point_<role> dataset
// [tuples, components] per attribute array. Array names go in a single
// fixed length string dataset /names, one "cell_<role>=<name>" entry per
// named array. Empty datasets and bit arrays are left out.
func WriteHDF5(filename string, m *Mesh) (err error) {
	fw, err := hdf5.CreateForWrite(filename, hdf5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filename, err)
	}
	defer func() {
		if cerr := fw.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", filename, cerr)
		}
	}()

	write := func(name string, dtype hdf5.Datatype, dims []uint64, data any, opts ...hdf5.DatasetOption) error {
		ds, err := fw.CreateDataset(name, dtype, dims, opts...)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
		if err = ds.Write(data); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	if np := m.NumPoints(); np > 0 {
		if err = write("/points", hdf5.Float64, []uint64{uint64(np), 3}, m.Points); err != nil {
			return err
		}
	}
	if nc := m.NumCells(); nc > 0 {
		if err = write("/connectivity", hdf5.Int64, []uint64{uint64(len(m.Polys.Conn))}, m.Polys.Conn); err != nil {
			return err
		}
		offsets := make([]int64, nc)
		for i, o := range m.Polys.Offsets {
			offsets[i] = int64(o)
		}
		if err = write("/offsets", hdf5.Int64, []uint64{uint64(nc)}, offsets); err != nil {
			return err
		}
	}
	var (
		names  []string
		maxLen int
	)
	for _, set := range []struct {
		prefix string
		as     *AttributeSet
	}{{"cell", m.CellData}, {"point", m.PointData}} {
		if set.as == nil {
			continue
		}
		for _, r := range AllRoles() {
			arr := set.as.Get(r)
			if arr == nil || arr.Tuples() == 0 {
				continue
			}
			dtype, data, ok := hdf5Data(arr.Raw())
			if !ok {
				continue
			}
			key := fmt.Sprintf("%s_%v", set.prefix, r)
			if err = write("/"+key, dtype, []uint64{uint64(arr.Tuples()), uint64(arr.Components())}, data); err != nil {
				return err
			}
			if arr.Name() == "" {
				continue
			}
			entry := key + "=" + arr.Name()
			names = append(names, entry)
			maxLen = max(maxLen, len(entry))
		}
	}
	if len(names) == 0 {
		return nil
	}
	// the encoder truncates at the element size, leave room for the NUL
	return write("/names", hdf5.String, []uint64{uint64(len(names))}, names,
		hdf5.WithStringSize(uint32(maxLen+1)))
}

