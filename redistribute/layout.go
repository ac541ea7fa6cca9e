package redistribute

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/types"
)

// encodeSchema describes the arrays of a cell and a point attribute set:
// a header of array count and the two scalar active components, then per
// array its association, type, components, name length, name, role and copy
// flag. Integers are little endian int64.
func encodeSchema(cell, point *polymesh.AttributeSet) []byte {
	var (
		buf bytes.Buffer
		put = func(vals ...int64) { binary.Write(&buf, binary.LittleEndian, vals) }
	)
	put(int64(cell.NumArrays()+point.NumArrays()), int64(cell.ActiveComponent), int64(point.ActiveComponent))
	for _, a := range []Association{CellAssociation, PointAssociation} {
		as := cell
		if a == PointAssociation {
			as = point
		}
		for _, r := range polymesh.AllRoles() {
			arr := as.Get(r)
			if arr == nil {
				continue
			}
			put(int64(a), int64(arr.Type()), int64(arr.Components()), int64(len(arr.Name())))
			buf.WriteString(arr.Name())
			put(int64(r), boolInt(as.CopyEnabled(r)))
		}
	}
	return buf.Bytes()
}

// decodeSchema builds empty attribute sets laid out as described by an
// encoded schema
func decodeSchema(payload []byte) (cell, point *polymesh.AttributeSet, err error) {
	var (
		rd  = bytes.NewReader(payload)
		get = func(n int) ([]int64, error) {
			vals := make([]int64, n)
			if err := binary.Read(rd, binary.LittleEndian, vals); err != nil {
				return nil, fmt.Errorf("%w: schema truncated: %v", comm.ErrMalformed, err)
			}
			return vals, nil
		}
	)
	hdr, err := get(3)
	if err != nil {
		return nil, nil, err
	}
	cell, point = polymesh.NewAttributeSet(), polymesh.NewAttributeSet()
	cell.ActiveComponent, point.ActiveComponent = int(hdr[1]), int(hdr[2])
	for i := int64(0); i < hdr[0]; i++ {
		desc, err := get(4)
		if err != nil {
			return nil, nil, err
		}
		if desc[0] < 0 || desc[0] > int64(PointAssociation) || desc[3] < 0 || desc[3] > int64(rd.Len()) {
			return nil, nil, fmt.Errorf("%w: bad schema entry %v", comm.ErrMalformed, desc)
		}
		var (
			a           = Association(desc[0])
			et          = types.ElementType(desc[1])
			comps       = int(desc[2])
			name        = make([]byte, desc[3])
			arr         types.DataArray
			roleAndFlag []int64
		)
		if _, err = io.ReadFull(rd, name); err != nil {
			return nil, nil, fmt.Errorf("%w: schema name: %v", comm.ErrMalformed, err)
		}
		if roleAndFlag, err = get(2); err != nil {
			return nil, nil, err
		}
		if roleAndFlag[0] < 0 || roleAndFlag[0] >= int64(polymesh.NumRoles) {
			return nil, nil, fmt.Errorf("%w: schema role %d", comm.ErrMalformed, roleAndFlag[0])
		}
		r := polymesh.Role(roleAndFlag[0])
		if arr, err = types.NewDataArray(et, string(name), comps); err != nil {
			return nil, nil, fmt.Errorf("schema array %q: %w", name, err)
		}
		as := cell
		if a == PointAssociation {
			as = point
		}
		as.Set(r, arr)
		as.SetCopy(r, roleAndFlag[1] != 0)
	}
	if rd.Len() != 0 {
		return nil, nil, fmt.Errorf("%w: %d bytes after schema", comm.ErrMalformed, rd.Len())
	}
	return cell, point, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
