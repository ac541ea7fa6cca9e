package redistribute

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/notargets/polyredist/comm"
	"github.com/notargets/polyredist/polymesh"
	"github.com/notargets/polyredist/types"
)

// Association says whether an attribute set annotates cells or points
type Association uint8

const (
	CellAssociation Association = iota
	PointAssociation
)

func (a Association) String() string {
	if a == PointAssociation {
		return "point"
	}
	return "cell"
}

func (a Association) tag(r polymesh.Role) comm.Tag {
	if a == PointAssociation {
		return comm.PointAttributeTag(int(r))
	}
	return comm.CellAttributeTag(int(r))
}

// SkippedArray is an attribute array a pass could not move
type SkippedArray struct {
	Association Association
	Role        polymesh.Role
	Name        string
	Type        types.ElementType
	Err         error
}

func (sa SkippedArray) String() string {
	return fmt.Sprintf("%v %v %q (%v): %v", sa.Association, sa.Role, sa.Name, sa.Type, sa.Err)
}

// attributeTransfer moves the arrays of an attribute set with one codec
// call per role
type attributeTransfer struct {
	codec   *types.Codec
	log     *slog.Logger
	skipped []SkippedArray
	seen    map[[2]int]bool
}

func newAttributeTransfer(codec *types.Codec, log *slog.Logger) *attributeTransfer {
	return &attributeTransfer{codec: codec, log: log, seen: make(map[[2]int]bool)}
}

func (at *attributeTransfer) skip(a Association, r polymesh.Role, arr types.DataArray) {
	key := [2]int{int(a), int(r)}
	if at.seen[key] {
		return
	}
	at.seen[key] = true
	sa := SkippedArray{
		Association: a,
		Role:        r,
		Name:        arr.Name(),
		Type:        arr.Type(),
		Err:         fmt.Errorf("%w: %v", types.ErrUnsupportedType, arr.Type()),
	}
	at.skipped = append(at.skipped, sa)
	at.log.Warn("skipping attribute array", "association", a.String(), "role", r.String(),
		"name", sa.Name, "type", sa.Type.String())
}

// prune drops from a layout the roles that will not move: those whose copy
// flag is off and those whose type the codec does not support. The latter
// are reported as skipped.
func (at *attributeTransfer) prune(a Association, as *polymesh.AttributeSet) {
	for _, r := range polymesh.AllRoles() {
		arr := as.Get(r)
		switch {
		case arr == nil:
		case !as.CopyEnabled(r):
			as.Remove(r)
		case !at.codec.Supports(arr.Type()):
			at.skip(a, r, arr)
			as.Remove(r)
		}
	}
}

// roles is the mask of roles a transfer from src into a set laid out like
// dst carries: dst copies the role and has an array for it, and src holds an
// array too
func (at *attributeTransfer) roles(src, dst *polymesh.AttributeSet) (rm polymesh.RoleMask) {
	for _, r := range polymesh.AllRoles() {
		if src.Get(r) != nil && dst.Get(r) != nil && dst.CopyEnabled(r) && at.codec.Supports(dst.Get(r).Type()) {
			rm = rm.With(r)
		}
	}
	return
}

// signature hashes the element type, width and component selection of every
// role in rm, so two ranks can check they agree on what a mask carries
func signature(as *polymesh.AttributeSet, rm polymesh.RoleMask) int64 {
	h := fnv.New64a()
	for _, r := range polymesh.AllRoles() {
		if !rm.Has(r) {
			continue
		}
		arr := as.Get(r)
		if arr == nil {
			return -1
		}
		h.Write(comm.EncodeInt64s([]int64{int64(r), int64(arr.Type()), int64(arr.Components()),
			int64(as.ComponentSel(r))}))
	}
	return int64(h.Sum64() >> 1)
}

// copy moves the selected tuples of every role in rm from src into dst at
// offset. Local copies carry every component, there is no wire to narrow.
func (at *attributeTransfer) copy(rm polymesh.RoleMask, dst *polymesh.AttributeSet, offset int,
	src *polymesh.AttributeSet, sel types.Selection) error {
	for _, r := range polymesh.AllRoles() {
		if !rm.Has(r) {
			continue
		}
		if err := at.codec.Copy(dst.Get(r), offset, src.Get(r), sel, types.AllComponents); err != nil {
			return fmt.Errorf("copy %v: %w", r, err)
		}
	}
	return nil
}

func (at *attributeTransfer) send(ctx context.Context, g comm.Group, peer int, a Association,
	rm polymesh.RoleMask, src *polymesh.AttributeSet, sel types.Selection) error {
	for _, r := range polymesh.AllRoles() {
		if !rm.Has(r) {
			continue
		}
		payload, err := at.codec.Pack(src.Get(r), sel, src.ComponentSel(r))
		if err != nil {
			return fmt.Errorf("pack %v %v: %w", a, r, err)
		}
		if err = g.Send(ctx, peer, a.tag(r), payload); err != nil {
			return err
		}
	}
	return nil
}

func (at *attributeTransfer) recv(ctx context.Context, g comm.Group, peer int, a Association,
	rm polymesh.RoleMask, dst *polymesh.AttributeSet, offset, count int) error {
	for _, r := range polymesh.AllRoles() {
		if !rm.Has(r) {
			continue
		}
		payload, err := g.Recv(ctx, peer, a.tag(r))
		if err != nil {
			return err
		}
		n, err := at.codec.Unpack(dst.Get(r), offset, dst.ComponentSel(r), payload)
		if err != nil {
			if errors.Is(err, types.ErrPayloadSize) || errors.Is(err, types.ErrOutOfRange) {
				return fmt.Errorf("%w: %v %v from rank %d: %v", ErrSizeMismatch, a, r, peer, err)
			}
			return fmt.Errorf("unpack %v %v from rank %d: %w", a, r, peer, err)
		}
		if n != count {
			return fmt.Errorf("%w: %v %v from rank %d has %d tuples, want %d", ErrSizeMismatch,
				a, r, peer, n, count)
		}
	}
	return nil
}
