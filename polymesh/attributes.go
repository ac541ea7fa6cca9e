package polymesh

import (
	"fmt"

	"github.com/notargets/polyredist/types"
)

// Role is the logical meaning of an attribute array within an AttributeSet
type Role uint8

const (
	Scalars Role = iota
	Vectors
	Normals
	TCoords
	Tensors
	NumRoles
)

var RoleNameMap = map[string]Role{
	"scalars": Scalars,
	"vectors": Vectors,
	"normals": Normals,
	"tcoords": TCoords,
	"tensors": Tensors,
}

func (r Role) String() string {
	for name, role := range RoleNameMap {
		if role == r {
			return name
		}
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func AllRoles() []Role {
	return []Role{Scalars, Vectors, Normals, TCoords, Tensors}
}

// RoleMask has one bit per Role
type RoleMask uint8

func (rm RoleMask) Has(r Role) bool { return rm&(1<<r) != 0 }

func (rm RoleMask) With(r Role) RoleMask { return rm | 1<<r }

// AttributeSet holds at most one active array per Role, plus a copy flag per
// role that says whether the role follows the cells or points it annotates
// when they are moved. For Scalars, ActiveComponent is the only component
// that carries meaning when the array has more than one.
type AttributeSet struct {
	arrays          [NumRoles]types.DataArray
	copyFlags       [NumRoles]bool
	ActiveComponent int
}

func NewAttributeSet() *AttributeSet {
	as := &AttributeSet{}
	for r := range as.copyFlags {
		as.copyFlags[r] = true
	}
	return as
}

func (as *AttributeSet) Get(r Role) types.DataArray { return as.arrays[r] }

func (as *AttributeSet) Set(r Role, arr types.DataArray) { as.arrays[r] = arr }

func (as *AttributeSet) Remove(r Role) { as.arrays[r] = nil }

func (as *AttributeSet) CopyEnabled(r Role) bool { return as.copyFlags[r] }

func (as *AttributeSet) SetCopy(r Role, enabled bool) { as.copyFlags[r] = enabled }

func (as *AttributeSet) NumArrays() (n int) {
	for _, arr := range as.arrays {
		if arr != nil {
			n++
		}
	}
	return
}

// Present reports the roles that hold an array
func (as *AttributeSet) Present() (rm RoleMask) {
	for r, arr := range as.arrays {
		if arr != nil {
			rm = rm.With(Role(r))
		}
	}
	return
}

// ComponentSel is the component selection the role moves with: the active
// component for multi component scalars, all components otherwise
func (as *AttributeSet) ComponentSel(r Role) types.ComponentSel {
	arr := as.arrays[r]
	if r == Scalars && arr != nil && arr.Components() > 1 {
		return types.ActiveComponent(as.ActiveComponent)
	}
	return types.AllComponents
}

// CloneLayout returns a set with empty arrays of the same types, names and
// widths, and the same copy flags
func (as *AttributeSet) CloneLayout() *AttributeSet {
	clone := &AttributeSet{
		copyFlags:       as.copyFlags,
		ActiveComponent: as.ActiveComponent,
	}
	for r, arr := range as.arrays {
		if arr != nil {
			clone.arrays[r] = arr.NewEmpty()
		}
	}
	return clone
}

func (as *AttributeSet) Resize(tuples int) {
	for _, arr := range as.arrays {
		if arr != nil {
			arr.Resize(tuples)
		}
	}
}

// Validate checks that every array has exactly tuples entries
func (as *AttributeSet) Validate(tuples int, what string) error {
	for r, arr := range as.arrays {
		if arr == nil {
			continue
		}
		if arr.Tuples() != tuples {
			return fmt.Errorf("%s %v array %q has %d tuples, want %d",
				what, Role(r), arr.Name(), arr.Tuples(), tuples)
		}
	}
	if as.ActiveComponent < 0 {
		return fmt.Errorf("%s active scalar component %d is negative", what, as.ActiveComponent)
	}
	if arr := as.arrays[Scalars]; arr != nil && as.ActiveComponent >= arr.Components() {
		return fmt.Errorf("%s active scalar component %d out of range for %d components",
			what, as.ActiveComponent, arr.Components())
	}
	return nil
}
