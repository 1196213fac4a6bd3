/*package ilb handles the five-slot ILB array used by PENELOPE-family phase
space files to describe where a particle came from:

	ILB1  generation: 1 for primaries, larger for secondaries
	ILB2  type code of the parent particle, for secondaries
	ILB3  interaction mechanism that created the particle, for secondaries
	ILB4  atomic transition, nonzero when created by atomic relaxation
	ILB5  free slot, inherited by all descendants

Each slot is an independent small integer. The functions here validate and
move slots between an Array and its flat on-file form; they carry no state.
*/
package ilb

import (
	"fmt"
)

// Slot indexes into an Array.
type Slot int

const (
	Generation Slot = iota
	ParentType
	Interaction
	Transition
	User

	NumSlots = 5
)

// Array is one particle's ILB values in slot order.
type Array [NumSlots]int32

// Validate checks the one constraint the convention imposes: ILB1 must be
// at least 1. The other slots are free-form integers.
func Validate(a Array) error {
	if a[Generation] < 1 {
		return fmt.Errorf("the ILB1 value %d is invalid: particle "+
			"generations start at 1", a[Generation])
	}
	return nil
}

// IsSecondary reports whether the array describes a secondary particle.
func IsSecondary(a Array) bool { return a[Generation] > 1 }

// Primary returns an array describing a primary particle with all optional
// slots cleared.
func Primary() Array { return Array{1, 0, 0, 0, 0} }

// Pack flattens a into the order the slots appear on file. It is the
// inverse of Unpack.
func Pack(a Array) [NumSlots]int32 { return [NumSlots]int32(a) }

// Unpack builds an Array from the five on-file values. Every input
// round-trips: Unpack(Pack(a)) == a for all a.
func Unpack(v [NumSlots]int32) Array { return Array(v) }

// Get returns one slot's value.
func (a Array) Get(s Slot) int32 { return a[s] }

// With returns a copy of a with one slot replaced.
func (a Array) With(s Slot, v int32) Array {
	a[s] = v
	return a
}
