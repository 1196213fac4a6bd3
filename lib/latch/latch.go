/*package latch packs and unpacks the 32-bit LATCH word carried by EGS phase
space records. The layout, from high bit to low:

	bit  31     particle crossed the scoring plane more than once
	bits 29-30  charge field: 0 photon, 1 electron, 2 positron
	bits 24-28  region numbers of the secondary-creation sites; any nonzero
	            bit marks the particle as a secondary
	bits 0-23   region-crossing bit field

Pack and Unpack are pure value transforms and exact inverses of each other.
Unpack accepts every possible 32-bit pattern; some patterns are physically
meaningless (for example charge field 3) but they still decode without
complaint, because LATCH words come straight off disk and rejecting them
here would make unreadable files out of files other tools accept.
*/
package latch

import (
	"github.com/phasespace/phsp/lib/pdg"
)

// Word is a raw EGS LATCH value.
type Word = uint32

// Fields is the unpacked form of a LATCH word.
type Fields struct {
	// MultiPasser is set when the particle crossed the scoring plane more
	// than once.
	MultiPasser bool
	// Charge is the raw two-bit charge field: 0 photon, 1 electron,
	// 2 positron. The value 3 is representable but meaningless.
	Charge uint8
	// SecondaryBits holds bits 24-28. Nonzero means the particle is a
	// secondary.
	SecondaryBits uint8
	// RegionBits holds the low 24 region-crossing bits.
	RegionBits uint32
}

// Pack converts f back into a raw LATCH word.
func Pack(f Fields) Word {
	w := f.RegionBits & 0xffffff
	w |= uint32(f.SecondaryBits&0x1f) << 24
	w |= uint32(f.Charge&0x3) << 29
	if f.MultiPasser {
		w |= 1 << 31
	}
	return w
}

// Unpack splits a raw LATCH word into its fields. It is total: every 32-bit
// value decodes.
func Unpack(w Word) Fields {
	return Fields{
		MultiPasser:   (w>>31)&1 == 1,
		Charge:        uint8((w >> 29) & 0x3),
		SecondaryBits: uint8((w >> 24) & 0x1f),
		RegionBits:    w & 0xffffff,
	}
}

// IsSecondary reports whether the word marks a secondary particle under the
// comprehensive LATCH conventions (options 2 and 3), which use bits 24-28.
// Option 1 files carry no secondary information, so callers using that
// option should ignore this.
func IsSecondary(w Word) bool { return (w>>24)&0x1f != 0 }

// ChargeFor returns the charge field value for a particle type, and false
// for types EGS files cannot hold.
func ChargeFor(t pdg.Type) (uint8, bool) {
	switch t {
	case pdg.Photon:
		return 0, true
	case pdg.Electron:
		return 1, true
	case pdg.Positron:
		return 2, true
	}
	return 0, false
}

// TypeFor converts a charge field value back into a particle type. The
// meaningless value 3 maps to Unsupported and false.
func TypeFor(charge uint8) (pdg.Type, bool) {
	switch charge {
	case 0:
		return pdg.Photon, true
	case 1:
		return pdg.Electron, true
	case 2:
		return pdg.Positron, true
	}
	return pdg.Unsupported, false
}
