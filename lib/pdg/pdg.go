/*package pdg maps between the library's internal particle species
enumeration and the standard PDG particle numbering scheme. The internal
enumeration is deliberately small: phase space files in radiotherapy and
shielding work overwhelmingly contain photons, electrons, positrons,
neutrons, and protons, and several of the supported formats physically
cannot represent anything else.

The mapping is total going from Type to PDG code and partial coming back:
FromPDG fails on codes outside the table instead of guessing.
*/
package pdg

import (
	"fmt"
)

// Type is an internal particle species tag. Its numeric values are the PDG
// codes themselves so that Type -> code conversion is trivial, with two
// exceptions: PseudoParticle reuses code 0, which no real particle owns,
// and Unsupported is a sentinel that never appears in a valid file.
type Type int32

const (
	PseudoParticle Type = 0
	Photon         Type = 22
	Electron       Type = 11
	Positron       Type = -11
	Neutron        Type = 2112
	Proton         Type = 2212
	Unsupported    Type = 99
)

// PDG returns the PDG code for t. This is total: every Type has a code.
func (t Type) PDG() int32 { return int32(t) }

// FromPDG converts a PDG code read from a file into an internal Type. Codes
// outside the supported table produce an error rather than a default.
func FromPDG(code int32) (Type, error) {
	switch Type(code) {
	case Photon, Electron, Positron, Neutron, Proton, PseudoParticle:
		return Type(code), nil
	}
	return Unsupported, fmt.Errorf("the PDG code %d does not correspond to "+
		"any particle type supported by phase space files", code)
}

// String returns a human-readable name for t.
func (t Type) String() string {
	switch t {
	case Photon:
		return "photon"
	case Electron:
		return "electron"
	case Positron:
		return "positron"
	case Neutron:
		return "neutron"
	case Proton:
		return "proton"
	case PseudoParticle:
		return "pseudo-particle"
	}
	return "unsupported"
}

// Charge returns the electric charge of t in units of e.
func (t Type) Charge() int {
	switch t {
	case Electron:
		return -1
	case Positron, Proton:
		return 1
	}
	return 0
}

// RestMass returns the rest mass energy of t in MeV. Pseudo-particles and
// unsupported types report zero.
func (t Type) RestMass() float64 {
	switch t {
	case Electron, Positron:
		return 0.5109989461
	case Neutron:
		return 939.5654205
	case Proton:
		return 938.2720882
	}
	return 0
}
