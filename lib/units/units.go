/*package units defines the scale factors between the library's internal
base units and the unit conventions of the supported file formats. The
internal base units are centimeters for length and MeV for energy, so most
factors are 1 and conversions at the codec boundary are cheap.

To convert a native value to internal units, multiply by the factor. To
convert back, divide.
*/
package units

// Length factors, in internal units per native unit.
const (
	Cm = 1.0
	Mm = 0.1
	M  = 100.0
)

// Energy factors, in internal units per native unit.
const (
	MeV = 1.0
	KeV = 1e-3
	EV  = 1e-6
	GeV = 1e3
)

// ElectronRestMass is the electron rest mass energy in MeV. EGS phase space
// files store total energy for electrons and positrons, so this gets added
// and subtracted at that codec's boundary.
const ElectronRestMass = 0.5109989461
