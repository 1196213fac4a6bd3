/*package stats accumulates running statistics over a stream of phase space
particles: per-species counts, weight and energy ranges, and the spatial
bounding box. Formats whose headers report statistics fill one Accumulator
while writing and read it back out at close time.
*/
package stats

import (
	"math"
	"sort"

	"github.com/phasespace/phsp/lib/pdg"
)

// TypeStats holds the running statistics for one particle species.
type TypeStats struct {
	Count                int64
	WeightSum            float64
	MinWeight, MaxWeight float64
	// EnergySum is weighted by each particle's statistical weight, so
	// MeanEnergy is the weighted mean.
	EnergySum            float64
	MinEnergy, MaxEnergy float64
}

// MeanEnergy returns the weight-averaged kinetic energy, or zero when no
// weight has been accumulated.
func (t *TypeStats) MeanEnergy() float64 {
	if t.WeightSum == 0 {
		return 0
	}
	return t.EnergySum / t.WeightSum
}

// Accumulator collects statistics over a particle stream. The zero value is
// not ready to use; call New.
type Accumulator struct {
	ByType map[pdg.Type]*TypeStats

	// Spatial bounding box over every particle seen. Valid only once
	// Count() > 0.
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	n int64
}

func New() *Accumulator {
	return &Accumulator{
		ByType: map[pdg.Type]*TypeStats{},
		MinX:   math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
		MinZ: math.Inf(1), MaxZ: math.Inf(-1),
	}
}

// Add folds one particle into the accumulator. Energy is kinetic energy in
// MeV and x, y, z are in cm.
func (a *Accumulator) Add(t pdg.Type, energy, weight, x, y, z float64) {
	ts, ok := a.ByType[t]
	if !ok {
		ts = &TypeStats{
			MinWeight: math.Inf(1), MaxWeight: math.Inf(-1),
			MinEnergy: math.Inf(1), MaxEnergy: math.Inf(-1),
		}
		a.ByType[t] = ts
	}

	ts.Count++
	ts.WeightSum += weight
	ts.EnergySum += energy * weight
	if weight < ts.MinWeight {
		ts.MinWeight = weight
	}
	if weight > ts.MaxWeight {
		ts.MaxWeight = weight
	}
	if energy < ts.MinEnergy {
		ts.MinEnergy = energy
	}
	if energy > ts.MaxEnergy {
		ts.MaxEnergy = energy
	}

	a.n++
	if x < a.MinX {
		a.MinX = x
	}
	if x > a.MaxX {
		a.MaxX = x
	}
	if y < a.MinY {
		a.MinY = y
	}
	if y > a.MaxY {
		a.MaxY = y
	}
	if z < a.MinZ {
		a.MinZ = z
	}
	if z > a.MaxZ {
		a.MaxZ = z
	}
}

// Count returns the total number of particles accumulated.
func (a *Accumulator) Count() int64 { return a.n }

// CountOf returns the number of particles of one species.
func (a *Accumulator) CountOf(t pdg.Type) int64 {
	if ts, ok := a.ByType[t]; ok {
		return ts.Count
	}
	return 0
}

// Types returns the species seen so far in a fixed presentation order:
// photons, electrons, positrons, neutrons, protons, then anything else.
func (a *Accumulator) Types() []pdg.Type {
	order := []pdg.Type{pdg.Photon, pdg.Electron, pdg.Positron,
		pdg.Neutron, pdg.Proton}
	out := []pdg.Type{}
	for _, t := range order {
		if _, ok := a.ByType[t]; ok {
			out = append(out, t)
		}
	}
	rest := []pdg.Type{}
	for t := range a.ByType {
		seen := false
		for _, q := range order {
			if t == q {
				seen = true
				break
			}
		}
		if !seen {
			rest = append(rest, t)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}
