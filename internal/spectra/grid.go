// Package spectra implements the tabulated annihilation-spectrum model: the
// immutable flux grid, continuous interpolation over it, and the parameter
// store consumed by the fitting engine.
package spectra

import (
	"fmt"
	"math"
	"sort"
)

// Channel identifies an annihilation channel in a grid table. Channels are a
// small enumeration with no implied ordering; there is no interpolation
// across channels.
type Channel int

// GridTable holds the discretised spectra: differential flux dN/dE indexed by
// (channel, mass node, energy node). It is built once, validated, and then
// immutable, so it is safe to share read-only across any number of
// SpectralModel instances.
type GridTable struct {
	energies []float64 // GeV, strictly increasing
	masses   []float64 // GeV, strictly increasing
	channels []Channel // file order, used for listing
	names    map[Channel]string
	index    map[Channel]int
	flux     []float64 // dense: (chIdx*nMass + massIdx)*nEnergy + eIdx

	// Reference metadata the table was built with.
	RefSigmaV  float64 // cm^3 s^-1
	RefJFactor float64 // GeV^2 cm^-5
	FluxUnit   string
}

// NewGridTable validates and assembles a grid. flux is indexed
// flux[channel][mass][energy] and must be dense, with every value finite and
// non-negative. Mass and energy node arrays must be strictly increasing with
// at least two entries each.
func NewGridTable(channels []Channel, names map[Channel]string, massesGeV, energiesGeV []float64, flux [][][]float64, refSigmaV, refJFactor float64) (*GridTable, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: grid has no channels", ErrInvalidParameter)
	}
	if err := checkNodes("mass", massesGeV); err != nil {
		return nil, err
	}
	if err := checkNodes("energy", energiesGeV); err != nil {
		return nil, err
	}
	if len(flux) != len(channels) {
		return nil, fmt.Errorf("%w: flux has %d channel slabs, want %d", ErrInvalidParameter, len(flux), len(channels))
	}

	t := &GridTable{
		energies:   append([]float64(nil), energiesGeV...),
		masses:     append([]float64(nil), massesGeV...),
		channels:   append([]Channel(nil), channels...),
		names:      make(map[Channel]string, len(channels)),
		index:      make(map[Channel]int, len(channels)),
		flux:       make([]float64, len(channels)*len(massesGeV)*len(energiesGeV)),
		RefSigmaV:  refSigmaV,
		RefJFactor: refJFactor,
	}
	for i, ch := range channels {
		if _, dup := t.index[ch]; dup {
			return nil, fmt.Errorf("%w: duplicate channel %d", ErrInvalidParameter, ch)
		}
		t.index[ch] = i
		if names != nil {
			t.names[ch] = names[ch]
		}
	}

	nM, nE := len(massesGeV), len(energiesGeV)
	for ci, slab := range flux {
		if len(slab) != nM {
			return nil, fmt.Errorf("%w: channel %d has %d mass rows, want %d", ErrInvalidParameter, channels[ci], len(slab), nM)
		}
		for mi, row := range slab {
			if len(row) != nE {
				return nil, fmt.Errorf("%w: channel %d mass node %d has %d energy values, want %d", ErrInvalidParameter, channels[ci], mi, len(row), nE)
			}
			for ei, v := range row {
				if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
					return nil, fmt.Errorf("%w: channel %d mass node %d energy node %d has flux %g", ErrInvalidParameter, channels[ci], mi, ei, v)
				}
				t.flux[(ci*nM+mi)*nE+ei] = v
			}
		}
	}
	return t, nil
}

func checkNodes(what string, nodes []float64) error {
	if len(nodes) < 2 {
		return fmt.Errorf("%w: %s axis needs at least 2 nodes, got %d", ErrInvalidParameter, what, len(nodes))
	}
	for i, v := range nodes {
		if math.IsNaN(v) || v <= 0 {
			return fmt.Errorf("%w: %s node %d = %g, want positive", ErrInvalidParameter, what, i, v)
		}
		if i > 0 && v <= nodes[i-1] {
			return fmt.Errorf("%w: %s nodes not strictly increasing at index %d", ErrInvalidParameter, what, i)
		}
	}
	return nil
}

// Channels returns the channel identifiers in file order.
func (t *GridTable) Channels() []Channel {
	return append([]Channel(nil), t.channels...)
}

// HasChannel reports whether ch is present in the table.
func (t *GridTable) HasChannel(ch Channel) bool {
	_, ok := t.index[ch]
	return ok
}

// ChannelName returns the human-readable name for ch, or "" if unnamed.
func (t *GridTable) ChannelName(ch Channel) string { return t.names[ch] }

// MassRange returns the lowest and highest tabulated mass in GeV.
func (t *GridTable) MassRange() (lo, hi float64) {
	return t.masses[0], t.masses[len(t.masses)-1]
}

// EnergyRange returns the lowest and highest tabulated energy in GeV.
func (t *GridTable) EnergyRange() (lo, hi float64) {
	return t.energies[0], t.energies[len(t.energies)-1]
}

// FluxAt evaluates the table at (channel, mass, energy), all in GeV, and
// returns the differential flux dN/dE per unit normalisation.
//
// Channel must match a tabulated channel exactly. Mass is interpolated
// log-linearly between the two bracketing mass nodes; a mass outside the
// tabulated range is clamped to the nearest node and reported through the
// returned Warning (never extrapolated, never silent). Energy is interpolated
// in log-log space; energies outside the tabulated support, or above the
// requested mass, yield zero flux (physical cutoff), not an error.
//
// Node bracketing is a binary search, so each call is O(log n); this is the
// hot path of every fit iteration.
func (t *GridTable) FluxAt(ch Channel, massGeV, energyGeV float64) (float64, *Warning, error) {
	ci, ok := t.index[ch]
	if !ok {
		return 0, nil, fmt.Errorf("%w: unknown channel %d", ErrInvalidParameter, ch)
	}
	if massGeV <= 0 || math.IsNaN(massGeV) {
		return 0, nil, fmt.Errorf("%w: mass %g GeV", ErrOutOfRange, massGeV)
	}

	var warn *Warning
	mLo, mHi := t.MassRange()
	m := massGeV
	if m < mLo {
		warn = &Warning{Quantity: "mass", Requested: m, Clamped: mLo}
		m = mLo
	} else if m > mHi {
		warn = &Warning{Quantity: "mass", Requested: m, Clamped: mHi}
		m = mHi
	}

	// Kinematic cutoff: no photons above the annihilating particle mass.
	// The cutoff uses the requested mass, not the clamped one.
	if energyGeV <= 0 || energyGeV > massGeV {
		return 0, warn, nil
	}

	mi := sort.SearchFloat64s(t.masses, m)
	if mi < len(t.masses) && t.masses[mi] == m {
		// Exact mass node.
		return t.energyInterp(ci, mi, energyGeV), warn, nil
	}

	// SearchFloat64s returns the insertion point; after clamping, m is
	// strictly inside (masses[mi-1], masses[mi]).
	lo, hi := mi-1, mi
	vLo := t.energyInterp(ci, lo, energyGeV)
	vHi := t.energyInterp(ci, hi, energyGeV)
	w := (math.Log(m) - math.Log(t.masses[lo])) / (math.Log(t.masses[hi]) - math.Log(t.masses[lo]))
	if vLo > 0 && vHi > 0 {
		return math.Exp((1-w)*math.Log(vLo)+w*math.Log(vHi)), warn, nil
	}
	// A zero endpoint (energy beyond the lower node's support) makes the
	// log blend undefined; fall back to linear so the result still lies
	// between the two node values.
	return (1-w)*vLo + w*vHi, warn, nil
}

// energyInterp evaluates one (channel, mass-node) spectrum at energyGeV by
// log-log interpolation between the bracketing energy nodes. Outside the
// tabulated energy span the flux is zero.
func (t *GridTable) energyInterp(ci, mi int, energyGeV float64) float64 {
	nE := len(t.energies)
	if energyGeV < t.energies[0] || energyGeV > t.energies[nE-1] {
		return 0
	}
	base := (ci*len(t.masses) + mi) * nE

	ei := sort.SearchFloat64s(t.energies, energyGeV)
	if ei < nE && t.energies[ei] == energyGeV {
		return t.flux[base+ei]
	}
	lo, hi := ei-1, ei
	fLo, fHi := t.flux[base+lo], t.flux[base+hi]
	w := (math.Log(energyGeV) - math.Log(t.energies[lo])) / (math.Log(t.energies[hi]) - math.Log(t.energies[lo]))
	if fLo > 0 && fHi > 0 {
		return math.Exp((1-w)*math.Log(fLo) + w*math.Log(fHi))
	}
	// Power-law interpolation needs both endpoints positive; spectra go to
	// zero at the kinematic edge, so blend linearly there instead.
	return (1-w)*fLo + w*fHi
}
