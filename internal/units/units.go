// Package units provides shared energy-unit constants, conversions, and the
// flux normalisation formula used to scale tabulated annihilation spectra.
package units

// Energy unit identifiers, as they appear in grid file metadata.
const (
	GeV = "GeV"
	TeV = "TeV"
	MeV = "MeV"
)

// ValidEnergyUnits contains all accepted energy unit values.
var ValidEnergyUnits = []string{GeV, TeV, MeV}

// IsValidEnergyUnit checks if the given unit is in the list of valid units.
func IsValidEnergyUnit(unit string) bool {
	for _, u := range ValidEnergyUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// ValidEnergyUnitsString returns a comma-separated list for error messages.
func ValidEnergyUnitsString() string {
	return "GeV, TeV, MeV"
}

// ToGeV converts an energy value from the named unit to GeV.
// The grid tables and all internal arithmetic are in GeV.
func ToGeV(value float64, unit string) float64 {
	switch unit {
	case GeV:
		return value
	case TeV:
		return value * 1e3
	case MeV:
		return value * 1e-3
	default:
		return value
	}
}

// FromGeV converts an energy value in GeV to the named unit.
func FromGeV(valueGeV float64, unit string) float64 {
	switch unit {
	case GeV:
		return valueGeV
	case TeV:
		return valueGeV * 1e-3
	case MeV:
		return valueGeV * 1e3
	default:
		return valueGeV
	}
}
