package units

import "math"

// perMeVFactor converts the 1/(8*pi*m^2) prefactor from per-GeV to the
// per-MeV convention the tabulated spectra were built with.
const perMeVFactor = 1e-3

// FluxNorm computes the multiplicative flux normalisation for an annihilation
// model:
//
//	norm = J * <sigma v> / (8 * pi * m^2) * 1e-3
//
// jFactor is in GeV^2 cm^-5, sigmaV in cm^3 s^-1, and massGeV in GeV.
// Returns NaN for non-positive mass; zero J or sigmaV yields zero.
func FluxNorm(jFactor, sigmaV, massGeV float64) float64 {
	if massGeV <= 0 {
		return math.NaN()
	}
	return jFactor * sigmaV / (8 * math.Pi * massGeV * massGeV) * perMeVFactor
}

// SigmaVFromNorm inverts FluxNorm: given a fitted flux normalisation it
// returns the annihilation cross section it corresponds to.
func SigmaVFromNorm(norm, jFactor, massGeV float64) float64 {
	if massGeV <= 0 || jFactor == 0 {
		return math.NaN()
	}
	return norm * 8 * math.Pi * massGeV * massGeV / (jFactor * perMeVFactor)
}
