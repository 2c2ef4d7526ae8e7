// Package limits converts fitted or bounded fluxes into physical
// annihilation cross sections, and grades detections via the likelihood-ratio
// test statistic.
package limits

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrDegenerateReference reports a non-positive reference flux, which makes
// the flux-ratio rescaling undefined. It typically means the integration
// range excluded all of the table's non-zero support, which callers must
// validate rather than divide through.
var ErrDegenerateReference = errors.New("degenerate reference flux")

// CrossSection rescales a measured (or upper-limit) integrated flux into a
// cross section:
//
//	sigmaV = (fluxVal / refFlux) * refSigmaV
//
// The rescaling is exact because the cross section enters the model only as
// a multiplicative normalisation; the spectral shape does not depend on it.
// refFlux must be the reference model's integral over the SAME energy range
// as fluxVal.
func CrossSection(fluxVal, refFlux, refSigmaV float64) (float64, error) {
	if !(refFlux > 0) || math.IsNaN(refFlux) {
		return 0, fmt.Errorf("%w: reference flux %g", ErrDegenerateReference, refFlux)
	}
	if refSigmaV <= 0 {
		return 0, fmt.Errorf("%w: reference cross section %g", ErrDegenerateReference, refSigmaV)
	}
	if fluxVal < 0 || math.IsNaN(fluxVal) {
		return 0, fmt.Errorf("invalid measured flux %g", fluxVal)
	}
	return fluxVal / refFlux * refSigmaV, nil
}

// CrossSectionWithError propagates a symmetric flux uncertainty through the
// ratio rescaling. The ratio is linear in the measured flux, so the relative
// error carries over unchanged.
func CrossSectionWithError(fluxVal, fluxErr, refFlux, refSigmaV float64) (sigmaV, sigmaVErr float64, err error) {
	sigmaV, err = CrossSection(fluxVal, refFlux, refSigmaV)
	if err != nil {
		return 0, 0, err
	}
	if fluxErr < 0 || math.IsNaN(fluxErr) {
		return 0, 0, fmt.Errorf("invalid flux uncertainty %g", fluxErr)
	}
	return sigmaV, fluxErr / refFlux * refSigmaV, nil
}

// TestStatistic is the likelihood-ratio detection statistic comparing the
// signal hypothesis against the null: TS = 2 (lnL_signal - lnL_null).
// Negative values (numerical noise around a null-preferred fit) clamp to 0.
func TestStatistic(logLikeSignal, logLikeNull float64) float64 {
	ts := 2 * (logLikeSignal - logLikeNull)
	if ts < 0 {
		return 0
	}
	return ts
}

// Significance converts a test statistic into an approximate Gaussian
// significance via the one-degree-of-freedom chi-squared survival function
// (valid in the asymptotic, one-parameter regime).
func Significance(ts float64) float64 {
	if ts <= 0 {
		return 0
	}
	p := distuv.ChiSquared{K: 1}.Survival(ts)
	if p <= 0 {
		// Beyond float precision of the survival tail; fall back to the
		// sqrt(TS) asymptotic.
		return math.Sqrt(ts)
	}
	return distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - p/2)
}
