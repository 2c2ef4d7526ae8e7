package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/halo-data/sigmav.report/internal/flux"
	"github.com/halo-data/sigmav.report/internal/monitoring"
)

// ProfileLimitFinder is the bundled LimitFinder. It profiles the likelihood
// in the signal normalisation: starting from the best fit, the normalisation
// is pushed up (other free parameters re-fitted at each value) until the
// log-likelihood has dropped by the threshold for the requested one-sided
// confidence level, then the crossing is bisected in log space.
type ProfileLimitFinder struct {
	Engine *LikelihoodEngine

	// MaxDoublings caps the bracketing phase; zero means the default.
	MaxDoublings int
	// Bisections sets the refinement steps; zero means the default.
	Bisections int
}

const (
	defaultMaxDoublings = 60
	defaultBisections   = 40
)

// deltaLogLike is the one-sided profile threshold: half the chi-squared
// (1 dof) quantile at 2*cl-1. For cl = 0.95 this is 2.706/2.
func deltaLogLike(cl float64) (float64, error) {
	if !(cl > 0.5 && cl < 1) {
		return 0, fmt.Errorf("%w: confidence level %g, want in (0.5, 1)", ErrEvaluationFailed, cl)
	}
	chi2 := distuv.ChiSquared{K: 1}
	return chi2.Quantile(2*cl-1) / 2, nil
}

// UpperLimit derives the one-sided upper limit on the signal normalisation
// and the corresponding integrated flux over the dataset's energy range.
// ms is cloned internally; the caller's models are not mutated.
func (f *ProfileLimitFinder) UpperLimit(ms *ModelSet, ds *Dataset, cl float64) (*LimitResult, error) {
	delta, err := deltaLogLike(cl)
	if err != nil {
		return nil, err
	}
	eng := f.Engine
	if eng == nil {
		eng = NewLikelihoodEngine()
	}

	work := ms.Clone()
	norm := work.Signal.Params().Norm()
	norm.Free()
	best, err := eng.Fit(work, ds)
	if err != nil {
		return nil, fmt.Errorf("limit best fit: %w", err)
	}
	bestNorm := norm.Value()
	bestLL := best.LogLike

	// Profile: normalisation pinned per trial value, everything else refit.
	norm.Fix()
	profile := func(v float64) (float64, error) {
		if err := norm.ForceSet(v); err != nil {
			return 0, err
		}
		res, err := eng.Fit(work, ds)
		if err != nil {
			return 0, err
		}
		return res.LogLike, nil
	}

	// Bracket the crossing by doubling from the best fit (or from the scale
	// factor when the best fit is consistent with zero).
	lo := bestNorm
	start := bestNorm
	if start <= 0 {
		start = norm.Scale()
	}
	hi := start
	maxDoublings := f.MaxDoublings
	if maxDoublings == 0 {
		maxDoublings = defaultMaxDoublings
	}
	bracketed := false
	for i := 0; i < maxDoublings; i++ {
		hi = start * math.Pow(2, float64(i+1))
		ll, err := profile(hi)
		if err != nil {
			return nil, fmt.Errorf("limit bracketing at norm %g: %w", hi, err)
		}
		if bestLL-ll >= delta {
			bracketed = true
			break
		}
		lo = hi
	}
	if !bracketed {
		return nil, fmt.Errorf("%w: no likelihood crossing below norm %g", ErrEvaluationFailed, hi)
	}
	if lo <= 0 {
		// The best fit sits at zero, so the doubling phase never evaluated a
		// positive floor: the crossing may be far below hi/2. Walk down until
		// the drop at lo is inside the threshold before bisecting.
		lo, hi, err = lowerBracket(profile, bestLL, delta, hi, maxDoublings)
		if err != nil {
			return nil, fmt.Errorf("limit lower bracket: %w", err)
		}
	}

	bisections := f.Bisections
	if bisections == 0 {
		bisections = defaultBisections
	}
	for i := 0; i < bisections; i++ {
		mid := math.Sqrt(lo * hi)
		ll, err := profile(mid)
		if err != nil {
			return nil, fmt.Errorf("limit bisection at norm %g: %w", mid, err)
		}
		if bestLL-ll >= delta {
			hi = mid
		} else {
			lo = mid
		}
	}
	normUL := hi

	if err := norm.ForceSet(normUL); err != nil {
		return nil, err
	}
	emin, emax := ds.EnergyRange()
	fluxUL, err := flux.Integrate(work.Signal, emin, emax)
	if err != nil {
		return nil, fmt.Errorf("limit flux integral: %w", err)
	}

	monitoring.Debugf("engine: %.0f%% upper limit norm=%.4g flux=%.4g", cl*100, normUL, fluxUL)
	return &LimitResult{
		CL:       cl,
		NormUL:   normUL,
		FluxUL:   fluxUL,
		EminGeV:  emin,
		EmaxGeV:  emax,
		BestNorm: bestNorm,
	}, nil
}

// lowerBracket halves lo down from hi until the profile drop at lo falls
// inside delta, returning a [lo, hi] interval that genuinely brackets the
// crossing. maxSteps bounds the walk; on exhaustion the last interval is
// returned and the bisection resolves what remains.
func lowerBracket(profile func(float64) (float64, error), bestLL, delta, hi float64, maxSteps int) (float64, float64, error) {
	lo := hi / 2
	for i := 0; i < maxSteps; i++ {
		ll, err := profile(lo)
		if err != nil {
			return 0, 0, err
		}
		if bestLL-ll < delta {
			return lo, hi, nil
		}
		hi = lo
		lo /= 2
	}
	return lo, hi, nil
}
