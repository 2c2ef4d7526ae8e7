package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/halo-data/sigmav.report/internal/flux"
	"github.com/halo-data/sigmav.report/internal/monitoring"
	"github.com/halo-data/sigmav.report/internal/spectra"
)

// LikelihoodEngine is the bundled Fitter: a binned Poisson log-likelihood
// over the dataset's energy bins, minimised with Nelder-Mead on the scaled
// free-parameter vector. It mutates the model collection in place, which is
// why fits over a shared ModelSet must run one at a time.
type LikelihoodEngine struct {
	// MaxEvals caps objective evaluations per fit. Zero means the default.
	MaxEvals int
}

const defaultMaxEvals = 20000

// NewLikelihoodEngine returns an engine with default settings.
func NewLikelihoodEngine() *LikelihoodEngine { return &LikelihoodEngine{} }

// ExpectedCounts computes the expected event count per bin for the current
// parameter state: exposure times the model flux integrated over each bin.
func ExpectedCounts(ms *ModelSet, ds *Dataset) ([]float64, error) {
	expcm2s := ds.ExposureCm2S()
	if expcm2s <= 0 {
		return nil, fmt.Errorf("%w: non-positive exposure %g cm^2 s", ErrEvaluationFailed, expcm2s)
	}
	mu := make([]float64, len(ds.Counts))
	for i := range mu {
		lo, hi := ds.Edges[i], ds.Edges[i+1]
		v, err := flux.Integrate(ms, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("expected counts bin %d: %w", i, err)
		}
		mu[i] = v * expcm2s
	}
	return mu, nil
}

// Evaluate returns the Poisson log-likelihood of the dataset under the
// current parameter state, up to the parameter-independent ln(n!) constant.
func (e *LikelihoodEngine) Evaluate(ms *ModelSet, ds *Dataset) (float64, error) {
	mu, err := ExpectedCounts(ms, ds)
	if err != nil {
		return 0, err
	}
	var ll float64
	for i, n := range ds.Counts {
		m := mu[i]
		if m <= 0 {
			if n > 0 {
				// Observed events where the model predicts none: the model
				// state is excluded outright.
				return math.Inf(-1), nil
			}
			continue
		}
		ll += n*math.Log(m) - m
	}
	if math.IsNaN(ll) {
		return 0, fmt.Errorf("%w: log-likelihood is NaN", ErrEvaluationFailed)
	}
	return ll, nil
}

// Fit optimizes the free parameters of ms against ds, leaves them at their
// best-fit values, and reports the optimized log-likelihood with
// curvature-based uncertainty estimates. With no free parameters it reduces
// to Evaluate.
func (e *LikelihoodEngine) Fit(ms *ModelSet, ds *Dataset) (*FitResult, error) {
	free := ms.FreeParams()
	if len(free) == 0 {
		ll, err := e.Evaluate(ms, ds)
		if err != nil {
			return nil, err
		}
		return &FitResult{LogLike: ll, Converged: true, Evaluations: 1,
			Params: map[spectra.ParamName]float64{}, Uncerts: map[spectra.ParamName]float64{}}, nil
	}

	x0 := make([]float64, len(free))
	for i, p := range free {
		x0[i] = p.Scaled()
	}

	evals := 0
	objective := func(x []float64) float64 {
		evals++
		for i, p := range free {
			if err := p.SetScaled(x[i]); err != nil {
				// Out-of-range proposal: steer the optimizer away without
				// failing the fit.
				return math.Inf(1)
			}
		}
		ll, err := e.Evaluate(ms, ds)
		if err != nil {
			return math.Inf(1)
		}
		return -ll
	}

	maxEvals := e.MaxEvals
	if maxEvals == 0 {
		maxEvals = defaultMaxEvals
	}
	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}
	if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, fmt.Errorf("%w: optimizer ended at objective %g", ErrEvaluationFailed, result.F)
	}

	// Park the models at the optimum.
	for i, p := range free {
		if err := p.SetScaled(result.X[i]); err != nil {
			return nil, fmt.Errorf("%w: best-fit %s rejected: %v", ErrEvaluationFailed, p.Name(), err)
		}
	}

	fr := &FitResult{
		LogLike:     -result.F,
		Converged:   result.Status == optimize.FunctionConvergence || result.Status == optimize.GradientThreshold,
		Evaluations: evals,
		Params:      make(map[spectra.ParamName]float64, len(free)),
		Uncerts:     make(map[spectra.ParamName]float64, len(free)),
	}
	for i, p := range free {
		fr.Params[p.Name()] = p.Value()
		fr.Uncerts[p.Name()] = e.uncertainty(objective, result.X, result.F, i) * p.Scale()
	}
	// uncertainty() walked the parameters around; restore the optimum.
	for i, p := range free {
		if err := p.SetScaled(result.X[i]); err != nil {
			return nil, fmt.Errorf("%w: restoring %s: %v", ErrEvaluationFailed, p.Name(), err)
		}
	}
	monitoring.Debugf("engine: fit converged=%v logL=%.4f evals=%d", fr.Converged, fr.LogLike, evals)
	return fr, nil
}

// uncertainty estimates the 1-sigma error on scaled parameter i from the
// curvature of the negative log-likelihood at the optimum, by central finite
// difference. Returns NaN when the curvature is not positive (flat or
// boundary-pinned parameter).
func (e *LikelihoodEngine) uncertainty(objective func([]float64) float64, xOpt []float64, fOpt float64, i int) float64 {
	h := 1e-3 * math.Max(1, math.Abs(xOpt[i]))
	x := append([]float64(nil), xOpt...)

	x[i] = xOpt[i] + h
	fPlus := objective(x)
	x[i] = xOpt[i] - h
	fMinus := objective(x)

	d2 := (fPlus - 2*fOpt + fMinus) / (h * h)
	if !(d2 > 0) || math.IsInf(fPlus, 0) || math.IsInf(fMinus, 0) {
		return math.NaN()
	}
	return 1 / math.Sqrt(d2)
}

// TestStatistic computes the likelihood-ratio detection statistic
// TS = 2 (lnL_signal - lnL_null), fitting ms as given for the signal
// hypothesis and refitting with the signal normalisation pinned to zero for
// the null. ms is left at the signal best fit.
func (e *LikelihoodEngine) TestStatistic(ms *ModelSet, ds *Dataset) (float64, *FitResult, error) {
	null := ms.Clone()
	null.Signal.Params().Norm().Fix()
	if err := null.Signal.Params().Norm().ForceSet(0); err != nil {
		return 0, nil, err
	}
	nullFit, err := e.Fit(null, ds)
	if err != nil {
		return 0, nil, fmt.Errorf("null fit: %w", err)
	}

	sigFit, err := e.Fit(ms, ds)
	if err != nil {
		return 0, nil, fmt.Errorf("signal fit: %w", err)
	}

	ts := 2 * (sigFit.LogLike - nullFit.LogLike)
	return ts, sigFit, nil
}
