// Package scan drives profile-likelihood sweeps: one parameter is pinned to
// a sequence of trial values while an injected fit primitive re-optimises
// everything else, producing an ordered log-likelihood curve.
package scan

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/halo-data/sigmav.report/internal/monitoring"
	"github.com/halo-data/sigmav.report/internal/spectra"
)

// FitFunc is the injected fit/evaluate primitive: called once per trial
// value after the scanned parameter has been set, it returns the optimized
// log-likelihood for the remaining free parameters. Implementations are
// expected to be deterministic for identical model state.
type FitFunc func() (logLike float64, err error)

// Point is one step of a profile scan: the trial value and the resulting
// optimized log-likelihood. A failed external evaluation is recorded in Err
// and leaves LogLike meaningless; the sweep itself continues.
type Point struct {
	Value   float64
	LogLike float64
	Err     error
}

// Failed reports whether the external fit failed at this point.
func (p Point) Failed() bool { return p.Err != nil }

// Result is the ordered outcome of a sweep. Order always matches the input
// trial sequence.
type Result struct {
	Param  spectra.ParamName
	Points []Point
}

// Failures counts the flagged points.
func (r *Result) Failures() int {
	n := 0
	for _, p := range r.Points {
		if p.Failed() {
			n++
		}
	}
	return n
}

// Run sweeps param over values. The parameter is fixed for the duration of
// the scan (removed from the optimizer's active set) and is NOT restored
// afterwards: callers that want it free again call Free() themselves. Every
// trial value costs exactly one fit invocation; there is no early
// termination and no caching across values, since the other parameters
// re-settle independently at each pinned value.
//
// A failing fit is recorded on its point and the sweep continues, so partial
// results remain usable.
func Run(param *spectra.Parameter, values []float64, fit FitFunc) (*Result, error) {
	if param == nil {
		return nil, fmt.Errorf("scan: nil parameter")
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("scan: empty trial sequence")
	}
	if fit == nil {
		return nil, fmt.Errorf("scan: nil fit primitive")
	}

	param.Fix()
	res := &Result{Param: param.Name(), Points: make([]Point, 0, len(values))}
	for i, v := range values {
		pt := Point{Value: v}
		if err := param.ForceSet(v); err != nil {
			pt.Err = err
		} else if ll, err := fit(); err != nil {
			pt.Err = err
		} else {
			pt.LogLike = ll
		}
		if pt.Failed() {
			monitoring.Logf("scan: point %d/%d %s=%g failed: %v", i+1, len(values), param.Name(), v, pt.Err)
		} else {
			monitoring.Debugf("scan: point %d/%d %s=%g logL=%.4f", i+1, len(values), param.Name(), v, pt.LogLike)
		}
		res.Points = append(res.Points, pt)
	}
	return res, nil
}

// LogSpaced returns n trial values logarithmically spaced over [lo, hi],
// inclusive of both endpoints. lo and hi must be positive with lo < hi and
// n >= 2.
func LogSpaced(lo, hi float64, n int) ([]float64, error) {
	if !(lo > 0) || !(hi > lo) {
		return nil, fmt.Errorf("scan: log grid bounds [%g, %g] must be positive and increasing", lo, hi)
	}
	if n < 2 {
		return nil, fmt.Errorf("scan: log grid needs at least 2 values, got %d", n)
	}
	dst := make([]float64, n)
	floats.LogSpan(dst, lo, hi)
	return dst, nil
}
