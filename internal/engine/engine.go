// Package engine defines the capabilities the fitting core injects — event
// simulation, maximum-likelihood fitting, and upper-limit finding — together
// with a bundled binned-Poisson implementation of all three. The core's scan
// and limit logic depends only on the interfaces, so tests swap in
// deterministic stubs.
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/halo-data/sigmav.report/internal/spectra"
)

// ErrEvaluationFailed reports that a simulator, fitter, or limit finder did
// not converge or otherwise failed. Convergence failures are data, not
// transient faults: there is no retry, since re-running with identical inputs
// reproduces the failure.
var ErrEvaluationFailed = errors.New("external evaluation failed")

// Exposure describes the observation window used to turn fluxes into
// expected counts.
type Exposure struct {
	DurationS float64   // observation length, seconds
	AreaCm2   float64   // effective collection area, cm^2
	Edges     []float64 // energy bin edges, GeV, strictly increasing
}

func (e Exposure) validate() error {
	if e.DurationS <= 0 || e.AreaCm2 <= 0 {
		return fmt.Errorf("%w: exposure duration %g s, area %g cm^2", ErrEvaluationFailed, e.DurationS, e.AreaCm2)
	}
	if len(e.Edges) < 2 {
		return fmt.Errorf("%w: exposure needs at least 2 bin edges, got %d", ErrEvaluationFailed, len(e.Edges))
	}
	for i := 1; i < len(e.Edges); i++ {
		if e.Edges[i] <= e.Edges[i-1] {
			return fmt.Errorf("%w: bin edges not strictly increasing at index %d", ErrEvaluationFailed, i)
		}
	}
	return nil
}

// Dataset is a binned event dataset: observed counts per energy bin plus the
// exposure it was taken with.
type Dataset struct {
	Edges     []float64 `json:"edges"`  // GeV, len = bins+1
	Counts    []float64 `json:"counts"` // observed events per bin
	DurationS float64   `json:"duration_s"`
	AreaCm2   float64   `json:"area_cm2"`
}

// ExposureCm2S returns the integrated exposure (area x duration).
func (d *Dataset) ExposureCm2S() float64 { return d.AreaCm2 * d.DurationS }

// TotalCounts returns the summed observed counts.
func (d *Dataset) TotalCounts() float64 {
	var n float64
	for _, c := range d.Counts {
		n += c
	}
	return n
}

// EnergyRange returns the dataset's energy span in GeV.
func (d *Dataset) EnergyRange() (lo, hi float64) {
	return d.Edges[0], d.Edges[len(d.Edges)-1]
}

// ModelSet is the model collection handed to the simulator and fitter: the
// signal spectral model plus an independent background model. Build a fresh
// ModelSet (or Clone one) per scenario — reference, fit, scan — so parameter
// state never leaks across scenarios.
type ModelSet struct {
	Signal     *spectra.SpectralModel
	Background *BackgroundModel
}

// FreeParams returns the optimizer's active set: the free parameters of the
// signal model followed by those of the background model.
func (ms *ModelSet) FreeParams() []*spectra.Parameter {
	var free []*spectra.Parameter
	if ms.Signal != nil {
		free = append(free, ms.Signal.Params().FreeParams()...)
	}
	if ms.Background != nil {
		free = append(free, ms.Background.FreeParams()...)
	}
	return free
}

// Clone deep-copies the parameter state of both models; the grid table stays
// shared.
func (ms *ModelSet) Clone() *ModelSet {
	c := &ModelSet{}
	if ms.Signal != nil {
		c.Signal = ms.Signal.Clone()
	}
	if ms.Background != nil {
		c.Background = ms.Background.Clone()
	}
	return c
}

// FluxAt evaluates the summed differential flux of signal and background.
func (ms *ModelSet) FluxAt(energyGeV float64) (float64, error) {
	var total float64
	if ms.Signal != nil {
		v, err := ms.Signal.FluxAt(energyGeV)
		if err != nil {
			return 0, err
		}
		total += v
	}
	if ms.Background != nil {
		v, err := ms.Background.FluxAt(energyGeV)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// FitResult reports a completed fit: the optimized log-likelihood, the
// best-fit values and uncertainty estimates of the free parameters, and how
// much work the optimizer did.
type FitResult struct {
	LogLike     float64
	Params      map[spectra.ParamName]float64
	Uncerts     map[spectra.ParamName]float64
	Converged   bool
	Evaluations int
}

// Uncert returns the reported uncertainty for name, or NaN when the fit did
// not estimate one.
func (r *FitResult) Uncert(name spectra.ParamName) float64 {
	if v, ok := r.Uncerts[name]; ok {
		return v
	}
	return math.NaN()
}

// Simulator produces an event dataset from a model collection and exposure.
// The bundled implementation is PoissonSimulator; production deployments
// inject the full instrument simulation behind this interface.
type Simulator interface {
	Simulate(ms *ModelSet, exp Exposure) (*Dataset, error)
}

// Fitter optimizes the free parameters of a model collection against a
// dataset, mutating them in place to their best-fit values, and evaluates
// the objective at the current parameter state without optimizing.
type Fitter interface {
	Fit(ms *ModelSet, ds *Dataset) (*FitResult, error)
	Evaluate(ms *ModelSet, ds *Dataset) (float64, error)
}

// LimitResult is a one-sided bound on the signal normalisation and on the
// integrated flux over the dataset's energy range.
type LimitResult struct {
	CL       float64 // confidence level, e.g. 0.95
	NormUL   float64 // upper limit on the Normalization parameter
	FluxUL   float64 // integrated flux at NormUL over [EminGeV, EmaxGeV]
	EminGeV  float64
	EmaxGeV  float64
	BestNorm float64 // profile minimum the limit is measured from
}

// LimitFinder derives a one-sided flux bound from a fitted model/dataset
// pair at the given confidence level.
type LimitFinder interface {
	UpperLimit(ms *ModelSet, ds *Dataset, cl float64) (*LimitResult, error)
}
