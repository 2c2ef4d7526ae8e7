package engine

import (
	"fmt"
	"math"

	"github.com/halo-data/sigmav.report/internal/spectra"
)

// Background model parameter names.
const (
	ParamPrefactor spectra.ParamName = "Prefactor"
	ParamIndex     spectra.ParamName = "Index"
)

// BackgroundModel is the instrument/diffuse background spectrum, a power law
//
//	dN/dE = Prefactor * (E/pivot)^-Index
//
// independent of the signal model. Prefactor starts free (it absorbs the
// background rate during fits); Index starts fixed.
type BackgroundModel struct {
	prefactor *spectra.Parameter
	index     *spectra.Parameter
	pivotGeV  float64
}

// NewBackgroundModel builds a power-law background with the given prefactor
// (flux at the pivot energy), spectral index, and pivot in GeV.
func NewBackgroundModel(prefactor, index, pivotGeV float64) (*BackgroundModel, error) {
	if prefactor < 0 || pivotGeV <= 0 {
		return nil, fmt.Errorf("%w: background prefactor %g, pivot %g GeV", ErrEvaluationFailed, prefactor, pivotGeV)
	}
	return &BackgroundModel{
		prefactor: spectra.NewParameter(ParamPrefactor, prefactor, 0, math.MaxFloat64, true),
		index:     spectra.NewParameter(ParamIndex, index, -10, 10, false),
		pivotGeV:  pivotGeV,
	}, nil
}

// Prefactor returns the normalisation parameter.
func (b *BackgroundModel) Prefactor() *spectra.Parameter { return b.prefactor }

// Index returns the spectral-index parameter.
func (b *BackgroundModel) Index() *spectra.Parameter { return b.index }

// FreeParams returns the background parameters the optimizer may adjust.
func (b *BackgroundModel) FreeParams() []*spectra.Parameter {
	var free []*spectra.Parameter
	for _, p := range []*spectra.Parameter{b.prefactor, b.index} {
		if p.IsFree() {
			free = append(free, p)
		}
	}
	return free
}

// FluxAt evaluates the background differential flux at energyGeV.
func (b *BackgroundModel) FluxAt(energyGeV float64) (float64, error) {
	if energyGeV <= 0 {
		return 0, nil
	}
	return b.prefactor.Value() * math.Pow(energyGeV/b.pivotGeV, -b.index.Value()), nil
}

// Clone deep-copies the background's parameter state.
func (b *BackgroundModel) Clone() *BackgroundModel {
	pf := *b.prefactor
	ix := *b.index
	return &BackgroundModel{prefactor: &pf, index: &ix, pivotGeV: b.pivotGeV}
}
