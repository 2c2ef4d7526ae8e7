package spectra

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/halo-data/sigmav.report/internal/monitoring"
)

// SpectralModel is the continuous annihilation-spectrum model: one parameter
// store over one shared, read-only grid table. Every flux evaluation
// recomputes from the current parameter values; nothing is memoised, because
// parameters change between evaluations during a fit or a scan.
type SpectralModel struct {
	table  *GridTable
	params *ParameterStore

	clampWarnings int
}

// NewSpectralModel builds a model over table for the given channel, with the
// mass parameter at massGeV and the normalisation at norm. The table is
// shared, not copied. Mass and Channel start fixed, Normalization starts free
// with an auto-chosen scale; callers adjust free/fixed state before fitting.
func NewSpectralModel(table *GridTable, ch Channel, massGeV, norm float64) (*SpectralModel, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil grid table", ErrInvalidParameter)
	}
	if !table.HasChannel(ch) {
		return nil, fmt.Errorf("%w: unknown channel %d", ErrInvalidParameter, ch)
	}
	mLo, mHi := table.MassRange()
	if massGeV <= 0 {
		return nil, fmt.Errorf("%w: mass %g GeV", ErrOutOfRange, massGeV)
	}
	if norm < 0 {
		return nil, fmt.Errorf("%w: normalisation %g", ErrOutOfRange, norm)
	}

	mass := newParameter(ParamMass, massGeV, mLo, mHi, false)
	channel := newParameter(ParamChannel, float64(ch), float64(ch), float64(ch), false)
	channel.scale = 1
	channel.validate = func(v float64) error {
		c := Channel(math.Round(v))
		if float64(c) != v || !table.HasChannel(c) {
			return fmt.Errorf("%w: channel %g not in grid", ErrInvalidParameter, v)
		}
		return nil
	}

	normP := newParameter(ParamNorm, norm, 0, 1, true)

	return &SpectralModel{
		table:  table,
		params: &ParameterStore{mass: mass, channel: channel, norm: normP},
	}, nil
}

// Table returns the shared grid table.
func (m *SpectralModel) Table() *GridTable { return m.table }

// Params returns the model's parameter store.
func (m *SpectralModel) Params() *ParameterStore { return m.params }

// FluxAt evaluates the differential flux dN/dE at energyGeV using the current
// parameter state: Normalization times the table value at (Channel, Mass,
// energy). Mass clamps at the tabulated edge are counted and surfaced through
// ClampWarnings; the first occurrence is logged.
func (m *SpectralModel) FluxAt(energyGeV float64) (float64, error) {
	ch := Channel(math.Round(m.params.channel.value))
	v, warn, err := m.table.FluxAt(ch, m.params.mass.value, energyGeV)
	if err != nil {
		return 0, err
	}
	if warn != nil {
		m.clampWarnings++
		if m.clampWarnings == 1 {
			monitoring.Logf("spectra: %s", warn)
		} else {
			monitoring.Debugf("spectra: %s", warn)
		}
	}
	return m.params.norm.value * v, nil
}

// ClampWarnings returns how many evaluations hit the mass clamp since the
// model was created or cloned.
func (m *SpectralModel) ClampWarnings() int { return m.clampWarnings }

// EnergySupport returns the energy interval (GeV) over which the model can be
// non-zero: the tabulated span, capped above by the current particle mass.
func (m *SpectralModel) EnergySupport() (lo, hi float64) {
	lo, hi = m.table.EnergyRange()
	if mass := m.params.mass.value; mass < hi {
		hi = mass
	}
	return lo, hi
}

// Clone returns an independent model sharing the same grid table but owning a
// deep copy of the parameter state. Scenarios (reference model, fit model,
// scan model) each get their own clone so no hidden state leaks between them.
func (m *SpectralModel) Clone() *SpectralModel {
	return &SpectralModel{table: m.table, params: m.params.clone()}
}

// Description is the serialisable snapshot of a model's parameter state, used
// to hand a configured model to the external simulator or to rebuild the same
// model for a later run.
type Description struct {
	Channel   int     `json:"channel"`
	MassGeV   float64 `json:"mass_gev"`
	Norm      float64 `json:"norm"`
	MassFree  bool    `json:"mass_free"`
	NormFree  bool    `json:"norm_free"`
	NormScale float64 `json:"norm_scale"`
}

// Describe snapshots the current parameter state.
func (m *SpectralModel) Describe() Description {
	return Description{
		Channel:   int(math.Round(m.params.channel.value)),
		MassGeV:   m.params.mass.value,
		Norm:      m.params.norm.value,
		MassFree:  m.params.mass.free,
		NormFree:  m.params.norm.free,
		NormScale: m.params.norm.scale,
	}
}

// MarshalJSON serialises the model as its Description.
func (m *SpectralModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Describe())
}

// FromDescription rebuilds a model over table from a snapshot.
func FromDescription(table *GridTable, d Description) (*SpectralModel, error) {
	m, err := NewSpectralModel(table, Channel(d.Channel), d.MassGeV, d.Norm)
	if err != nil {
		return nil, err
	}
	if d.MassFree {
		m.params.mass.Free()
	}
	if !d.NormFree {
		m.params.norm.Fix()
	}
	if d.NormScale > 0 {
		if err := m.params.norm.SetScale(d.NormScale); err != nil {
			return nil, err
		}
	}
	return m, nil
}
