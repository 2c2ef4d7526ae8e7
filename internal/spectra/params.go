package spectra

import (
	"fmt"
	"math"
)

// ParamName identifies a model parameter. The set is closed: parameters are
// reached through typed accessors, so a misspelt name is a compile error or
// an explicit ErrInvalidParameter, never a silent no-op.
type ParamName string

const (
	ParamMass    ParamName = "Mass"
	ParamChannel ParamName = "Channel"
	ParamNorm    ParamName = "Normalization"
)

// Parameter holds one named model parameter: its physical value, declared
// range, free/fixed flag, and the scale factor used to condition the value
// for the optimizer. "Fixed" means "not adjusted by the optimizer", not
// "immutable": scans move fixed parameters through ForceSet.
type Parameter struct {
	name  ParamName
	value float64
	min   float64
	max   float64
	free  bool
	scale float64

	// validate, when set, constrains values to an enumerated set (the
	// Channel parameter must match a channel present in the grid).
	validate func(float64) error
}

func newParameter(name ParamName, value, min, max float64, free bool) *Parameter {
	p := &Parameter{name: name, value: value, min: min, max: max, free: free, scale: 1}
	p.AutoScale()
	return p
}

// NewParameter constructs a standalone named parameter. Auxiliary models
// (background components) use it so their parameters share the same
// free/fixed and scaling machinery the optimizer consumes.
func NewParameter(name ParamName, value, min, max float64, free bool) *Parameter {
	return newParameter(name, value, min, max, free)
}

// Name returns the parameter name.
func (p *Parameter) Name() ParamName { return p.name }

// Value returns the current physical value.
func (p *Parameter) Value() float64 { return p.value }

// Bounds returns the declared [min, max] range.
func (p *Parameter) Bounds() (min, max float64) { return p.min, p.max }

// IsFree reports whether the optimizer may adjust this parameter.
func (p *Parameter) IsFree() bool { return p.free }

// Free marks the parameter as adjustable by the optimizer.
func (p *Parameter) Free() { p.free = true }

// Fix removes the parameter from the optimizer's active set. The current
// value is kept.
func (p *Parameter) Fix() { p.free = false }

// Set updates the physical value. A free parameter is range-checked against
// its declared bounds and fails with ErrOutOfRange outside them; enumerated
// parameters are membership-checked regardless of the flag. The new value is
// visible to the next model evaluation immediately.
func (p *Parameter) Set(v float64) error {
	if p.validate != nil {
		if err := p.validate(v); err != nil {
			return err
		}
	}
	if p.free && (v < p.min || v > p.max || math.IsNaN(v)) {
		return fmt.Errorf("%w: %s = %g outside [%g, %g]", ErrOutOfRange, p.name, v, p.min, p.max)
	}
	p.value = v
	return nil
}

// ForceSet is the override path used by scan drivers: it bypasses the range
// check so a fixed parameter can be swept through values the optimizer would
// not be allowed to reach. Enumerated parameters are still membership-checked.
func (p *Parameter) ForceSet(v float64) error {
	if p.validate != nil {
		if err := p.validate(v); err != nil {
			return err
		}
	}
	p.value = v
	return nil
}

// SetBounds replaces the declared range. The current value is not moved.
func (p *Parameter) SetBounds(min, max float64) error {
	if min >= max || math.IsNaN(min) || math.IsNaN(max) {
		return fmt.Errorf("%w: %s bounds [%g, %g]", ErrOutOfRange, p.name, min, max)
	}
	p.min, p.max = min, max
	return nil
}

// Scale returns the conditioning factor. The optimizer works on value/scale.
func (p *Parameter) Scale() float64 { return p.scale }

// SetScale sets the conditioning factor. It must be positive and should track
// the order of magnitude of the value, so the quantity the optimizer steps is
// O(1); normalisations span 1e-28 to 1e-6 and degrade step-size heuristics
// badly when left unscaled.
func (p *Parameter) SetScale(s float64) error {
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("%w: %s scale %g, want positive finite", ErrOutOfRange, p.name, s)
	}
	p.scale = s
	return nil
}

// AutoScale sets the scale to the magnitude of the current value (or 1 for a
// zero value), the common case before handing a model to the optimizer.
func (p *Parameter) AutoScale() {
	v := math.Abs(p.value)
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		p.scale = 1
		return
	}
	p.scale = math.Pow(10, math.Floor(math.Log10(v)))
}

// Scaled returns value/scale, the quantity the optimizer actually steps.
func (p *Parameter) Scaled() float64 { return p.value / p.scale }

// SetScaled updates the physical value from an optimizer-proposed scaled
// value, with the same range semantics as Set.
func (p *Parameter) SetScaled(x float64) error { return p.Set(x * p.scale) }

// ScaledBounds returns the declared range divided by the scale factor.
func (p *Parameter) ScaledBounds() (min, max float64) {
	return p.min / p.scale, p.max / p.scale
}

func (p *Parameter) clone() *Parameter {
	c := *p
	return &c
}

// ParameterStore owns the three model parameters. It is created with a
// SpectralModel, mutated by user code and the optimizer during fitting, and
// lives as long as the model. No caching sits between the store and model
// evaluation.
type ParameterStore struct {
	mass    *Parameter
	channel *Parameter
	norm    *Parameter
}

// Mass returns the particle-mass parameter (GeV).
func (s *ParameterStore) Mass() *Parameter { return s.mass }

// Channel returns the annihilation-channel parameter. Its value is a channel
// identifier and is never interpolated; it stays fixed during fits.
func (s *ParameterStore) Channel() *Parameter { return s.channel }

// Norm returns the flux normalisation parameter; the annihilation cross
// section enters the model only through this multiplicative factor.
func (s *ParameterStore) Norm() *Parameter { return s.norm }

// ByName resolves a parameter by name, for scan drivers configured with a
// parameter name string. Unknown names fail with ErrInvalidParameter.
func (s *ParameterStore) ByName(name ParamName) (*Parameter, error) {
	switch name {
	case ParamMass:
		return s.mass, nil
	case ParamChannel:
		return s.channel, nil
	case ParamNorm:
		return s.norm, nil
	default:
		return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
	}
}

// All returns the parameters in canonical order (Mass, Channel, Normalization).
func (s *ParameterStore) All() []*Parameter {
	return []*Parameter{s.mass, s.channel, s.norm}
}

// FreeParams returns the free parameters in canonical order; this is the
// optimizer's active set.
func (s *ParameterStore) FreeParams() []*Parameter {
	var free []*Parameter
	for _, p := range s.All() {
		if p.free {
			free = append(free, p)
		}
	}
	return free
}

func (s *ParameterStore) clone() *ParameterStore {
	return &ParameterStore{
		mass:    s.mass.clone(),
		channel: s.channel.clone(),
		norm:    s.norm.clone(),
	}
}
