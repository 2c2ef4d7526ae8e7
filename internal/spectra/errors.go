package spectra

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter reports an unknown channel, an unknown parameter name,
// or a malformed grid table.
var ErrInvalidParameter = errors.New("invalid parameter")

// ErrOutOfRange reports a value outside a parameter's declared range.
var ErrOutOfRange = errors.New("value out of range")

// Warning reports a non-fatal clamp: a requested coordinate fell outside the
// tabulated support and was moved to the nearest node. Returned alongside the
// interpolated value so callers can count or surface it; never logged
// silently by the table itself.
type Warning struct {
	Quantity  string  // "mass"
	Requested float64 // value as requested
	Clamped   float64 // node actually used
}

func (w *Warning) String() string {
	return fmt.Sprintf("%s %g outside tabulated range, clamped to %g", w.Quantity, w.Requested, w.Clamped)
}
