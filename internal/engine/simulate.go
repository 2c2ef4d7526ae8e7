package engine

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/halo-data/sigmav.report/internal/monitoring"
)

// PoissonSimulator is the bundled Simulator: expected counts per energy bin
// from the model collection, then an independent Poisson draw per bin.
// A fixed Seed makes runs reproducible; the simulator holds no other state.
type PoissonSimulator struct {
	Seed uint64
}

// Simulate draws a binned event dataset for the model collection under the
// given exposure.
func (s *PoissonSimulator) Simulate(ms *ModelSet, exp Exposure) (*Dataset, error) {
	if err := exp.validate(); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Edges:     append([]float64(nil), exp.Edges...),
		Counts:    make([]float64, len(exp.Edges)-1),
		DurationS: exp.DurationS,
		AreaCm2:   exp.AreaCm2,
	}

	mu, err := ExpectedCounts(ms, ds)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	src := rand.NewPCG(s.Seed, s.Seed+1)
	for i, m := range mu {
		if m <= 0 {
			continue
		}
		ds.Counts[i] = float64(distuv.Poisson{Lambda: m, Src: src}.Rand())
	}
	monitoring.Debugf("engine: simulated %d bins, %.0f events", len(ds.Counts), ds.TotalCounts())
	return ds, nil
}
