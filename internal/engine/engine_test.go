package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halo-data/sigmav.report/internal/monitoring"
	"github.com/halo-data/sigmav.report/internal/spectra"
	"github.com/halo-data/sigmav.report/internal/units"
)

func init() {
	monitoring.SetLogger(nil)
}

// testTable builds a one-channel grid with spectrum (e/m)^-1.5 cut off at
// e > m, over masses dense enough for mass fitting. Log-log interpolation is
// exact on a power law, so expected counts are analytic up to quadrature.
func testTable(t *testing.T) *spectra.GridTable {
	t.Helper()

	var masses []float64
	for m := 100.0; m <= 10000.0*1.0001; m *= math.Sqrt2 {
		masses = append(masses, m)
	}
	var energies []float64
	for e := 10.0; e <= 10000.0*1.0001; e *= math.Pow(10, 0.1) {
		energies = append(energies, e)
	}

	flux := make([][][]float64, 1)
	flux[0] = make([][]float64, len(masses))
	for mi, m := range masses {
		row := make([]float64, len(energies))
		for ei, e := range energies {
			if e <= m {
				row[ei] = math.Pow(e/m, -1.5)
			}
		}
		flux[0][mi] = row
	}

	g, err := spectra.NewGridTable([]spectra.Channel{5}, map[spectra.Channel]string{5: "b"},
		masses, energies, flux, 3e-26, 1.8621e18)
	require.NoError(t, err)
	return g
}

// testModelSet builds signal + power-law background over testTable.
func testModelSet(t *testing.T, massGeV, norm float64) *ModelSet {
	t.Helper()
	sig, err := spectra.NewSpectralModel(testTable(t), 5, massGeV, norm)
	require.NoError(t, err)
	bg, err := NewBackgroundModel(1e-9, 2.0, 100)
	require.NoError(t, err)
	return &ModelSet{Signal: sig, Background: bg}
}

func testExposure() Exposure {
	edges := make([]float64, 13)
	for i := range edges {
		edges[i] = 30 * math.Pow(10, float64(i)/8) // 30 GeV .. ~950 GeV
	}
	return Exposure{DurationS: 1800, AreaCm2: 1e6, Edges: edges}
}

func TestExposureValidation(t *testing.T) {
	exp := testExposure()
	sim := &PoissonSimulator{Seed: 1}
	ms := testModelSet(t, 1000, 0)

	bad := exp
	bad.DurationS = 0
	_, err := sim.Simulate(ms, bad)
	require.Error(t, err)

	bad = exp
	bad.Edges = []float64{30}
	_, err = sim.Simulate(ms, bad)
	require.Error(t, err)

	bad = exp
	bad.Edges = []float64{30, 20, 40}
	_, err = sim.Simulate(ms, bad)
	require.Error(t, err)
}

func TestExpectedCountsScaleWithNorm(t *testing.T) {
	ms := testModelSet(t, 1000, 1e-12)
	ms.Background = nil
	exp := testExposure()
	ds := &Dataset{Edges: exp.Edges, Counts: make([]float64, len(exp.Edges)-1),
		DurationS: exp.DurationS, AreaCm2: exp.AreaCm2}

	mu1, err := ExpectedCounts(ms, ds)
	require.NoError(t, err)

	require.NoError(t, ms.Signal.Params().Norm().ForceSet(3e-12))
	mu3, err := ExpectedCounts(ms, ds)
	require.NoError(t, err)

	for i := range mu1 {
		if mu1[i] == 0 {
			require.Zero(t, mu3[i])
			continue
		}
		require.InEpsilon(t, 3*mu1[i], mu3[i], 1e-9, "bin %d", i)
	}
}

func TestSimulateDeterministicAcrossRuns(t *testing.T) {
	ms := testModelSet(t, 1000, 1e-12)
	exp := testExposure()

	sim := &PoissonSimulator{Seed: 42}
	d1, err := sim.Simulate(ms, exp)
	require.NoError(t, err)
	d2, err := sim.Simulate(ms, exp)
	require.NoError(t, err)
	require.Equal(t, d1.Counts, d2.Counts)

	other := &PoissonSimulator{Seed: 43}
	d3, err := other.Simulate(ms, exp)
	require.NoError(t, err)
	require.NotEqual(t, d1.Counts, d3.Counts)
}

func TestEvaluateMatchesHandComputedLikelihood(t *testing.T) {
	ms := testModelSet(t, 1000, 1e-12)
	exp := testExposure()
	ds := &Dataset{Edges: exp.Edges, Counts: make([]float64, len(exp.Edges)-1),
		DurationS: exp.DurationS, AreaCm2: exp.AreaCm2}
	for i := range ds.Counts {
		ds.Counts[i] = float64(3 * (i + 1))
	}

	mu, err := ExpectedCounts(ms, ds)
	require.NoError(t, err)
	var want float64
	for i, n := range ds.Counts {
		want += n*math.Log(mu[i]) - mu[i]
	}

	eng := NewLikelihoodEngine()
	got, err := eng.Evaluate(ms, ds)
	require.NoError(t, err)
	require.InEpsilon(t, want, got, 1e-12)
}

func TestEvaluateExcludedModel(t *testing.T) {
	// Events observed where the model predicts strictly zero: likelihood is
	// -Inf, not an error.
	ms := testModelSet(t, 1000, 0)
	ms.Background = nil
	exp := testExposure()
	ds := &Dataset{Edges: exp.Edges, Counts: make([]float64, len(exp.Edges)-1),
		DurationS: exp.DurationS, AreaCm2: exp.AreaCm2}
	ds.Counts[0] = 5

	eng := NewLikelihoodEngine()
	ll, err := eng.Evaluate(ms, ds)
	require.NoError(t, err)
	require.True(t, math.IsInf(ll, -1))
}

func TestFitRecoversNormalization(t *testing.T) {
	const trueNorm = 5e-11
	truth := testModelSet(t, 1000, trueNorm)

	sim := &PoissonSimulator{Seed: 7}
	ds, err := sim.Simulate(truth, testExposure())
	require.NoError(t, err)
	require.Greater(t, ds.TotalCounts(), 500.0, "fixture should produce a well-populated dataset")

	// Fit a fresh model set started away from the truth.
	fitMS := testModelSet(t, 1000, 1e-11)
	fitMS.Signal.Params().Norm().AutoScale()

	eng := NewLikelihoodEngine()
	res, err := eng.Fit(fitMS, ds)
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.Greater(t, res.Evaluations, 0)

	got := res.Params[spectra.ParamNorm]
	require.InEpsilon(t, trueNorm, got, 0.25, "fitted norm %g vs truth %g", got, trueNorm)

	// The fitter mutates the model in place: the model and result agree.
	require.Equal(t, got, fitMS.Signal.Params().Norm().Value())

	// Curvature-based uncertainty should be a sane fraction of the value.
	sigma := res.Uncert(spectra.ParamNorm)
	require.False(t, math.IsNaN(sigma))
	require.Greater(t, sigma, 0.0)
	require.Less(t, sigma, trueNorm)
}

func TestFitWithNoFreeParamsEvaluates(t *testing.T) {
	ms := testModelSet(t, 1000, 1e-12)
	ms.Signal.Params().Norm().Fix()
	ms.Background.Prefactor().Fix()

	sim := &PoissonSimulator{Seed: 3}
	ds, err := sim.Simulate(ms, testExposure())
	require.NoError(t, err)

	eng := NewLikelihoodEngine()
	res, err := eng.Fit(ms, ds)
	require.NoError(t, err)
	require.True(t, res.Converged)
	require.Empty(t, res.Params)

	ll, err := eng.Evaluate(ms, ds)
	require.NoError(t, err)
	require.Equal(t, ll, res.LogLike)
}

func TestTestStatisticStrongVsWeakSignal(t *testing.T) {
	sim := &PoissonSimulator{Seed: 11}
	eng := NewLikelihoodEngine()
	exp := testExposure()

	// Strong signal: thousands of events over background.
	strong := testModelSet(t, 1000, 5e-11)
	dsStrong, err := sim.Simulate(strong, exp)
	require.NoError(t, err)

	fitStrong := testModelSet(t, 1000, 1e-11)
	tsStrong, fitRes, err := eng.TestStatistic(fitStrong, dsStrong)
	require.NoError(t, err)
	require.NotNil(t, fitRes)

	// Weak signal: a small perturbation on the same background.
	weak := testModelSet(t, 1000, 2e-14)
	dsWeak, err := sim.Simulate(weak, exp)
	require.NoError(t, err)

	fitWeak := testModelSet(t, 1000, 1e-13)
	tsWeak, _, err := eng.TestStatistic(fitWeak, dsWeak)
	require.NoError(t, err)

	require.Greater(t, tsStrong, 25.0, "strong signal should be detected decisively")
	require.Less(t, tsWeak, tsStrong/4, "weak signal should not look like the strong one")
}

func TestUpperLimitCoversTruth(t *testing.T) {
	const trueNorm = 2e-14 // too weak to detect against the background
	truth := testModelSet(t, 1000, trueNorm)

	sim := &PoissonSimulator{Seed: 19}
	ds, err := sim.Simulate(truth, testExposure())
	require.NoError(t, err)

	fitMS := testModelSet(t, 1000, 1e-14)
	lf := &ProfileLimitFinder{Engine: NewLikelihoodEngine()}
	lim, err := lf.UpperLimit(fitMS, ds, 0.95)
	require.NoError(t, err)

	require.Equal(t, 0.95, lim.CL)
	require.Greater(t, lim.NormUL, 0.0)
	require.False(t, math.IsInf(lim.NormUL, 0))
	require.Greater(t, lim.FluxUL, 0.0)

	// A 95% one-sided limit on an undetectable signal should sit above the
	// injected truth (up to rare statistical fluctuations, pinned by seed).
	require.Greater(t, lim.NormUL, trueNorm*0.5)

	// The caller's models are untouched.
	require.Equal(t, 1e-14, fitMS.Signal.Params().Norm().Value())
}

func TestLowerBracketDescendsToCrossing(t *testing.T) {
	// Linear drop: bestLL - ll(v) = k*v, so the threshold crossing sits at
	// delta/k. With k = delta/1e-6 the crossing is at 1e-6, six orders of
	// magnitude below hi/2 — a floor pinned at hi/2 would inflate the limit
	// to ~0.5.
	const delta = 1.353
	const crossing = 1e-6
	k := delta / crossing
	profile := func(v float64) (float64, error) { return -k * v, nil }

	lo, hi, err := lowerBracket(profile, 0, delta, 1.0, 60)
	require.NoError(t, err)

	require.Greater(t, lo, 0.0)
	require.Less(t, lo, crossing)
	require.GreaterOrEqual(t, hi, crossing)
	require.LessOrEqual(t, hi, 4*crossing)
	// lo is inside the threshold, hi outside: a genuine bracket.
	require.Less(t, k*lo, delta)
	require.GreaterOrEqual(t, k*hi, delta)
}

func TestLowerBracketKeepsImmediateFloor(t *testing.T) {
	// When hi/2 is already inside the threshold the interval is unchanged.
	const delta = 1.353
	profile := func(v float64) (float64, error) { return -delta * v, nil }

	lo, hi, err := lowerBracket(profile, 0, delta, 1.0, 60)
	require.NoError(t, err)
	require.Equal(t, 0.5, lo)
	require.Equal(t, 1.0, hi)
}

func TestLowerBracketPropagatesProfileError(t *testing.T) {
	wantErr := errors.New("fit diverged")
	profile := func(v float64) (float64, error) { return 0, wantErr }

	_, _, err := lowerBracket(profile, 0, 1.353, 1.0, 60)
	require.ErrorIs(t, err, wantErr)
}

func TestUpperLimitRejectsBadConfidence(t *testing.T) {
	ms := testModelSet(t, 1000, 1e-14)
	sim := &PoissonSimulator{Seed: 19}
	ds, err := sim.Simulate(ms, testExposure())
	require.NoError(t, err)

	lf := &ProfileLimitFinder{}
	for _, cl := range []float64{0, 0.5, 1, 1.5} {
		_, err := lf.UpperLimit(ms, ds, cl)
		require.ErrorIs(t, err, ErrEvaluationFailed, "cl=%g", cl)
	}
}

func TestEndToEndWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("multi-fit workflow")
	}

	// Reference construction from the worked example: J = 1.8621e18
	// GeV^2 cm^-5, m = 5000 GeV, sigmav = 2.7e-22 cm^3 s^-1.
	const (
		jFactor   = 1.8621e18
		massGeV   = 5000.0
		sigmaV    = 2.7e-22
		refSigmaV = 3e-26
	)
	table := testTable(t)
	fluxNorm := units.FluxNorm(jFactor, sigmaV, massGeV)
	require.Greater(t, fluxNorm, 0.0)

	sig, err := spectra.NewSpectralModel(table, 5, massGeV, fluxNorm)
	require.NoError(t, err)
	bg, err := NewBackgroundModel(1e-12, 2.0, 100)
	require.NoError(t, err)
	truth := &ModelSet{Signal: sig, Background: bg}

	edges := make([]float64, 17)
	for i := range edges {
		edges[i] = 30 * math.Pow(10, float64(i)/8) // 30 GeV .. ~3 TeV
	}
	exp := Exposure{DurationS: 18000, AreaCm2: 1e10, Edges: edges}

	sim := &PoissonSimulator{Seed: 23}
	ds, err := sim.Simulate(truth, exp)
	require.NoError(t, err)

	// Fit with mass and normalisation free, starting off-truth.
	fitSig, err := spectra.NewSpectralModel(table, 5, 2000, fluxNorm/5)
	require.NoError(t, err)
	fitSig.Params().Mass().Free()
	fitSig.Params().Norm().AutoScale()
	fitMS := &ModelSet{Signal: fitSig, Background: bg.Clone()}

	eng := NewLikelihoodEngine()
	ts, res, err := eng.TestStatistic(fitMS, ds)
	require.NoError(t, err)

	require.Greater(t, ts, 25.0, "injected signal should reject the null decisively")

	fittedMass := res.Params[spectra.ParamMass]
	massErr := res.Uncert(spectra.ParamMass)
	tol := 0.2 * massGeV
	if !math.IsNaN(massErr) && 3*massErr > tol {
		tol = 3 * massErr
	}
	require.InDelta(t, massGeV, fittedMass, tol, "fitted mass %g +- %g", fittedMass, massErr)
}
