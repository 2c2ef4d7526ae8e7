package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/halo-data/sigmav.report/internal/db"
	"github.com/halo-data/sigmav.report/internal/engine"
	"github.com/halo-data/sigmav.report/internal/flux"
	"github.com/halo-data/sigmav.report/internal/limits"
	"github.com/halo-data/sigmav.report/internal/monitor"
	"github.com/halo-data/sigmav.report/internal/monitoring"
	"github.com/halo-data/sigmav.report/internal/scan"
	"github.com/halo-data/sigmav.report/internal/spectra"
	"github.com/halo-data/sigmav.report/internal/units"
)

// modelFlags are the flags shared by every subcommand that needs a model:
// the spectral grid, the signal configuration, and the background power law.
type modelFlags struct {
	grid    *string
	channel *int
	mass    *float64
	jfactor *float64
	sigmav  *float64
	norm    *float64

	bgPrefactor *float64
	bgIndex     *float64
	bgPivot     *float64

	verbose *bool
}

func addModelFlags(fs *flag.FlagSet) *modelFlags {
	return &modelFlags{
		grid:        fs.String("grid", "", "Spectral grid JSON file (required)"),
		channel:     fs.Int("channel", 5, "Annihilation channel ID"),
		mass:        fs.Float64("mass", 1000, "Dark matter mass in GeV"),
		jfactor:     fs.Float64("jfactor", 0, "J-factor in GeV^2 cm^-5"),
		sigmav:      fs.Float64("sigmav", 0, "Cross section in cm^3 s^-1 (default: grid reference)"),
		norm:        fs.Float64("norm", 0, "Flux normalisation (overrides jfactor/sigmav)"),
		bgPrefactor: fs.Float64("bg-prefactor", 1e-12, "Background prefactor at the pivot energy"),
		bgIndex:     fs.Float64("bg-index", 2.0, "Background spectral index"),
		bgPivot:     fs.Float64("bg-pivot", 100, "Background pivot energy in GeV"),
		verbose:     fs.Bool("verbose", false, "Enable debug logging"),
	}
}

// buildModelSet loads the grid and assembles the signal+background models.
func (mf *modelFlags) buildModelSet() (*engine.ModelSet, *spectra.GridTable, error) {
	monitoring.Verbose = *mf.verbose

	if *mf.grid == "" {
		return nil, nil, fmt.Errorf("--grid flag is required")
	}
	table, err := spectra.LoadGridTable(*mf.grid)
	if err != nil {
		return nil, nil, fmt.Errorf("load grid: %w", err)
	}

	norm := *mf.norm
	if norm == 0 {
		if *mf.jfactor <= 0 {
			return nil, nil, fmt.Errorf("either --norm or a positive --jfactor is required")
		}
		sv := *mf.sigmav
		if sv == 0 {
			sv = table.RefSigmaV
		}
		norm = units.FluxNorm(*mf.jfactor, sv, *mf.mass)
	}

	signal, err := spectra.NewSpectralModel(table, spectra.Channel(*mf.channel), *mf.mass, norm)
	if err != nil {
		return nil, nil, fmt.Errorf("build signal model: %w", err)
	}
	background, err := engine.NewBackgroundModel(*mf.bgPrefactor, *mf.bgIndex, *mf.bgPivot)
	if err != nil {
		return nil, nil, fmt.Errorf("build background model: %w", err)
	}
	return &engine.ModelSet{Signal: signal, Background: background}, table, nil
}

func loadDataset(path string) (*engine.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	ds := &engine.Dataset{}
	if err := json.Unmarshal(data, ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return ds, nil
}

func writeDataset(path string, ds *engine.Dataset) error {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}

func openResultsDB(path string) *db.DB {
	if path == "" {
		return nil
	}
	database, err := db.NewDB(path)
	if err != nil {
		log.Fatalf("open results database: %v", err)
	}
	return database
}

func recordRun(database *db.DB, ms *engine.ModelSet, res *engine.FitResult, ts float64) string {
	if database == nil {
		return ""
	}
	run := &db.FitRun{
		Channel:     int(ms.Signal.Params().Channel().Value()),
		MassGeV:     ms.Signal.Params().Mass().Value(),
		Norm:        ms.Signal.Params().Norm().Value(),
		LogLike:     res.LogLike,
		TS:          ts,
		Converged:   res.Converged,
		Evaluations: int64(res.Evaluations),
		Params:      res.Params,
	}
	if err := db.NewRunStore(database).Insert(run); err != nil {
		log.Fatalf("record fit run: %v", err)
	}
	return run.RunID
}

func handleSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	mf := addModelFlags(fs)
	duration := fs.Float64("duration", 18000, "Observation duration in seconds")
	area := fs.Float64("area", 1e10, "Effective area in cm^2")
	emin := fs.Float64("emin", 30, "Lowest bin edge in GeV")
	emax := fs.Float64("emax", 3000, "Highest bin edge in GeV")
	bins := fs.Int("bins", 16, "Number of energy bins")
	seed := fs.Uint64("seed", 1, "Random seed")
	out := fs.String("out", "events.json", "Output dataset file")
	fs.Parse(args)

	ms, _, err := mf.buildModelSet()
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}

	edges, err := scan.LogSpaced(*emin, *emax, *bins+1)
	if err != nil {
		log.Fatalf("simulate: energy binning: %v", err)
	}

	sim := &engine.PoissonSimulator{Seed: *seed}
	ds, err := sim.Simulate(ms, engine.Exposure{
		DurationS: *duration,
		AreaCm2:   *area,
		Edges:     edges,
	})
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}

	if err := writeDataset(*out, ds); err != nil {
		log.Fatalf("simulate: %v", err)
	}
	log.Printf("simulated %d events in %d bins over [%g, %g] GeV -> %s",
		int(ds.TotalCounts()), *bins, *emin, *emax, *out)
}

func handleFit(args []string) {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	mf := addModelFlags(fs)
	dataset := fs.String("dataset", "", "Input dataset file (required)")
	freeMass := fs.Bool("free-mass", false, "Let the mass float in the fit")
	dbPath := fs.String("db", "", "Record the run in this SQLite database")
	fs.Parse(args)

	if *dataset == "" {
		log.Fatal("fit: --dataset flag is required")
	}

	ms, _, err := mf.buildModelSet()
	if err != nil {
		log.Fatalf("fit: %v", err)
	}
	if *freeMass {
		ms.Signal.Params().Mass().Free()
	}

	ds, err := loadDataset(*dataset)
	if err != nil {
		log.Fatalf("fit: %v", err)
	}

	eng := engine.NewLikelihoodEngine()
	ts, res, err := eng.TestStatistic(ms, ds)
	if err != nil {
		log.Fatalf("fit: %v", err)
	}

	fmt.Printf("log-likelihood: %.4f\n", res.LogLike)
	fmt.Printf("test statistic: %.3f (significance %.2f sigma)\n", ts, limits.Significance(ts))
	fmt.Printf("converged: %v (%d evaluations)\n", res.Converged, res.Evaluations)
	for name, v := range res.Params {
		fmt.Printf("  %s = %.6g +/- %.3g\n", name, v, res.Uncert(name))
	}

	if database := openResultsDB(*dbPath); database != nil {
		defer database.Close()
		runID := recordRun(database, ms, res, ts)
		log.Printf("recorded fit run %s", runID)
	}
}

func handleScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	mf := addModelFlags(fs)
	dataset := fs.String("dataset", "", "Input dataset file (required)")
	scanMin := fs.Float64("scan-min", 1e-28, "Lowest normalisation trial value")
	scanMax := fs.Float64("scan-max", 1e-6, "Highest normalisation trial value")
	points := fs.Int("points", 50, "Number of log-spaced trial values")
	dbPath := fs.String("db", "", "Record the scan in this SQLite database")
	plotDir := fs.String("plots", "", "Write profile plots into this directory")
	fs.Parse(args)

	if *dataset == "" {
		log.Fatal("scan: --dataset flag is required")
	}

	ms, _, err := mf.buildModelSet()
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	ds, err := loadDataset(*dataset)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	eng := engine.NewLikelihoodEngine()
	ts, fit, err := eng.TestStatistic(ms, ds)
	if err != nil {
		log.Fatalf("scan: initial fit: %v", err)
	}

	// Record the run now, while the model still holds the best-fit state:
	// the sweep below pins the norm to trial values and does not restore it.
	database := openResultsDB(*dbPath)
	var runID string
	if database != nil {
		defer database.Close()
		runID = recordRun(database, ms, fit, ts)
	}

	values, err := scan.LogSpaced(*scanMin, *scanMax, *points)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}

	// Profile: the norm is pinned per trial value; any remaining free
	// parameters are re-optimised at each point.
	fitFunc := func() (float64, error) {
		if len(ms.FreeParams()) == 0 {
			return eng.Evaluate(ms, ds)
		}
		res, err := eng.Fit(ms, ds)
		if err != nil {
			return 0, err
		}
		return res.LogLike, nil
	}

	res, err := scan.Run(ms.Signal.Params().Norm(), values, fitFunc)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	log.Printf("scanned %d points (%d failures)", len(res.Points), res.Failures())

	if database != nil {
		scanID, err := db.NewScanStore(database).Insert(runID, res)
		if err != nil {
			log.Fatalf("scan: record: %v", err)
		}
		log.Printf("recorded scan %s (run %s)", scanID, runID)
	}

	if *plotDir != "" {
		sp, err := monitor.NewScanPlotter(*plotDir)
		if err != nil {
			log.Fatalf("scan: plots: %v", err)
		}
		if png, err := sp.ProfileCurve(res, "Normalisation profile"); err != nil {
			log.Printf("scan: profile plot failed: %v", err)
		} else {
			log.Printf("wrote %s", png)
		}
		if html, err := sp.HTMLReport(res, "Normalisation scan"); err != nil {
			log.Printf("scan: report failed: %v", err)
		} else {
			log.Printf("wrote %s", html)
		}
		if png, err := sp.SpectrumCurve(ms.Signal, 200); err != nil {
			log.Printf("scan: spectrum plot failed: %v", err)
		} else {
			log.Printf("wrote %s", png)
		}
	}
}

func handleLimit(args []string) {
	fs := flag.NewFlagSet("limit", flag.ExitOnError)
	mf := addModelFlags(fs)
	dataset := fs.String("dataset", "", "Input dataset file (required)")
	cl := fs.Float64("cl", 0.95, "One-sided confidence level")
	dbPath := fs.String("db", "", "Record the limit in this SQLite database")
	fs.Parse(args)

	if *dataset == "" {
		log.Fatal("limit: --dataset flag is required")
	}
	ms, table, err := mf.buildModelSet()
	if err != nil {
		log.Fatalf("limit: %v", err)
	}
	if *mf.jfactor <= 0 {
		log.Fatal("limit: a positive --jfactor is required to convert the flux bound to a cross section")
	}

	ds, err := loadDataset(*dataset)
	if err != nil {
		log.Fatalf("limit: %v", err)
	}

	eng := engine.NewLikelihoodEngine()
	finder := &engine.ProfileLimitFinder{Engine: eng}
	lim, err := finder.UpperLimit(ms, ds, *cl)
	if err != nil {
		log.Fatalf("limit: %v", err)
	}

	// Rescale to a cross section against the reference model: same spectrum
	// at the grid's reference sigma-v, integrated over the same interval.
	ref := ms.Signal.Clone()
	refNorm := units.FluxNorm(*mf.jfactor, table.RefSigmaV, *mf.mass)
	if err := ref.Params().Norm().ForceSet(refNorm); err != nil {
		log.Fatalf("limit: reference model: %v", err)
	}
	refFlux, err := flux.Integrate(ref, lim.EminGeV, lim.EmaxGeV)
	if err != nil {
		log.Fatalf("limit: reference flux: %v", err)
	}
	sigmaUL, err := limits.CrossSection(lim.FluxUL, refFlux, table.RefSigmaV)
	if err != nil {
		log.Fatalf("limit: cross section: %v", err)
	}

	fmt.Printf("%.0f%% CL upper limits over [%g, %g] GeV:\n", *cl*100, lim.EminGeV, lim.EmaxGeV)
	fmt.Printf("  normalisation: %.4g (best fit %.4g)\n", lim.NormUL, lim.BestNorm)
	fmt.Printf("  integrated flux: %.4g cm^-2 s^-1\n", lim.FluxUL)
	fmt.Printf("  cross section: %.4g cm^3 s^-1\n", sigmaUL)

	if database := openResultsDB(*dbPath); database != nil {
		defer database.Close()
		rec := &db.DerivedLimit{
			CL:       lim.CL,
			EminGeV:  lim.EminGeV,
			EmaxGeV:  lim.EmaxGeV,
			FluxUL:   lim.FluxUL,
			SigmaVUL: sigmaUL,
		}
		if err := db.NewLimitStore(database).Insert(rec); err != nil {
			log.Fatalf("limit: record: %v", err)
		}
		log.Printf("recorded limit %s", rec.LimitID)
	}
}
