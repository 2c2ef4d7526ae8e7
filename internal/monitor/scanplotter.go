// Package monitor renders run artifacts: profile-likelihood curves and model
// spectra as PNGs, plus a standalone HTML scan report.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/halo-data/sigmav.report/internal/scan"
	"github.com/halo-data/sigmav.report/internal/spectra"
)

// ScanPlotter writes plot files for a run into a single output directory.
type ScanPlotter struct {
	outputDir string
}

// NewScanPlotter creates the output directory and returns a plotter writing
// into it.
func NewScanPlotter(outputDir string) (*ScanPlotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create plot output dir: %w", err)
	}
	return &ScanPlotter{outputDir: outputDir}, nil
}

// OutputDir returns the directory plot files are written to.
func (sp *ScanPlotter) OutputDir() string { return sp.outputDir }

// ProfileCurve plots log-likelihood against the scanned parameter value on a
// log X axis. Failed points are skipped. Returns the path of the written PNG.
func (sp *ScanPlotter) ProfileCurve(res *scan.Result, title string) (string, error) {
	if res == nil || len(res.Points) == 0 {
		return "", fmt.Errorf("profile plot: empty scan result")
	}

	pts := make(plotter.XYs, 0, len(res.Points))
	for _, p := range res.Points {
		if p.Failed() || p.Value <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: p.Value, Y: p.LogLike})
	}
	if len(pts) == 0 {
		return "", fmt.Errorf("profile plot: no usable points")
	}

	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = string(res.Param)
	pl.Y.Label.Text = "log-likelihood"
	pl.X.Scale = plot.LogScale{}
	pl.X.Tick.Marker = plot.LogTicks{Prec: -1}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", fmt.Errorf("profile plot line: %w", err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1.5)
	pl.Add(line)
	pl.Legend.Add("profile", line)
	pl.Legend.Top = true

	out := filepath.Join(sp.outputDir, fmt.Sprintf("profile_%s.png", res.Param))
	if err := pl.Save(10*vg.Inch, 6*vg.Inch, out); err != nil {
		return "", fmt.Errorf("save profile plot: %w", err)
	}
	return out, nil
}

// SpectrumCurve plots the model's differential flux over n log-spaced
// energies spanning its support, on log-log axes. Zero-flux samples (outside
// the kinematic cutoff) are skipped.
func (sp *ScanPlotter) SpectrumCurve(model *spectra.SpectralModel, n int) (string, error) {
	if model == nil {
		return "", fmt.Errorf("spectrum plot: nil model")
	}
	if n < 2 {
		n = 100
	}

	lo, hi := model.EnergySupport()
	if !(lo > 0) || !(hi > lo) {
		return "", fmt.Errorf("spectrum plot: model has no energy support")
	}

	energies := make([]float64, n)
	floats.LogSpan(energies, lo, hi)

	pts := make(plotter.XYs, 0, n)
	for _, e := range energies {
		f, err := model.FluxAt(e)
		if err != nil {
			return "", fmt.Errorf("spectrum plot at %g GeV: %w", e, err)
		}
		if f <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: e, Y: f})
	}
	if len(pts) == 0 {
		return "", fmt.Errorf("spectrum plot: flux is zero over the full support")
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Spectrum, mass %.4g GeV", model.Params().Mass().Value())
	pl.X.Label.Text = "Energy (GeV)"
	pl.Y.Label.Text = "dN/dE"
	pl.X.Scale = plot.LogScale{}
	pl.X.Tick.Marker = plot.LogTicks{Prec: -1}
	pl.Y.Scale = plot.LogScale{}
	pl.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", fmt.Errorf("spectrum plot line: %w", err)
	}
	line.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	line.Width = vg.Points(1.5)
	pl.Add(line)

	out := filepath.Join(sp.outputDir, "spectrum.png")
	if err := pl.Save(10*vg.Inch, 6*vg.Inch, out); err != nil {
		return "", fmt.Errorf("save spectrum plot: %w", err)
	}
	return out, nil
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir returns a timestamped output directory under baseDir,
// named after the run label.
func MakePlotOutputDir(baseDir, label string) string {
	ts := FormatTimestamp(time.Now())
	if label == "" {
		label = "run"
	}
	return filepath.Join(baseDir, label, ts)
}
