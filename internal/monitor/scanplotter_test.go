package monitor

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/halo-data/sigmav.report/internal/scan"
	"github.com/halo-data/sigmav.report/internal/spectra"
)

func plotTestModel(t *testing.T) *spectra.SpectralModel {
	t.Helper()

	masses := []float64{100, 1000, 10000}
	energies := []float64{10, 100, 1000, 10000}
	flux := make([][][]float64, 1)
	flux[0] = make([][]float64, len(masses))
	for mi, m := range masses {
		row := make([]float64, len(energies))
		for ei, e := range energies {
			if e < m {
				row[ei] = math.Pow(e/m, -1.5)
			}
		}
		flux[0][mi] = row
	}

	table, err := spectra.NewGridTable(
		[]spectra.Channel{5}, map[spectra.Channel]string{5: "b"},
		masses, energies, flux, 3e-26, 1e18)
	if err != nil {
		t.Fatalf("build test grid: %v", err)
	}
	model, err := spectra.NewSpectralModel(table, 5, 1000, 2e-12)
	if err != nil {
		t.Fatalf("build test model: %v", err)
	}
	return model
}

func plotTestScan() *scan.Result {
	res := &scan.Result{Param: spectra.ParamNorm}
	for i := 0; i < 20; i++ {
		v := 1e-14 * math.Pow(10, float64(i)*0.2)
		ll := -400 - math.Pow(float64(i)-10, 2)
		res.Points = append(res.Points, scan.Point{Value: v, LogLike: ll})
	}
	res.Points[7].Err = errors.New("fit diverged")
	return res
}

func TestProfileCurveWritesPNG(t *testing.T) {
	sp, err := NewScanPlotter(t.TempDir())
	if err != nil {
		t.Fatalf("NewScanPlotter failed: %v", err)
	}

	out, err := sp.ProfileCurve(plotTestScan(), "norm profile")
	if err != nil {
		t.Fatalf("ProfileCurve failed: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat plot file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("profile plot file is empty")
	}
	if filepath.Ext(out) != ".png" {
		t.Fatalf("expected .png output, got %s", out)
	}
}

func TestProfileCurveRejectsEmpty(t *testing.T) {
	sp, err := NewScanPlotter(t.TempDir())
	if err != nil {
		t.Fatalf("NewScanPlotter failed: %v", err)
	}

	if _, err := sp.ProfileCurve(nil, "x"); err == nil {
		t.Fatal("expected error for nil result")
	}
	if _, err := sp.ProfileCurve(&scan.Result{Param: spectra.ParamNorm}, "x"); err == nil {
		t.Fatal("expected error for empty result")
	}

	allFailed := &scan.Result{
		Param: spectra.ParamNorm,
		Points: []scan.Point{
			{Value: 1e-12, Err: errors.New("boom")},
		},
	}
	if _, err := sp.ProfileCurve(allFailed, "x"); err == nil {
		t.Fatal("expected error when every point failed")
	}
}

func TestSpectrumCurveWritesPNG(t *testing.T) {
	sp, err := NewScanPlotter(t.TempDir())
	if err != nil {
		t.Fatalf("NewScanPlotter failed: %v", err)
	}

	out, err := sp.SpectrumCurve(plotTestModel(t), 64)
	if err != nil {
		t.Fatalf("SpectrumCurve failed: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat spectrum file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("spectrum plot file is empty")
	}
}

func TestHTMLReportWritesChart(t *testing.T) {
	sp, err := NewScanPlotter(t.TempDir())
	if err != nil {
		t.Fatalf("NewScanPlotter failed: %v", err)
	}

	out, err := sp.HTMLReport(plotTestScan(), "norm scan")
	if err != nil {
		t.Fatalf("HTMLReport failed: %v", err)
	}

	body, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	html := string(body)
	if !strings.Contains(html, "norm scan") {
		t.Fatal("report missing title")
	}
	if !strings.Contains(html, "failures") {
		t.Fatal("report missing failure series")
	}
}

func TestMakePlotOutputDir(t *testing.T) {
	dir := MakePlotOutputDir("plots", "scan-001")
	if !strings.HasPrefix(dir, filepath.Join("plots", "scan-001")) {
		t.Fatalf("unexpected dir %s", dir)
	}

	fallback := MakePlotOutputDir("plots", "")
	if !strings.HasPrefix(fallback, filepath.Join("plots", "run")) {
		t.Fatalf("unexpected fallback dir %s", fallback)
	}
}
