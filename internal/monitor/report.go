package monitor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/halo-data/sigmav.report/internal/scan"
)

// HTMLReport renders an interactive scan report: the profile-likelihood
// curve plus a marker series for failed points. Returns the path of the
// written HTML file.
func (sp *ScanPlotter) HTMLReport(res *scan.Result, title string) (string, error) {
	if res == nil || len(res.Points) == 0 {
		return "", fmt.Errorf("scan report: empty scan result")
	}

	xLabels := make([]string, 0, len(res.Points))
	okData := make([]opts.LineData, 0, len(res.Points))
	failData := make([]opts.ScatterData, 0)
	for i, p := range res.Points {
		xLabels = append(xLabels, fmt.Sprintf("%.3g", p.Value))
		if p.Failed() {
			okData = append(okData, opts.LineData{Value: nil})
			failData = append(failData, opts.ScatterData{
				Value: []interface{}{i, 0},
				Name:  p.Err.Error(),
			})
			continue
		}
		okData = append(okData, opts.LineData{Value: p.LogLike})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "1100px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("param=%s points=%d failures=%d", res.Param, len(res.Points), res.Failures()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: string(res.Param)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "log-likelihood", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xLabels)
	line.AddSeries("profile", okData,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(line)

	if len(failData) > 0 {
		fails := charts.NewScatter()
		fails.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title: "Failed points",
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "point index"}),
		)
		fails.AddSeries("failures", failData,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
		page.AddCharts(fails)
	}

	out := filepath.Join(sp.outputDir, fmt.Sprintf("scan_%s.html", res.Param))
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create scan report: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("render scan report: %w", err)
	}
	return out, nil
}
