// Package chart renders extracted numeric series as bar chart images.
package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/insightlab/analyst/models"
)

// Renderer writes chart PNGs into OutputDir.
type Renderer struct {
	OutputDir string
}

// Render draws a grouped bar chart of the series, one group per time period
// and one bar colour per data point, and returns the generated file name.
func (r Renderer) Render(topic string, series models.Series) (string, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("no data to visualize")
	}

	periods := make([]string, 0, len(series))
	metricSet := map[string]struct{}{}
	for period, points := range series {
		periods = append(periods, period)
		for name := range points {
			metricSet[name] = struct{}{}
		}
	}
	sort.Strings(periods)
	metrics := make([]string, 0, len(metricSet))
	for name := range metricSet {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Financial Data for %s", topic)
	p.Y.Label.Text = "Amount"
	p.X.Label.Text = "Time Period"

	barWidth := vg.Points(float64(40) / float64(len(metrics)))
	for i, metric := range metrics {
		values := make(plotter.Values, len(periods))
		for j, period := range periods {
			values[j] = series[period][metric]
		}
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return "", fmt.Errorf("bar chart for %s: %w", metric, err)
		}
		bars.LineStyle.Width = 0
		bars.Color = plotutil.Color(i)
		bars.Offset = barWidth * vg.Length(i-len(metrics)/2)
		p.Add(bars)
		p.Legend.Add(metric, bars)
	}
	p.Legend.Top = true
	p.NominalX(periods...)

	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("chart-%s.png", uuid.NewString())
	if err := p.Save(10*vg.Inch, 6*vg.Inch, filepath.Join(r.OutputDir, name)); err != nil {
		return "", fmt.Errorf("save chart: %w", err)
	}
	return name, nil
}
