package metrics

import (
	"os"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func savePlot(path string, series map[string][]Scalar) error {
	p := plot.New()
	p.Title.Text = "Dynamics pretraining"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "mse"

	var lines []interface{}
	for _, tag := range sortedTags(series) {
		pts := make(plotter.XYs, len(series[tag]))
		for i, s := range series[tag] {
			pts[i].X = float64(s.Step)
			pts[i].Y = s.Value
		}
		lines = append(lines, tag, pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func saveChart(path, runID string, series map[string][]Scalar) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Dynamics pretraining",
			Subtitle: runID,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)

	// every tag is logged on the same steps, the longest series sets the axis
	var steps []string
	for _, tag := range sortedTags(series) {
		if len(series[tag]) > len(steps) {
			steps = steps[:0]
			for _, s := range series[tag] {
				steps = append(steps, strconv.Itoa(s.Step))
			}
		}
	}
	line.SetXAxis(steps)

	for _, tag := range sortedTags(series) {
		items := make([]opts.LineData, 0, len(series[tag]))
		for _, s := range series[tag] {
			items = append(items, opts.LineData{Value: s.Value})
		}
		line.AddSeries(tag, items)
	}

	page := components.NewPage()
	page.AddCharts(line)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return err
	}
	return f.Close()
}

func sortedTags(series map[string][]Scalar) []string {
	tags := make([]string, 0, len(series))
	for tag := range series {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
