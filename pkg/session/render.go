package session

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// colors per chart, first series only.
var chartColors = map[ChartID]string{
	ChartCurrent:  "#ff0000",
	ChartVoltage:  "#0000ff",
	ChartCapacity: "#00ff00",
}

func lineChart(c Chart) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeInfographic}),
		charts.WithTitleOpts(opts.Title{Title: c.Title}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "Time (s)",
			Type:      "value",
			Show:      true,
			Min:       c.X.Min,
			Max:       c.X.Max,
			AxisLabel: &opts.AxisLabel{Show: true},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type:      "value",
			Show:      true,
			Min:       round3(c.Y.Min),
			Max:       round3(c.Y.Max),
			SplitArea: &opts.SplitArea{Show: false},
			SplitLine: &opts.SplitLine{Show: true},
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:        true,
			Trigger:     "axis",
			AxisPointer: &opts.AxisPointer{Type: "cross", Snap: true},
		}),
		charts.WithLegendOpts(opts.Legend{Show: len(c.Series) > 1}),
	)

	for i, s := range c.Series {
		data := make([]opts.LineData, 0, len(s.Points))
		for _, p := range s.Points {
			data = append(data, opts.LineData{Value: []interface{}{p.X, p.Y}})
		}
		var series []charts.SeriesOpts
		if color, ok := chartColors[c.ID]; ok && i == 0 {
			series = append(series, charts.WithItemStyleOpts(opts.ItemStyle{Color: color}))
		}
		line.AddSeries(s.Name, data, series...)
	}
	line.SetSeriesOptions(charts.WithLabelOpts(opts.Label{Show: false}))

	return line
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

// Page lays out all five charts. Charts in hidden are left out.
func (s Snapshot) Page(hidden ...ChartID) *components.Page {
	skip := make(map[ChartID]bool, len(hidden))
	for _, id := range hidden {
		skip[id] = true
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("Charge session %s", s.ID)

	for _, c := range s.Charts {
		if skip[c.ID] {
			continue
		}
		page.AddCharts(lineChart(c))
	}
	return page
}

// Render writes the charts as a standalone HTML page.
func (s Snapshot) Render(w io.Writer, hidden ...ChartID) error {
	return s.Page(hidden...).Render(w)
}
