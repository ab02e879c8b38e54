package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ayusman/trafficcv/internal/units"
)

// DefaultBucketWidth is the histogram bin width in the report unit.
const DefaultBucketWidth = 5.0

// RenderHistogram writes an HTML bar chart of the speed distribution to w.
// A non-positive width selects DefaultBucketWidth.
func RenderHistogram(w io.Writer, speedsMPS []float64, unit string, width float64) error {
	if width <= 0 {
		width = DefaultBucketWidth
	}
	s := Summarize(speedsMPS, unit)
	buckets, err := Histogram(speedsMPS, s.Units, width)
	if err != nil {
		return err
	}

	x := make([]string, len(buckets))
	y := make([]opts.BarData, len(buckets))
	for i, b := range buckets {
		x[i] = fmt.Sprintf("%g-%g", b.Low, b.High)
		y[i] = opts.BarData{Value: b.Count}
	}

	label := units.Label(s.Units)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "TrafficCV speeds", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Vehicle speeds",
			Subtitle: fmt.Sprintf("n=%d mean=%.1f p50=%.1f p85=%.1f max=%.1f %s", s.Count, s.Mean, s.P50, s.P85, s.Max, label),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: label, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "vehicles"}),
	)
	bar.SetXAxis(x).
		AddSeries("speeds", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	return bar.Render(w)
}
