package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/klimeurt/activity-exporter/internal/activity"
)

func writeChart(path string, r *activity.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", ChartFile, err)
	}
	defer f.Close()

	if err := RenderChart(f, r); err != nil {
		return err
	}
	return f.Close()
}

// RenderChart renders the hour, weekday and month distributions as one HTML page
func RenderChart(w io.Writer, r *activity.Report) error {
	byGranularity := make(map[activity.Granularity][]activity.Bucket)
	for _, b := range r.Distribution {
		byGranularity[b.Granularity] = append(byGranularity[b.Granularity], b)
	}

	page := components.NewPage()
	page.PageTitle = "Commit activity " + r.FullName()
	page.AddCharts(
		barChart("Commits by hour (UTC)", r, byGranularity[activity.Hour]),
		barChart("Commits by weekday (UTC)", r, byGranularity[activity.Weekday]),
		lineChart("Commits by month", r, byGranularity[activity.Month]),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func barChart(title string, r *activity.Report, buckets []activity.Bucket) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: r.FullName() + ", " + r.Window(),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: "transparent",
		}),
	)

	xAxis := make([]string, 0, len(buckets))
	data := make([]opts.BarData, 0, len(buckets))
	for _, b := range buckets {
		xAxis = append(xAxis, b.Key)
		data = append(data, opts.BarData{Name: b.Key, Value: b.Count})
	}

	bar.SetXAxis(xAxis).AddSeries("commits", data)
	return bar
}

func lineChart(title string, r *activity.Report, buckets []activity.Bucket) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: r.FullName() + ", " + r.Window(),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: "transparent",
		}),
	)

	xAxis := make([]string, 0, len(buckets))
	data := make([]opts.LineData, 0, len(buckets))
	for _, b := range buckets {
		xAxis = append(xAxis, b.Key)
		data = append(data, opts.LineData{Name: b.Key, Value: b.Count, Symbol: "none"})
	}

	line.SetXAxis(xAxis).
		AddSeries("commits", data).
		SetSeriesOptions(
			charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: 0.3}),
		)
	return line
}
