// Package reporting renders operational diagnostic charts for the Health
// Monitor.
package reporting

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderQueueDepthChart renders a PNG bar chart of pending job count per
// environment, one bar per entry in depths, sorted by environment name
// for a stable rendering across snapshots.
func RenderQueueDepthChart(depths map[string]int) ([]byte, error) {
	if len(depths) == 0 {
		return nil, fmt.Errorf("no environments to chart")
	}

	names := make([]string, 0, len(depths))
	for name := range depths {
		names = append(names, name)
	}
	sort.Strings(names)

	bars := make([]chart.Value, len(names))
	for i, name := range names {
		bars[i] = chart.Value{
			Label: name,
			Value: float64(depths[name]),
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex("2563eb"),
				StrokeColor: drawing.ColorFromHex("1d4ed8"),
			},
		}
	}

	graph := chart.BarChart{
		Title:  "Pending Jobs by Environment",
		Width:  700,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
