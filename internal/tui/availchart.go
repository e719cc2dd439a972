package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

// lowSpaceFraction marks a node whose free space is within this fraction
// of its configured minimum.
const lowSpaceFraction = 1.1

// availColor picks the bar colour for a node's free space.
func availColor(n model.StorageNode) lipgloss.Color {
	switch {
	case n.MinAvailGB > 0 && n.AvailGB < n.MinAvailGB:
		return ColorRed
	case n.MinAvailGB > 0 && n.AvailGB < n.MinAvailGB*lowSpaceFraction:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// renderAvailChart draws one horizontal bar per node showing free space.
func renderAvailChart(nodes []model.StorageNode, width int) string {
	if len(nodes) == 0 {
		return dimStyle.Render("No active nodes on this host")
	}

	labelWidth := 0
	for _, n := range nodes {
		labelWidth = max(labelWidth, len(n.Name))
	}
	valueWidth := 12
	chartWidth := max(width-labelWidth-valueWidth-4, 10)

	bc := barchart.New(chartWidth, len(nodes),
		barchart.WithHorizontalBars(),
		barchart.WithBarGap(0),
		barchart.WithBarWidth(1),
		barchart.WithNoAxis(),
	)
	for _, n := range nodes {
		color := availColor(n)
		bc.Push(barchart.BarData{
			Values: []barchart.BarValue{{
				Name:  n.Name,
				Value: n.AvailGB,
				Style: lipgloss.NewStyle().Foreground(color).Background(color),
			}},
		})
	}
	bc.Draw()

	bars := strings.Split(bc.View(), "\n")
	lines := make([]string, 0, len(nodes))
	for i, n := range nodes {
		bar := ""
		if i < len(bars) {
			bar = bars[i]
		}
		lines = append(lines, fmt.Sprintf("%-*s  %s  %s",
			labelWidth, n.Name, bar, dimStyle.Render(fmt.Sprintf("%9.1f GB", n.AvailGB))))
	}
	return strings.Join(lines, "\n")
}
