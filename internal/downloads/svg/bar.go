package svg

import (
	"fmt"
	"html/template"
	"strings"
	"unicode/utf8"
)

// Bars renders a single-series vertical bar chart, one bar per label.
func Bars(width, height int, series []float64, labels []string, opts BarOpts) (template.HTML, error) {
	if len(series) == 0 {
		return "", fmt.Errorf("svg: series required")
	}
	if len(series) != len(labels) {
		return "", fmt.Errorf("svg: labels length must match series")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	padding := opts.Padding
	if padding <= 0 {
		padding = DefaultPadding
	}
	tickCount := opts.TickCount
	if tickCount <= 0 {
		tickCount = DefaultTicks
	}
	labelWidth := opts.LabelWidth
	if labelWidth <= 0 {
		labelWidth = 12
	}

	axisColor := fallback(opts.AxisColor, LightPalette.Axis)
	gridColor := fallback(opts.GridColor, LightPalette.Grid)
	color := fallback(opts.Color, LightPalette.Users)
	seriesLabel := fallback(opts.SeriesLabel, "Downloads")

	chartWidth := float64(width) - 2*padding
	chartHeight := float64(height) - 2*padding
	if chartWidth <= 0 || chartHeight <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	_, maxVal := bounds(series)
	maxVal = niceCeil(maxVal, tickCount)
	scale := chartHeight / maxVal
	bottom := padding + chartHeight

	slot := chartWidth / float64(len(series))
	barWidth := slot * 0.6

	titleID := makeID(opts.Title, "bar-title")
	descID := makeID(opts.Title, "bar-desc")

	var b strings.Builder
	writeHeader(&b, width, height, titleID, descID, fallback(opts.Title, "Bar chart"), fallback(opts.Description, "Top groups by downloads"))
	writeGrid(&b, padding, chartWidth, chartHeight, maxVal, tickCount, axisColor, gridColor)
	writeAxes(&b, padding, chartWidth, chartHeight, axisColor)

	for i, label := range labels {
		value := series[i]
		if value < 0 {
			value = 0
		}
		h := value * scale
		x := padding + float64(i)*slot + (slot-barWidth)/2
		y := bottom - h
		b.WriteString(fmt.Sprintf("<rect x=\"%.2f\" y=\"%.2f\" width=\"%.2f\" height=\"%.2f\" fill=\"%s\" rx=\"2\"><title>%s %s: %s</title></rect>",
			x, y, barWidth, h, color, template.HTMLEscapeString(seriesLabel), template.HTMLEscapeString(label), formatTick(series[i])))
		center := padding + float64(i)*slot + slot/2
		b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"10\" text-anchor=\"middle\">%s</text>", center, bottom+14, axisColor, template.HTMLEscapeString(truncate(label, labelWidth))))
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func truncate(label string, width int) string {
	if utf8.RuneCountInString(label) <= width {
		return label
	}
	runes := []rune(label)
	return string(runes[:width-1]) + "…"
}
