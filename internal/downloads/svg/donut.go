package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Donut renders a donut chart with a legend below the ring. Slices start at twelve
// o'clock and run clockwise in series order.
func Donut(width, height int, series []float64, labels []string, opts DonutOpts) (template.HTML, error) {
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
	total := 0.0
	for _, v := range series {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		return "", fmt.Errorf("svg: series total must be positive")
	}
	colors := opts.Colors
	if len(colors) == 0 {
		colors = LightPalette.Slices
	}
	textColor := fallback(opts.TextColor, LightPalette.Text)
	thickness := opts.Thickness
	if thickness <= 0 {
		thickness = DefaultThickness
	}

	legendRows := (len(labels) + 1) / 2
	legendHeight := float64(legendRows) * 16
	ringArea := float64(height) - legendHeight - 16
	radius := math.Min(float64(width), ringArea)/2 - 4
	if radius <= thickness {
		return "", fmt.Errorf("svg: viewport too small")
	}
	cx := float64(width) / 2
	cy := radius + 4
	mid := radius - thickness/2
	circumference := 2 * math.Pi * mid

	titleID := makeID(opts.Title, "donut-title")
	descID := makeID(opts.Title, "donut-desc")

	var b strings.Builder
	writeHeader(&b, width, height, titleID, descID, fallback(opts.Title, "Donut chart"), fallback(opts.Description, "Share of downloads"))

	// Each slice is a dashed circle stroke rotated to its start angle.
	offset := 0.0
	for i, value := range series {
		if value <= 0 {
			continue
		}
		length := value / total * circumference
		color := colors[i%len(colors)]
		rotation := offset/circumference*360 - 90
		b.WriteString(fmt.Sprintf("<circle cx=\"%.2f\" cy=\"%.2f\" r=\"%.2f\" fill=\"none\" stroke=\"%s\" stroke-width=\"%.2f\" stroke-dasharray=\"%.2f %.2f\" transform=\"rotate(%.2f %.2f %.2f)\"><title>%s: %s (%.1f%%)</title></circle>",
			cx, cy, mid, color, thickness, length, circumference-length, rotation, cx, cy,
			template.HTMLEscapeString(labels[i]), formatTick(value), value/total*100))
		offset += length
	}
	b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"16\" font-weight=\"600\" text-anchor=\"middle\">%s</text>", cx, cy+5, textColor, formatTick(total)))

	legendTop := cy + radius + 20
	colWidth := float64(width) / 2
	for i, label := range labels {
		col := float64(i % 2)
		row := float64(i / 2)
		x := col*colWidth + 16
		y := legendTop + row*16
		b.WriteString(fmt.Sprintf("<rect x=\"%.2f\" y=\"%.2f\" width=\"10\" height=\"10\" fill=\"%s\"></rect>", x, y-9, colors[i%len(colors)]))
		b.WriteString(fmt.Sprintf("<text x=\"%.2f\" y=\"%.2f\" fill=\"%s\" font-size=\"11\" text-anchor=\"start\">%s (%s)</text>", x+14, y, textColor, template.HTMLEscapeString(truncate(label, 18)), formatTick(series[i])))
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}
