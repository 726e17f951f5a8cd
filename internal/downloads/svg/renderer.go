package svg

import "html/template"

// Renderer exposes the chart functions as methods so handlers can depend on narrow
// interfaces.
type Renderer struct{}

func (Renderer) Line(width, height int, series []float64, labels []string, opts LineOpts) (template.HTML, error) {
	return Line(width, height, series, labels, opts)
}

func (Renderer) Bars(width, height int, series []float64, labels []string, opts BarOpts) (template.HTML, error) {
	return Bars(width, height, series, labels, opts)
}

func (Renderer) Donut(width, height int, series []float64, labels []string, opts DonutOpts) (template.HTML, error) {
	return Donut(width, height, series, labels, opts)
}
