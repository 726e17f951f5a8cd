package svg

// LineOpts customises the line chart renderer.
type LineOpts struct {
	Title       string
	Description string
	StrokeColor string
	FillColor   string
	AxisColor   string
	GridColor   string
	Padding     float64
	ShowDots    bool
	TickCount   int
	// MaxLabels thins the x-axis labels so that at most this many are drawn.
	MaxLabels int
}

// BarOpts customises the single-series bar chart renderer.
type BarOpts struct {
	Title       string
	Description string
	SeriesLabel string
	Color       string
	AxisColor   string
	GridColor   string
	Padding     float64
	TickCount   int
	// LabelWidth truncates category labels to this many runes.
	LabelWidth int
}

// DonutOpts customises the donut chart renderer.
type DonutOpts struct {
	Title       string
	Description string
	Colors      []string
	TextColor   string
	Thickness   float64
}

// Palette groups the colours used for one theme.
type Palette struct {
	Primary string
	Fill    string
	Users   string
	Sites   string
	Axis    string
	Grid    string
	Text    string
	Slices  []string
}

// Palettes for the light and dark themes.
var (
	LightPalette = Palette{
		Primary: "#007bff",
		Fill:    "rgba(0,123,255,0.10)",
		Users:   "#28a745",
		Sites:   "#17a2b8",
		Axis:    "#475569",
		Grid:    "#cbd5e1",
		Text:    "#1e293b",
		Slices:  []string{"#007bff", "#28a745", "#ffc107", "#dc3545", "#17a2b8", "#6f42c1", "#e83e8c", "#fd7e14", "#20c997", "#6c757d"},
	}
	DarkPalette = Palette{
		Primary: "#4da3ff",
		Fill:    "rgba(77,163,255,0.16)",
		Users:   "#48c774",
		Sites:   "#3ec6dc",
		Axis:    "#94a3b8",
		Grid:    "#334155",
		Text:    "#e2e8f0",
		Slices:  []string{"#4da3ff", "#48c774", "#ffd34d", "#ff6b6b", "#3ec6dc", "#9f7aea", "#f06595", "#ff922b", "#38d9a9", "#adb5bd"},
	}
)

// PaletteFor returns the palette of the named theme, light by default.
func PaletteFor(theme string) Palette {
	if theme == "dark" {
		return DarkPalette
	}
	return LightPalette
}

// Defaults for the dashboard charts.
const (
	DefaultWidth     = 720
	DefaultHeight    = 260
	DefaultPadding   = 32.0
	DefaultTicks     = 5
	DefaultMaxLabels = 12
	DefaultThickness = 36.0
)
