package ui

import (
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/spmonitor/dashboard/internal/downloads"
	"github.com/spmonitor/dashboard/internal/downloads/svg"
)

// DashboardPath is where the dashboard is mounted; links are built against it.
const DashboardPath = "/downloads"

// TimestampLayout formats timestamps in the table and the last-updated card.
const TimestampLayout = "2006-01-02 15:04:05"

// SummaryCards holds the formatted snapshot metadata counts.
type SummaryCards struct {
	TotalDownloads string
	UniqueUsers    string
	UniqueSites    string
	UniqueFiles    string
	LastUpdated    string
}

// Option is one entry of a select element.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Column is a sortable table header.
type Column struct {
	Label     string
	Href      string
	Active    bool
	Indicator string
}

// Row is one table row, already formatted for display.
type Row struct {
	Timestamp string
	User      string
	FileName  string
	FilePath  string
	FileType  string
	SiteName  string
	ClientIP  string
}

// Pager describes the pagination controls.
type Pager struct {
	Label    string
	PrevHref string
	NextHref string
	Total    int
}

// Charts carries the rendered chart markup.
type Charts struct {
	Daily     template.HTML
	FileTypes template.HTML
	Users     template.HTML
	Sites     template.HTML
}

// DashboardViewModel combines all dashboard data for rendering.
type DashboardViewModel struct {
	Connection downloads.Connection
	Summary    SummaryCards
	Loaded     bool
	Matched    string
	State      downloads.ViewState
	StateQuery string
	Ranges     []Option
	Users      []Option
	Sites      []Option
	FileTypes  []Option
	PageSizes  []Option
	Columns    []Column
	Rows       []Row
	Pager      Pager
	ExportHref string
	Charts     Charts
}

// SettingsViewModel backs the connection settings form.
type SettingsViewModel struct {
	Connection downloads.Connection
	Defaults   downloads.Connection
	Endpoint   string
	Error      string
	// AccountRequired is false for bucket sources, which ignore the storage account.
	AccountRequired bool
}

// LineRenderer abstracts SVG line chart rendering for the dashboard.
type LineRenderer interface {
	Line(width, height int, series []float64, labels []string, opts svg.LineOpts) (template.HTML, error)
}

// BarRenderer abstracts SVG bar chart rendering for the dashboard.
type BarRenderer interface {
	Bars(width, height int, series []float64, labels []string, opts svg.BarOpts) (template.HTML, error)
}

// DonutRenderer abstracts SVG donut chart rendering for the dashboard.
type DonutRenderer interface {
	Donut(width, height int, series []float64, labels []string, opts svg.DonutOpts) (template.HTML, error)
}

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatTime renders t in loc, or an empty string for the zero time.
func FormatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimestampLayout)
}

// UserLabel shortens an account name to the part before '@'.
func UserLabel(user string) string {
	if i := strings.Index(user, "@"); i >= 0 {
		return user[:i]
	}
	return user
}

// FileTypeLabel is the upper-cased extension shown in badges and selects.
func FileTypeLabel(ext string) string {
	return strings.ToUpper(ext)
}

// ToSummary formats snapshot metadata for the summary cards.
func ToSummary(meta downloads.Metadata, loc *time.Location) SummaryCards {
	updated := FormatTime(meta.GeneratedAt, loc)
	if updated == "" {
		updated = "Unknown"
	}
	return SummaryCards{
		TotalDownloads: FormatCount(meta.TotalDownloads),
		UniqueUsers:    FormatCount(meta.UniqueUsers),
		UniqueSites:    FormatCount(meta.UniqueSites),
		UniqueFiles:    FormatCount(meta.UniqueFiles),
		LastUpdated:    updated,
	}
}

// ToRows converts records into table rows.
func ToRows(records []downloads.Record, loc *time.Location) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		stamp := FormatTime(rec.Timestamp, loc)
		if stamp == "" {
			stamp = rec.RawTimestamp()
		}
		rows = append(rows, Row{
			Timestamp: stamp,
			User:      rec.User,
			FileName:  rec.FileName,
			FilePath:  rec.FilePath,
			FileType:  FileTypeLabel(rec.FileExtension),
			SiteName:  rec.SiteName,
			ClientIP:  rec.ClientIP,
		})
	}
	return rows
}

// Series splits counts into chart values and labels, passing keys through label.
func Series(counts []downloads.Count, label func(string) string) ([]float64, []string) {
	values := make([]float64, 0, len(counts))
	labels := make([]string, 0, len(counts))
	for _, c := range counts {
		values = append(values, float64(c.Count))
		if label != nil {
			labels = append(labels, label(c.Key))
		} else {
			labels = append(labels, c.Key)
		}
	}
	return values, labels
}

// Href links to the dashboard showing state.
func Href(state downloads.ViewState) string {
	if q := state.Encode(); q != "" {
		return DashboardPath + "?" + q
	}
	return DashboardPath
}

var columnLabels = map[downloads.SortColumn]string{
	downloads.ColumnTimestamp:     "Timestamp",
	downloads.ColumnUser:          "User",
	downloads.ColumnFileName:      "File Name",
	downloads.ColumnFileExtension: "Type",
	downloads.ColumnSiteName:      "Site",
	downloads.ColumnClientIP:      "Client IP",
}

// TableColumns lists the displayed columns with links that apply the sort toggle.
// The file path is shown as a tooltip on the file name rather than as a column.
func TableColumns(state downloads.ViewState) []Column {
	cols := make([]Column, 0, len(columnLabels))
	for _, key := range downloads.Columns {
		label, ok := columnLabels[key]
		if !ok {
			continue
		}
		col := Column{Label: label, Href: Href(state.SelectSort(key).WithPage(1))}
		if state.Sort == key {
			col.Active = true
			col.Indicator = "▼"
			if state.Direction == downloads.Ascending {
				col.Indicator = "▲"
			}
		}
		cols = append(cols, col)
	}
	return cols
}

// ToPager builds the pagination controls for page.
func ToPager(state downloads.ViewState, page downloads.Page) Pager {
	p := Pager{
		Label: printer.Sprintf("Page %d of %d", page.Page, page.TotalPages),
		Total: page.Total,
	}
	if page.HasPrev() {
		p.PrevHref = Href(state.WithPage(page.Page - 1))
	}
	if page.HasNext() {
		p.NextHref = Href(state.WithPage(page.Page + 1))
	}
	return p
}

// RangeOptions lists the date range select entries.
func RangeOptions(selected downloads.DateRange) []Option {
	entries := []struct {
		value downloads.DateRange
		label string
	}{
		{downloads.RangeAll, "All time"},
		{downloads.RangeToday, "Today"},
		{downloads.RangeWeek, "Last 7 days"},
		{downloads.RangeMonth, "This month"},
	}
	if selected == "" {
		selected = downloads.RangeAll
	}
	opts := make([]Option, 0, len(entries))
	for _, e := range entries {
		opts = append(opts, Option{Value: string(e.value), Label: e.label, Selected: e.value == selected})
	}
	return opts
}

// ValueOptions turns distinct values into select options, prefixed by an "All" entry.
func ValueOptions(values []string, selected string, label func(string) string) []Option {
	opts := make([]Option, 0, len(values)+1)
	opts = append(opts, Option{Value: "", Label: "All", Selected: selected == ""})
	for _, v := range values {
		text := v
		if label != nil {
			text = label(v)
		}
		opts = append(opts, Option{Value: v, Label: text, Selected: v == selected})
	}
	return opts
}

// PageSizeOptions lists the page size select entries.
func PageSizeOptions(selected int) []Option {
	opts := make([]Option, 0, len(downloads.PageSizes))
	for _, size := range downloads.PageSizes {
		opts = append(opts, Option{Value: FormatCount(size), Label: FormatCount(size), Selected: size == selected})
	}
	return opts
}
