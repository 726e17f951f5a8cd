package downloads

import (
	"sort"
	"strings"
)

// SortColumn names a sortable table column.
type SortColumn string

// Sortable columns.
const (
	ColumnTimestamp     SortColumn = "timestamp"
	ColumnUser          SortColumn = "user"
	ColumnFileName      SortColumn = "fileName"
	ColumnFileExtension SortColumn = "fileExtension"
	ColumnSiteName      SortColumn = "siteName"
	ColumnClientIP      SortColumn = "clientIP"
	ColumnFilePath      SortColumn = "filePath"
)

// Columns lists the sortable columns in display order.
var Columns = []SortColumn{
	ColumnTimestamp,
	ColumnUser,
	ColumnFileName,
	ColumnFileExtension,
	ColumnSiteName,
	ColumnClientIP,
	ColumnFilePath,
}

// Valid reports whether c names a known column.
func (c SortColumn) Valid() bool {
	for _, col := range Columns {
		if col == c {
			return true
		}
	}
	return false
}

// Value returns the raw string form of the column for rec.
func (c SortColumn) Value(rec Record) string {
	switch c {
	case ColumnUser:
		return rec.User
	case ColumnFileName:
		return rec.FileName
	case ColumnFileExtension:
		return rec.FileExtension
	case ColumnSiteName:
		return rec.SiteName
	case ColumnClientIP:
		return rec.ClientIP
	case ColumnFilePath:
		return rec.FilePath
	default:
		return ""
	}
}

// Direction is the sort order.
type Direction string

// Sort directions.
const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Ascending || d == Descending
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// Page is one page of the sorted table.
type Page struct {
	Records    []Record
	Page       int
	PageSize   int
	TotalPages int
	Total      int
}

// HasPrev reports whether a previous page exists.
func (p Page) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Page) HasNext() bool { return p.Page < p.TotalPages }

// TotalPages returns ceil(total/pageSize), never less than 1.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := (total + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// ClampPage moves page into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Sort returns a stably sorted copy of records. Equal keys keep their input order in
// both directions.
func Sort(records []Record, column SortColumn, dir Direction) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	cmp := compareFunc(column)
	if dir == Ascending {
		sort.SliceStable(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) < 0 })
	} else {
		sort.SliceStable(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) > 0 })
	}
	return sorted
}

func compareFunc(column SortColumn) func(a, b Record) int {
	if column == ColumnTimestamp || !column.Valid() {
		return func(a, b Record) int { return a.Timestamp.Compare(b.Timestamp) }
	}
	return func(a, b Record) int { return strings.Compare(column.Value(a), column.Value(b)) }
}

// SortAndPage sorts records and slices out the requested page. Out-of-range pages are
// clamped to the nearest existing page.
func SortAndPage(records []Record, column SortColumn, dir Direction, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(records)
	totalPages := TotalPages(total, pageSize)
	page = ClampPage(page, totalPages)

	sorted := Sort(records, column, dir)
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	return Page{
		Records:    sorted[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Total:      total,
	}
}
