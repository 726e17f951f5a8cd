package downloads

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// DateRange selects how far back the date filter reaches.
type DateRange string

// Supported date ranges.
const (
	RangeAll   DateRange = "all"
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
)

// Valid reports whether r is one of the supported ranges.
func (r DateRange) Valid() bool {
	switch r {
	case RangeAll, RangeToday, RangeWeek, RangeMonth:
		return true
	}
	return false
}

// Start returns the inclusive lower bound for r relative to now, using now's location
// for calendar boundaries. ok is false when r imposes no bound.
func (r DateRange) Start(now time.Time) (time.Time, bool) {
	switch r {
	case RangeToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case RangeWeek:
		return now.Add(-7 * 24 * time.Hour), true
	case RangeMonth:
		y, m, _ := now.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

// Criteria is the conjunctive set of record predicates. Zero values disable a predicate.
type Criteria struct {
	Range    DateRange
	User     string
	Site     string
	FileType string
	Search   string
}

// IsZero reports whether no predicate is active.
func (c Criteria) IsZero() bool {
	return (c.Range == "" || c.Range == RangeAll) && c.User == "" && c.Site == "" && c.FileType == "" && c.Search == ""
}

type predicate func(Record) bool

func (c Criteria) predicates(now time.Time) []predicate {
	var preds []predicate
	if start, ok := c.Range.Start(now); ok {
		preds = append(preds, func(r Record) bool { return !r.Timestamp.Before(start) })
	}
	if c.User != "" {
		user := c.User
		preds = append(preds, func(r Record) bool { return r.User == user })
	}
	if c.Site != "" {
		site := c.Site
		preds = append(preds, func(r Record) bool { return r.SiteName == site })
	}
	if c.FileType != "" {
		ext := c.FileType
		preds = append(preds, func(r Record) bool { return r.FileExtension == ext })
	}
	if term := c.Search; term != "" {
		folder := cases.Fold()
		needle := folder.String(term)
		preds = append(preds, func(r Record) bool {
			return strings.Contains(folder.String(r.User), needle) ||
				strings.Contains(folder.String(r.FileName), needle) ||
				strings.Contains(folder.String(r.SiteName), needle)
		})
	}
	return preds
}

// Filter returns the records matching every active criterion, in input order. The input
// slice is never modified.
func Filter(records []Record, c Criteria, now time.Time) []Record {
	preds := c.predicates(now)
	out := make([]Record, 0, len(records))
next:
	for _, rec := range records {
		for _, keep := range preds {
			if !keep(rec) {
				continue next
			}
		}
		out = append(out, rec)
	}
	return out
}

// FilterOptions lists the distinct values offered by the filter selects.
type FilterOptions struct {
	Users     []string
	Sites     []string
	FileTypes []string
}

// Options collects the distinct non-empty users, sites and file types, sorted.
func Options(records []Record) FilterOptions {
	users := make(map[string]struct{})
	sites := make(map[string]struct{})
	types := make(map[string]struct{})
	for _, rec := range records {
		if rec.User != "" {
			users[rec.User] = struct{}{}
		}
		if rec.SiteName != "" {
			sites[rec.SiteName] = struct{}{}
		}
		if rec.FileExtension != "" {
			types[rec.FileExtension] = struct{}{}
		}
	}
	return FilterOptions{Users: sortedKeys(users), Sites: sortedKeys(sites), FileTypes: sortedKeys(types)}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
