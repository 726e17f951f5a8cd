package downloads

import (
	"sort"
	"time"
)

// TopN bounds the ranked groupings.
const TopN = 10

// Sentinel keys for records missing the grouped field.
const (
	UnknownFileType = "unknown"
	UnknownSite     = "Unknown"
)

// Count is one group of an aggregation.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Aggregation holds the grouped counts driving the charts.
type Aggregation struct {
	ByDay      []Count `json:"byDay"`
	ByFileType []Count `json:"byFileType"`
	ByUser     []Count `json:"byUser"`
	BySite     []Count `json:"bySite"`
}

// Aggregate recomputes every grouping from records. ByDay is sorted by date ascending;
// the other groupings keep the TopN largest counts, ties in first-seen order.
func Aggregate(records []Record) Aggregation {
	return Aggregation{
		ByDay:      ByDay(records),
		ByFileType: topN(group(records, fileTypeKey), TopN),
		ByUser:     topN(group(records, func(r Record) string { return r.User }), TopN),
		BySite:     topN(group(records, siteKey), TopN),
	}
}

// ByDay counts records per UTC calendar date.
func ByDay(records []Record) []Count {
	counts := group(records, func(r Record) string {
		return r.Timestamp.UTC().Format(time.DateOnly)
	})
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Key < counts[j].Key })
	return counts
}

func fileTypeKey(r Record) string {
	if r.FileExtension == "" {
		return UnknownFileType
	}
	return r.FileExtension
}

func siteKey(r Record) string {
	if r.SiteName == "" {
		return UnknownSite
	}
	return r.SiteName
}

// group counts records by key, returning groups in first-seen order.
func group(records []Record, key func(Record) string) []Count {
	index := make(map[string]int)
	counts := make([]Count, 0)
	for _, rec := range records {
		k := key(rec)
		if i, ok := index[k]; ok {
			counts[i].Count++
			continue
		}
		index[k] = len(counts)
		counts = append(counts, Count{Key: k, Count: 1})
	}
	return counts
}

func topN(counts []Count, n int) []Count {
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// Total sums the counts of a grouping.
func Total(counts []Count) int {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return total
}
