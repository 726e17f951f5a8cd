package export

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spmonitor/dashboard/internal/downloads"
)

// RecordHeader is the column order of the records export.
var RecordHeader = []string{"Timestamp", "User", "FileName", "FileExtension", "SiteName", "ClientIP", "FilePath"}

// ContentType is the media type served with CSV downloads.
const ContentType = "text/csv; charset=utf-8"

// Filename returns the download name for an export made at now.
func Filename(now time.Time) string {
	return "sharepoint-downloads-" + now.Format(time.DateOnly) + ".csv"
}

// WriteRecordsCSV writes the header followed by one row per record. Every data field is
// quoted and embedded quotes are doubled; rows end with a bare newline except the last.
// No records writes nothing, not even the header.
func WriteRecordsCSV(w io.Writer, records []downloads.Record) error {
	if len(records) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(RecordHeader, ",")); err != nil {
		return err
	}
	for _, rec := range records {
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		for i, field := range recordFields(rec) {
			if i > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if err := writeQuoted(bw, field); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// RecordsCSV renders records with WriteRecordsCSV.
func RecordsCSV(records []downloads.Record) string {
	var b strings.Builder
	_ = WriteRecordsCSV(&b, records)
	return b.String()
}

func recordFields(rec downloads.Record) []string {
	return []string{rec.RawTimestamp(), rec.User, rec.FileName, rec.FileExtension, rec.SiteName, rec.ClientIP, rec.FilePath}
}

func writeQuoted(w *bufio.Writer, field string) error {
	if err := w.WriteByte('"'); err != nil {
		return err
	}
	if _, err := w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
		return err
	}
	return w.WriteByte('"')
}

// WriteAggregationCSV emits every grouping as Group,Key,Count rows.
func WriteAggregationCSV(w io.Writer, agg downloads.Aggregation) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Group", "Key", "Count"}); err != nil {
		return err
	}
	groups := []struct {
		name   string
		counts []downloads.Count
	}{
		{"day", agg.ByDay},
		{"fileType", agg.ByFileType},
		{"user", agg.ByUser},
		{"site", agg.BySite},
	}
	for _, g := range groups {
		for _, c := range g.counts {
			if err := writer.Write([]string{g.name, c.Key, strconv.Itoa(c.Count)}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
