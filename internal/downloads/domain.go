package downloads

import (
	"encoding/json"
	"strings"
	"time"
)

// Record is a single download event from the snapshot document.
type Record struct {
	Timestamp     time.Time
	User          string
	FileName      string
	FilePath      string
	FileExtension string
	SiteName      string
	ClientIP      string

	// rawTimestamp holds the Timestamp field as written in the document.
	rawTimestamp string
}

// RawTimestamp returns the timestamp as written in the source document, including values
// ParseTimestamp could not read. Records built in code fall back to Timestamp in RFC 3339
// with fractional seconds.
func (r Record) RawTimestamp() string {
	if r.rawTimestamp != "" {
		return r.rawTimestamp
	}
	if r.Timestamp.IsZero() {
		return ""
	}
	return r.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Metadata summarises the snapshot as produced by the upstream pipeline.
type Metadata struct {
	TotalDownloads int
	UniqueUsers    int
	UniqueSites    int
	UniqueFiles    int
	GeneratedAt    time.Time
}

// Dataset is the decoded snapshot. It is never mutated after decoding.
type Dataset struct {
	Metadata  Metadata `json:"metadata"`
	Downloads []Record `json:"downloads"`
}

// Snapshot couples a Dataset with the details of the load that produced it.
type Snapshot struct {
	Dataset  Dataset   `json:"dataset"`
	Endpoint string    `json:"endpoint"`
	Digest   string    `json:"digest"`
	LoadedAt time.Time `json:"loadedAt"`
}

// Empty reports whether the snapshot carries no records.
func (s Snapshot) Empty() bool {
	return len(s.Dataset.Downloads) == 0
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the layouts emitted by the export pipeline. Zone-less values
// are read as UTC. Unparseable input yields the zero time.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type recordJSON struct {
	Timestamp     *string `json:"Timestamp"`
	User          *string `json:"User"`
	FileName      *string `json:"FileName"`
	FilePath      *string `json:"FilePath"`
	FileExtension *string `json:"FileExtension"`
	SiteName      *string `json:"SiteName"`
	ClientIP      *string `json:"ClientIP"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	return &s
}

// UnmarshalJSON decodes the PascalCase document fields; null and absent fields become "".
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{
		Timestamp:     ParseTimestamp(deref(raw.Timestamp)),
		rawTimestamp:  deref(raw.Timestamp),
		User:          deref(raw.User),
		FileName:      deref(raw.FileName),
		FilePath:      deref(raw.FilePath),
		FileExtension: deref(raw.FileExtension),
		SiteName:      deref(raw.SiteName),
		ClientIP:      deref(raw.ClientIP),
	}
	return nil
}

// MarshalJSON writes the record back in the document shape.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		User:          ref(r.User),
		FileName:      ref(r.FileName),
		FilePath:      ref(r.FilePath),
		FileExtension: ref(r.FileExtension),
		SiteName:      ref(r.SiteName),
		ClientIP:      ref(r.ClientIP),
	}
	if stamp := r.RawTimestamp(); stamp != "" {
		out.Timestamp = ref(stamp)
	}
	return json.Marshal(out)
}

type metadataJSON struct {
	TotalDownloads int     `json:"TotalDownloads"`
	UniqueUsers    int     `json:"UniqueUsers"`
	UniqueSites    int     `json:"UniqueSites"`
	UniqueFiles    int     `json:"UniqueFiles"`
	GeneratedAt    *string `json:"GeneratedAt"`
}

// UnmarshalJSON decodes the metadata block.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw metadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{
		TotalDownloads: raw.TotalDownloads,
		UniqueUsers:    raw.UniqueUsers,
		UniqueSites:    raw.UniqueSites,
		UniqueFiles:    raw.UniqueFiles,
		GeneratedAt:    ParseTimestamp(deref(raw.GeneratedAt)),
	}
	return nil
}

// MarshalJSON writes the metadata block in the document shape.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := metadataJSON{
		TotalDownloads: m.TotalDownloads,
		UniqueUsers:    m.UniqueUsers,
		UniqueSites:    m.UniqueSites,
		UniqueFiles:    m.UniqueFiles,
	}
	if !m.GeneratedAt.IsZero() {
		out.GeneratedAt = ref(m.GeneratedAt.Format(time.RFC3339Nano))
	}
	return json.Marshal(out)
}
