package downloads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleRecords() []Record {
	return []Record{
		{Timestamp: ts("2024-01-01T09:00:00Z"), User: "alice@contoso.com", FileName: "Budget.xlsx", FileExtension: "xlsx", SiteName: "Finance", ClientIP: "10.0.0.1", FilePath: "/sites/finance/Budget.xlsx"},
		{Timestamp: ts("2024-01-02T10:30:00Z"), User: "bob@contoso.com", FileName: "Roadmap.pptx", FileExtension: "pptx", SiteName: "Product", ClientIP: "10.0.0.2", FilePath: "/sites/product/Roadmap.pptx"},
		{Timestamp: ts("2024-01-02T15:45:00Z"), User: "alice@contoso.com", FileName: "Notes.docx", FileExtension: "docx", SiteName: "", ClientIP: "10.0.0.1", FilePath: "/personal/alice/Notes.docx"},
		{Timestamp: ts("2023-12-20T08:00:00Z"), User: "carol@contoso.com", FileName: "Handbook.pdf", FileExtension: "", SiteName: "HR", ClientIP: "10.0.0.3", FilePath: "/sites/hr/Handbook.pdf"},
		{Timestamp: ts("2023-12-31T23:59:00Z"), User: "Dave@Contoso.com", FileName: "Forecast.XLSX", FileExtension: "xlsx", SiteName: "Finance", ClientIP: "10.0.0.4", FilePath: "/sites/finance/Forecast.XLSX"},
	}
}

func TestFilterTodayScenario(t *testing.T) {
	records := []Record{
		{Timestamp: ts("2024-01-01T12:00:00Z"), User: "a"},
		{Timestamp: ts("2024-01-02T08:00:00Z"), User: "b"},
		{Timestamp: ts("2024-01-02T18:00:00Z"), User: "c"},
	}
	now := ts("2024-01-02T20:00:00Z")

	got := Filter(records, Criteria{Range: RangeToday}, now)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].User)
	assert.Equal(t, "c", got[1].User)
}

func TestFilterRangesUseLocalCalendar(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, loc) // 2024-01-01T22:00Z
	records := []Record{
		{Timestamp: ts("2024-01-01T13:00:00Z")}, // 23:00 local on the 1st
		{Timestamp: ts("2024-01-01T15:00:00Z")}, // 01:00 local on the 2nd
	}

	today := Filter(records, Criteria{Range: RangeToday}, now)
	require.Len(t, today, 1)
	assert.Equal(t, ts("2024-01-01T15:00:00Z"), today[0].Timestamp)

	month := Filter(records, Criteria{Range: RangeMonth}, now)
	assert.Len(t, month, 2)
}

func TestFilterWeekIsRolling(t *testing.T) {
	now := ts("2024-01-10T12:00:00Z")
	records := []Record{
		{Timestamp: ts("2024-01-03T11:59:59Z")},
		{Timestamp: ts("2024-01-03T12:00:00Z")},
		{Timestamp: ts("2024-01-09T00:00:00Z")},
	}
	got := Filter(records, Criteria{Range: RangeWeek}, now)
	assert.Len(t, got, 2)
}

func TestFilterEqualityCriteria(t *testing.T) {
	records := sampleRecords()
	now := ts("2024-01-02T20:00:00Z")

	users := Filter(records, Criteria{User: "alice@contoso.com"}, now)
	assert.Len(t, users, 2)

	sites := Filter(records, Criteria{Site: "Finance"}, now)
	assert.Len(t, sites, 2)

	types := Filter(records, Criteria{FileType: "xlsx"}, now)
	assert.Len(t, types, 2)

	// The aggregation sentinel is not a site value.
	assert.Empty(t, Filter(records, Criteria{Site: UnknownSite}, now))

	combined := Filter(records, Criteria{User: "alice@contoso.com", FileType: "docx"}, now)
	require.Len(t, combined, 1)
	assert.Equal(t, "Notes.docx", combined[0].FileName)
}

func TestFilterSearchIsCaseInsensitive(t *testing.T) {
	records := sampleRecords()
	now := ts("2024-01-02T20:00:00Z")

	byUser := Filter(records, Criteria{Search: "DAVE"}, now)
	require.Len(t, byUser, 1)
	assert.Equal(t, "Dave@Contoso.com", byUser[0].User)

	byFile := Filter(records, Criteria{Search: "forecast.xlsx"}, now)
	assert.Len(t, byFile, 1)

	bySite := Filter(records, Criteria{Search: "prod"}, now)
	assert.Len(t, bySite, 1)

	// Client IP and path are not searched.
	assert.Empty(t, Filter(records, Criteria{Search: "10.0.0"}, now))
	// The term is matched as typed, surrounding spaces included.
	assert.Empty(t, Filter(records, Criteria{Search: "   "}, now))
	withSpace := Filter(records, Criteria{Search: "budget.xlsx "}, now)
	assert.Empty(t, withSpace)
	assert.Len(t, Filter(records, Criteria{Search: "budget.xlsx"}, now), 1)
}

func TestFilterIdentitySubsetAndIdempotence(t *testing.T) {
	records := sampleRecords()
	original := append([]Record(nil), records...)
	now := ts("2024-01-02T20:00:00Z")

	assert.Equal(t, records, Filter(records, Criteria{}, now))
	assert.Equal(t, records, Filter(records, Criteria{Range: RangeAll}, now))

	criteria := []Criteria{
		{Range: RangeToday},
		{Range: RangeMonth, User: "alice@contoso.com"},
		{Search: "contoso", FileType: "xlsx"},
		{Site: "HR", Range: RangeWeek},
	}
	for _, c := range criteria {
		once := Filter(records, c, now)
		for _, rec := range once {
			assert.Contains(t, records, rec)
		}
		assert.Equal(t, once, Filter(once, c, now), "criteria %+v", c)
	}
	assert.Equal(t, original, records, "input must not be mutated")
}

func TestCriteriaIsZero(t *testing.T) {
	assert.True(t, Criteria{}.IsZero())
	assert.True(t, Criteria{Range: RangeAll}.IsZero())
	assert.False(t, Criteria{Search: " "}.IsZero())
	assert.False(t, Criteria{Range: RangeWeek}.IsZero())
	assert.False(t, Criteria{User: "a"}.IsZero())
}

func TestOptionsAreDistinctAndSorted(t *testing.T) {
	opts := Options(sampleRecords())
	assert.Equal(t, []string{"Dave@Contoso.com", "alice@contoso.com", "bob@contoso.com", "carol@contoso.com"}, opts.Users)
	assert.Equal(t, []string{"Finance", "HR", "Product"}, opts.Sites)
	assert.Equal(t, []string{"docx", "pptx", "xlsx"}, opts.FileTypes)
}

func TestDateRangeValid(t *testing.T) {
	for _, r := range []DateRange{RangeAll, RangeToday, RangeWeek, RangeMonth} {
		assert.True(t, r.Valid(), string(r))
	}
	assert.False(t, DateRange("year").Valid())
	_, ok := RangeAll.Start(time.Now())
	assert.False(t, ok)
}
