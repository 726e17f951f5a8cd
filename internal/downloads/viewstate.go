package downloads

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultPageSize is the number of rows shown when no size is requested.
const DefaultPageSize = 25

// PageSizes lists the page sizes offered by the table.
var PageSizes = []int{10, 25, 50, 100}

// ViewState is the per-request presentation state. It is rebuilt from the query string
// on every request and never persisted.
type ViewState struct {
	Criteria  Criteria
	Sort      SortColumn
	Direction Direction
	Page      int
	PageSize  int
}

// DefaultViewState sorts by timestamp, newest first, on the first page.
func DefaultViewState() ViewState {
	return ViewState{
		Criteria:  Criteria{Range: RangeAll},
		Sort:      ColumnTimestamp,
		Direction: Descending,
		Page:      1,
		PageSize:  DefaultPageSize,
	}
}

// SelectSort toggles the direction when column is already selected and otherwise
// switches to column in descending order.
func (v ViewState) SelectSort(column SortColumn) ViewState {
	if v.Sort == column {
		v.Direction = v.Direction.Opposite()
		return v
	}
	v.Sort = column
	v.Direction = Descending
	return v
}

// WithPage returns the state pointing at page.
func (v ViewState) WithPage(page int) ViewState {
	v.Page = page
	return v
}

// WithCriteria replaces the criteria and returns to the first page.
func (v ViewState) WithCriteria(c Criteria) ViewState {
	v.Criteria = c
	v.Page = 1
	return v
}

// Apply runs the filter, sort and paging pipeline over records.
func (v ViewState) Apply(records []Record, now time.Time) ([]Record, Page) {
	filtered := Filter(records, v.Criteria, now)
	return filtered, SortAndPage(filtered, v.Sort, v.Direction, v.Page, v.PageSize)
}

// Query encodes the state as query parameters, omitting defaults.
func (v ViewState) Query() url.Values {
	q := url.Values{}
	if v.Criteria.Range != "" && v.Criteria.Range != RangeAll {
		q.Set("range", string(v.Criteria.Range))
	}
	if v.Criteria.User != "" {
		q.Set("user", v.Criteria.User)
	}
	if v.Criteria.Site != "" {
		q.Set("site", v.Criteria.Site)
	}
	if v.Criteria.FileType != "" {
		q.Set("type", v.Criteria.FileType)
	}
	if v.Criteria.Search != "" {
		q.Set("q", v.Criteria.Search)
	}
	if v.Sort != "" && v.Sort != ColumnTimestamp {
		q.Set("sort", string(v.Sort))
	}
	if v.Direction != "" && v.Direction != Descending {
		q.Set("dir", string(v.Direction))
	}
	if v.Page > 1 {
		q.Set("page", strconv.Itoa(v.Page))
	}
	if v.PageSize > 0 && v.PageSize != DefaultPageSize {
		q.Set("size", strconv.Itoa(v.PageSize))
	}
	return q
}

// Encode returns the query string for the state.
func (v ViewState) Encode() string {
	return v.Query().Encode()
}

// ParamError reports a query parameter that does not describe a valid view.
type ParamError struct {
	Name  string
	Value string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s parameter %q", e.Name, e.Value)
}

type viewQuery struct {
	Range  string `param:"range" validate:"omitempty,oneof=all today week month"`
	User   string `param:"user" validate:"max=320"`
	Site   string `param:"site" validate:"max=256"`
	Type   string `param:"type" validate:"max=32"`
	Search string `param:"q" validate:"max=256"`
	Sort   string `param:"sort" validate:"omitempty,oneof=timestamp user fileName fileExtension siteName clientIP filePath"`
	Dir    string `param:"dir" validate:"omitempty,oneof=asc desc"`
	Page   string `param:"page" validate:"omitempty,numeric,max=9"`
	Size   string `param:"size" validate:"omitempty,oneof=10 25 50 100"`
}

var queryValidator = newQueryValidator()

func newQueryValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("param")
	})
	return v
}

// ParseViewState reads the state written by Query. Missing parameters keep their
// defaults; a page below 1 becomes 1 and pages past the end are clamped when applied.
func ParseViewState(q url.Values) (ViewState, error) {
	raw := viewQuery{
		Range:  strings.TrimSpace(q.Get("range")),
		User:   q.Get("user"),
		Site:   q.Get("site"),
		Type:   q.Get("type"),
		Search: q.Get("q"),
		Sort:   strings.TrimSpace(q.Get("sort")),
		Dir:    strings.TrimSpace(q.Get("dir")),
		Page:   strings.TrimSpace(q.Get("page")),
		Size:   strings.TrimSpace(q.Get("size")),
	}
	if err := queryValidator.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			name := verrs[0].Field()
			return ViewState{}, &ParamError{Name: name, Value: q.Get(name)}
		}
		return ViewState{}, err
	}

	state := DefaultViewState()
	if raw.Range != "" {
		state.Criteria.Range = DateRange(raw.Range)
	}
	state.Criteria.User = raw.User
	state.Criteria.Site = raw.Site
	state.Criteria.FileType = raw.Type
	state.Criteria.Search = raw.Search
	if raw.Sort != "" {
		state.Sort = SortColumn(raw.Sort)
	}
	if raw.Dir != "" {
		state.Direction = Direction(raw.Dir)
	}
	if raw.Page != "" {
		page, err := strconv.Atoi(raw.Page)
		if err != nil {
			return ViewState{}, &ParamError{Name: "page", Value: raw.Page}
		}
		state.Page = max(page, 1)
	}
	if raw.Size != "" {
		state.PageSize, _ = strconv.Atoi(raw.Size)
	}
	return state, nil
}
