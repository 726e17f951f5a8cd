package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/spmonitor/dashboard/internal/downloads"
)

type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *bool:
			*p = row[i].(bool)
		case *int:
			*p = row[i].(int)
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		case *pgtype.Timestamptz:
			*p = row[i].(pgtype.Timestamptz)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeDB struct {
	execSQL  []string
	execArgs [][]interface{}
	rows     *fakeRows
	limit    interface{}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.limit = args[0]
	return f.rows, nil
}

func TestRecordLoad(t *testing.T) {
	db := &fakeDB{}
	repo := NewRepository(db)
	at := time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC)

	err := repo.RecordLoad(context.Background(), downloads.LoadEvent{
		Endpoint: "https://spexports.blob.core.windows.net/data/latest.json",
		Trigger:  downloads.TriggerReload,
		Err:      &downloads.DataLoadError{URL: "u", Status: 404, Message: "unexpected status Not Found"},
		Duration: 1500 * time.Millisecond,
		At:       at,
	})
	if err != nil {
		t.Fatalf("record load: %v", err)
	}
	if len(db.execArgs) != 1 {
		t.Fatalf("expected one insert, got %d", len(db.execArgs))
	}
	args := db.execArgs[0]
	if args[2] != false {
		t.Fatalf("expected failed load, got %v", args[2])
	}
	if ts := args[4].(pgtype.Timestamptz); ts.Valid {
		t.Fatalf("generated_at must be null for failed loads")
	}
	if args[6] != int64(1500) {
		t.Fatalf("expected duration in ms, got %v", args[6])
	}
	if args[7] == "" {
		t.Fatalf("expected error text")
	}
	if args[8] != at {
		t.Fatalf("expected loaded_at %v, got %v", at, args[8])
	}
}

func TestRecent(t *testing.T) {
	generated := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	loaded := time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: &fakeRows{data: [][]any{
		{"e1", "scheduled", true, "abc", pgtype.Timestamptz{Time: generated, Valid: true}, 120, int64(80), "", loaded},
		{"e1", "reload", false, "", pgtype.Timestamptz{}, 0, int64(30000), "timeout", loaded.Add(-time.Hour)},
	}}}
	loads, err := NewRepository(db).Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if db.limit != DefaultLimit {
		t.Fatalf("expected default limit, got %v", db.limit)
	}
	if len(loads) != 2 {
		t.Fatalf("expected 2 loads, got %d", len(loads))
	}
	if loads[0].GeneratedAt == nil || !loads[0].GeneratedAt.Equal(generated) {
		t.Fatalf("unexpected generated_at %v", loads[0].GeneratedAt)
	}
	if loads[1].GeneratedAt != nil || loads[1].Error != "timeout" || loads[1].DurationMS != 30000 {
		t.Fatalf("unexpected failed load %+v", loads[1])
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	if err := NewRepository(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if len(db.execSQL) != 1 || db.execSQL[0] != Schema {
		t.Fatalf("expected schema statement")
	}
}
