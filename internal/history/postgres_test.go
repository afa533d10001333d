package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int:
			*d = v.(int)
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// ---------------------------------------------------------------------------
// PostgresStore tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	var gotSQL string
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			return pgconn.CommandTag{}, nil
		},
	}

	s := NewPostgresStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !strings.Contains(gotSQL, "CREATE TABLE IF NOT EXISTS correction_history") {
		t.Errorf("Migrate() executed unexpected SQL: %q", gotSQL)
	}
}

func TestPostgresStore_Record(t *testing.T) {
	t.Parallel()

	var gotArgs []any
	db := &mockDB{
		queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
			if !strings.Contains(sql, "INSERT INTO correction_history") {
				t.Errorf("Record() executed unexpected SQL: %q", sql)
			}
			gotArgs = args
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*int64)) = 7
				return nil
			}}
		},
	}

	s := NewPostgresStore(db)
	err := s.Record(context.Background(), Entry{
		Kind:    KindCorrection,
		Source:  "helo ther",
		Result:  "Hello there.",
		Tone:    "formal",
		Version: 1,
		Total:   3,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if len(gotArgs) != 7 {
		t.Fatalf("Record() passed %d args, want 7", len(gotArgs))
	}
	if gotArgs[0] != "correction" || gotArgs[1] != "helo ther" || gotArgs[2] != "Hello there." || gotArgs[3] != "formal" {
		t.Errorf("Record() args = %v", gotArgs)
	}
	if gotArgs[4] != 1 || gotArgs[5] != 3 {
		t.Errorf("Record() version/total args = %v, %v", gotArgs[4], gotArgs[5])
	}
	if createdAt, ok := gotArgs[6].(time.Time); !ok || createdAt.IsZero() {
		t.Errorf("Record() should default created_at, got %v", gotArgs[6])
	}
}

func TestPostgresStore_Record_Error(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("connection refused")
	db := &mockDB{
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &mockRow{scanFunc: func(_ ...any) error { return dbErr }}
		},
	}

	s := NewPostgresStore(db)
	err := s.Record(context.Background(), Entry{Kind: KindDictation, Result: "hello"})
	if !errors.Is(err, dbErr) {
		t.Fatalf("Record() error = %v, want wrapped %v", err, dbErr)
	}
}

func TestPostgresStore_Recent(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	rows := &mockRows{data: [][]any{
		{int64(2), "dictation", "", "hello world", "", 0, 1, now},
		{int64(1), "correction", "helo", "Hello.", "formal", 2, 3, now.Add(-time.Minute)},
	}}

	var gotLimit any
	db := &mockDB{
		queryFunc: func(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "ORDER BY created_at DESC") {
				t.Errorf("Recent() executed unexpected SQL: %q", sql)
			}
			gotLimit = args[0]
			return rows, nil
		},
	}

	s := NewPostgresStore(db)
	entries, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if gotLimit != 10 {
		t.Errorf("Recent() limit = %v, want 10", gotLimit)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}
	if entries[0].ID != 2 || entries[0].Kind != KindDictation || entries[0].Result != "hello world" {
		t.Errorf("Recent()[0] = %+v", entries[0])
	}
	if entries[1].Kind != KindCorrection || entries[1].Tone != "formal" || entries[1].Version != 2 || entries[1].Total != 3 {
		t.Errorf("Recent()[1] = %+v", entries[1])
	}
	if !rows.closed {
		t.Error("Recent() did not close rows")
	}
}

func TestPostgresStore_Recent_DefaultLimit(t *testing.T) {
	t.Parallel()

	var gotLimit any
	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
			gotLimit = args[0]
			return &mockRows{}, nil
		},
	}

	s := NewPostgresStore(db)
	if _, err := s.Recent(context.Background(), 0); err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if gotLimit != 50 {
		t.Errorf("Recent() limit = %v, want default 50", gotLimit)
	}
}

func TestPostgresStore_Prune(t *testing.T) {
	t.Parallel()

	var gotCutoff time.Time
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "DELETE FROM correction_history") {
				t.Errorf("Prune() executed unexpected SQL: %q", sql)
			}
			gotCutoff = args[0].(time.Time)
			return pgconn.NewCommandTag("DELETE 3"), nil
		},
	}

	s := NewPostgresStore(db)
	removed, err := s.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed = %d, want 3", removed)
	}
	wantCutoff := time.Now().UTC().Add(-24 * time.Hour)
	if gotCutoff.Sub(wantCutoff).Abs() > time.Minute {
		t.Errorf("Prune() cutoff = %v, want about %v", gotCutoff, wantCutoff)
	}
}
