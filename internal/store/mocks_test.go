package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool emulates the projection_history unique constraint in memory and
// serves canned rows for queries.
type fakePool struct {
	mu       sync.Mutex
	history  map[string]int
	execErr  error
	execSQL  []string
	execArgs [][]any
	rows     [][]any
	row      []any
	queries  []string
	qArgs    [][]any
}

func newFakePool() *fakePool {
	return &fakePool{history: make(map[string]int)}
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	if strings.Contains(sql, "INSERT INTO projection_history") {
		id := args[0].(string)
		if f.history[id] > 0 {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		f.history[id]++
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	f.qArgs = append(f.qArgs, args)
	return &fakeRows{data: f.rows}, nil
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	f.qArgs = append(f.qArgs, args)
	return &fakeRow{values: f.row}
}

func (f *fakePool) Ping(ctx context.Context) error { return nil }

func (f *fakePool) rowCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[id]
}

// assign copies values into Scan destinations; nil leaves the zero value.
func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("fake: column count mismatch")
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

type fakeRow struct{ values []any }

func (r *fakeRow) Scan(dest ...any) error {
	if r.values == nil {
		return pgx.ErrNoRows
	}
	return assign(r.values, dest)
}

type fakeRows struct {
	data [][]any
	curr int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	r.curr++
	return r.curr <= len(r.data)
}
func (r *fakeRows) Scan(dest ...any) error { return assign(r.data[r.curr-1], dest) }
func (r *fakeRows) Values() ([]any, error) { return r.data[r.curr-1], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }
