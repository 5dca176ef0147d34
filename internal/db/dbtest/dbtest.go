// Package dbtest provides an in-memory DBTX double for service tests. Results
// are registered per SQL fragment, so tests stay declarative and never need a
// running database.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stub struct {
	fragment string
	rows     [][]any
	err      error
	next     int
}

// Call records one statement the code under test executed.
type Call struct {
	SQL  string
	Args []any
}

// DB implements db.DBTX. Register expected results with OnRows or OnError,
// matched by substring of the executed SQL.
type DB struct {
	mu    sync.Mutex
	stubs []*stub
	calls []Call
}

func New() *DB { return &DB{} }

// OnRows serves the given rows for any statement containing fragment. Each
// inner slice holds column values in scan order, typed exactly as the row
// struct fields are. Query returns every row; QueryRow consumes them one per
// call, sticking to the last once exhausted.
func (d *DB) OnRows(fragment string, rows ...[]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stubs = append(d.stubs, &stub{fragment: fragment, rows: rows})
}

// OnError serves err for any statement containing fragment.
func (d *DB) OnError(fragment string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stubs = append(d.stubs, &stub{fragment: fragment, err: err})
}

// Calls returns every statement executed so far.
func (d *DB) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsMatching returns the executed statements containing fragment.
func (d *DB) CallsMatching(fragment string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if strings.Contains(c.SQL, fragment) {
			out = append(out, c)
		}
	}
	return out
}

func (d *DB) lookup(sql string) (*stub, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.stubs {
		if strings.Contains(sql, s.fragment) {
			return s, true
		}
	}
	return nil, false
}

func (d *DB) record(sql string, args []any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{SQL: sql, Args: args})
}

func (d *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.record(sql, args)
	if s, ok := d.lookup(sql); ok && s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	return pgconn.NewCommandTag("OK 1"), nil
}

func (d *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.record(sql, args)
	s, ok := d.lookup(sql)
	if !ok {
		return &rows{}, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return &rows{data: s.rows}, nil
}

func (d *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.record(sql, args)
	s, ok := d.lookup(sql)
	if !ok {
		return row{err: pgx.ErrNoRows}
	}
	if s.err != nil {
		return row{err: s.err}
	}
	if len(s.rows) == 0 {
		return row{err: pgx.ErrNoRows}
	}
	d.mu.Lock()
	idx := s.next
	if idx >= len(s.rows) {
		idx = len(s.rows) - 1
	} else {
		s.next++
	}
	d.mu.Unlock()
	return row{values: s.rows[idx]}
}

type row struct {
	values []any
	err    error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type rows struct {
	data [][]any
	pos  int
	err  error
}

func (r *rows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *rows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.data) {
		return fmt.Errorf("scan called without next")
	}
	return assign(dest, r.data[r.pos-1])
}

func (r *rows) Close()                                       {}
func (r *rows) Err() error                                   { return r.err }
func (r *rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rows) Values() ([]any, error)                       { return nil, nil }
func (r *rows) RawValues() [][]byte                          { return nil }
func (r *rows) Conn() *pgx.Conn                              { return nil }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan expects %d columns, stub has %d", len(dest), len(values))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan destination %d is not a pointer", i)
		}
		sv := reflect.ValueOf(values[i])
		if !sv.IsValid() {
			dv.Elem().SetZero()
			continue
		}
		if !sv.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("column %d: cannot assign %T to %s", i, values[i], dv.Elem().Type())
		}
		dv.Elem().Set(sv)
	}
	return nil
}
