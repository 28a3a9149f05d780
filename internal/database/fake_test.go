package database

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows serves canned rows through the pgx.Rows interface
type fakeRows struct {
	rows   [][]any
	idx    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		val := reflect.ValueOf(row[i])
		switch {
		case val.Type().AssignableTo(target.Type()):
			target.Set(val)
		case target.Kind() == reflect.Pointer && val.Type().AssignableTo(target.Type().Elem()):
			ptr := reflect.New(target.Type().Elem())
			ptr.Elem().Set(val)
			target.Set(ptr)
		case val.Type().ConvertibleTo(target.Type()):
			target.Set(val.Convert(target.Type()))
		default:
			return fmt.Errorf("scan: cannot assign %T to %s", row[i], target.Type())
		}
	}
	return nil
}

// fakeQuerier answers queries by the operation label set via WithOperation
type fakeQuerier struct {
	mu        sync.Mutex
	responses map[string][][]any
	errs      map[string]error
	calls     []string
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		responses: map[string][][]any{},
		errs:      map[string]error{},
	}
}

func (q *fakeQuerier) Query(ctx context.Context, _ string, _ ...any) (pgx.Rows, error) {
	op := operationFromContext(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, op)

	if err := q.errs[op]; err != nil {
		return nil, err
	}
	return &fakeRows{rows: q.responses[op]}, nil
}

func (q *fakeQuerier) callCount(op string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.calls {
		if c == op {
			n++
		}
	}
	return n
}

// fakeSource is a TableSource that counts loads
type fakeSource struct {
	mu     sync.Mutex
	tables []TableInfo
	err    error
	loads  int
}

func (s *fakeSource) GetTables(_ context.Context, _ ...string) ([]TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]TableInfo, len(s.tables))
	copy(out, s.tables)
	return out, nil
}

func (s *fakeSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}
