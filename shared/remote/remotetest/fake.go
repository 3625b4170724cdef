// Package remotetest provides an in-memory Remote for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/pavitra93/care-intake-portal/shared/remote"
)

// Operations that can be made to fail
const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Fake keeps rows as JSON objects per table
type Fake struct {
	mu      sync.Mutex
	tables  map[string][]map[string]interface{}
	fail    map[string]error
	calls   map[string]int
	visible map[string]map[string]bool // token -> row ids, set by Restrict
}

func New() *Fake {
	return &Fake{
		tables:  make(map[string][]map[string]interface{}),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
		visible: make(map[string]map[string]bool),
	}
}

// Restrict limits the rows that calls made with token can read or write to
// ids, the way row-level security narrows a signed-in user's access
func (f *Fake) Restrict(token string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	f.visible[token] = allowed
}

func (f *Fake) Name() string { return "fake" }

// Fail makes every call of op return err until Recover is called
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// Recover clears injected failures
func (f *Fake) Recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = make(map[string]error)
}

// Calls returns how many times op was invoked
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Seed inserts rows without going through failure injection
func (f *Fake) Seed(table string, rows ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.tables[table] = append(f.tables[table], toMap(row))
	}
}

// Rows returns the number of rows in table
func (f *Fake) Rows(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *Fake) begin(op string) error {
	f.calls[op]++
	return f.fail[op]
}

func (f *Fake) Select(ctx context.Context, table string, q remote.Query, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpSelect); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var out []map[string]interface{}
	for _, row := range f.tables[table] {
		if f.canSee(ctx, row) && matches(row, q.Filters) {
			out = append(out, row)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][q.OrderBy]), fmt.Sprint(out[j][q.OrderBy])
			if q.Desc {
				return a > b
			}
			return a < b
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = []map[string]interface{}{}
	}
	return roundTrip(out, dest)
}

func (f *Fake) Insert(ctx context.Context, table string, row interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpInsert); err != nil {
		return err
	}

	m := toMap(row)
	for _, existing := range f.tables[table] {
		if existing["id"] == m["id"] {
			return &remote.Error{Status: http.StatusConflict, Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	f.tables[table] = append(f.tables[table], m)
	return roundTrip(m, row)
}

func (f *Fake) Update(ctx context.Context, table string, filters []remote.Filter, patch map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpUpdate); err != nil {
		return err
	}

	p := toMap(patch)
	written := 0
	for _, row := range f.tables[table] {
		if f.canSee(ctx, row) && matches(row, filters) {
			for k, v := range p {
				row[k] = v
			}
			written++
		}
	}
	if written == 0 {
		return remote.ErrNoRows
	}
	return nil
}

func (f *Fake) Delete(ctx context.Context, table string, filters []remote.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpDelete); err != nil {
		return err
	}

	kept := f.tables[table][:0]
	for _, row := range f.tables[table] {
		if !f.canSee(ctx, row) || !matches(row, filters) {
			kept = append(kept, row)
		}
	}
	removed := len(f.tables[table]) - len(kept)
	f.tables[table] = kept
	if removed == 0 {
		return remote.ErrNoRows
	}
	return nil
}

func (f *Fake) canSee(ctx context.Context, row map[string]interface{}) bool {
	allowed, restricted := f.visible[remote.AccessTokenFromContext(ctx)]
	return !restricted || allowed[fmt.Sprint(row["id"])]
}

func matches(row map[string]interface{}, filters []remote.Filter) bool {
	for _, flt := range filters {
		if fmt.Sprint(row[flt.Column]) != flt.Value {
			return false
		}
	}
	return true
}

func toMap(v interface{}) map[string]interface{} {
	m := make(map[string]interface{})
	if err := roundTrip(v, &m); err != nil {
		panic(err)
	}
	return m
}

func roundTrip(from, to interface{}) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}
