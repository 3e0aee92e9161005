// Package memstore is an in-memory remote.Store. Hooks let tests observe call
// order, inject failures and interleave work with in-flight calls.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/wire"
)

// Operation names recorded in Call.Op.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpList   = "list"
	OpGet    = "get"
)

// Call describes one remote operation.
type Call struct {
	Kind remote.Kind
	Op   string
	Key  string // row id, or owner for list/get and singleton upserts
}

// Hooks run outside the store lock. Before may fail the call by returning an
// error; After runs once the call has read or written its data.
type Hooks struct {
	Before func(ctx context.Context, c Call) error
	After  func(ctx context.Context, c Call)
}

// Store is a concurrency-safe remote.Store held in memory.
type Store struct {
	RecordRows   *Table[wire.RecordRow]
	ReportRows   *Table[wire.ReportRow]
	ProfileRows  *Table[wire.ProfileRow]
	SettingsRows *Table[wire.SettingsRow]
	StreakRows   *Table[wire.StreakRow]

	mu    sync.Mutex
	hooks Hooks
	calls []Call
}

var _ remote.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	s := &Store{}
	s.RecordRows = newTable(s, remote.KindRecord,
		func(r *wire.RecordRow) string { return r.ID },
		func(r *wire.RecordRow) string { return r.UserID })
	s.ReportRows = newTable(s, remote.KindReport,
		func(r *wire.ReportRow) string { return r.ID },
		func(r *wire.ReportRow) string { return r.UserID })
	s.ProfileRows = newTable(s, remote.KindProfile,
		func(r *wire.ProfileRow) string { return r.UserID },
		func(r *wire.ProfileRow) string { return r.UserID })
	s.SettingsRows = newTable(s, remote.KindSettings,
		func(r *wire.SettingsRow) string { return r.UserID },
		func(r *wire.SettingsRow) string { return r.UserID })
	s.StreakRows = newTable(s, remote.KindStreak,
		func(r *wire.StreakRow) string { return r.UserID },
		func(r *wire.StreakRow) string { return r.UserID })
	return s
}

func (s *Store) Records() remote.Rows[wire.RecordRow] { return s.RecordRows }
func (s *Store) Reports() remote.Rows[wire.ReportRow] { return s.ReportRows }
func (s *Store) Profiles() remote.Singleton[wire.ProfileRow] { return s.ProfileRows }
func (s *Store) Settings() remote.Singleton[wire.SettingsRow] { return s.SettingsRows }
func (s *Store) Streaks() remote.Singleton[wire.StreakRow] { return s.StreakRows }

// SetHooks replaces the hooks.
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Calls returns every call made so far, in the order they started.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Store) before(ctx context.Context, c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	h := s.hooks.Before
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if h != nil {
		return h(ctx, c)
	}
	return nil
}

func (s *Store) after(ctx context.Context, c Call) {
	s.mu.Lock()
	h := s.hooks.After
	s.mu.Unlock()
	if h != nil {
		h(ctx, c)
	}
}

// Table holds the rows of one kind.
type Table[T any] struct {
	s     *Store
	kind  remote.Kind
	key   func(*T) string
	owner func(*T) string

	mu   sync.RWMutex
	rows map[string]T
}

func newTable[T any](s *Store, kind remote.Kind, key, owner func(*T) string) *Table[T] {
	return &Table[T]{s: s, kind: kind, key: key, owner: owner, rows: map[string]T{}}
}

// Upsert implements remote.Rows and remote.Singleton.
func (t *Table[T]) Upsert(ctx context.Context, row *T) error {
	c := Call{Kind: t.kind, Op: OpUpsert, Key: t.key(row)}
	if err := t.s.before(ctx, c); err != nil {
		return err
	}
	t.Put(*row)
	t.s.after(ctx, c)
	return nil
}

// Delete implements remote.Rows.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	c := Call{Kind: t.kind, Op: OpDelete, Key: id}
	if err := t.s.before(ctx, c); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.rows, id)
	t.mu.Unlock()
	t.s.after(ctx, c)
	return nil
}

// ListByOwner implements remote.Rows. Rows are sorted by key.
func (t *Table[T]) ListByOwner(ctx context.Context, owner string) ([]T, error) {
	c := Call{Kind: t.kind, Op: OpList, Key: owner}
	if err := t.s.before(ctx, c); err != nil {
		return nil, err
	}
	t.mu.RLock()
	keys := make([]string, 0, len(t.rows))
	for k, row := range t.rows {
		if t.owner(&row) == owner {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.rows[k])
	}
	t.mu.RUnlock()
	t.s.after(ctx, c)
	return out, nil
}

// Get implements remote.Singleton.
func (t *Table[T]) Get(ctx context.Context, owner string) (*T, error) {
	c := Call{Kind: t.kind, Op: OpGet, Key: owner}
	if err := t.s.before(ctx, c); err != nil {
		return nil, err
	}
	row, ok := t.Lookup(owner)
	t.s.after(ctx, c)
	if !ok {
		return nil, remote.ErrNotFound
	}
	return &row, nil
}

// Put stores row directly, bypassing hooks and the call log.
func (t *Table[T]) Put(row T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[t.key(&row)] = row
}

// Lookup returns the row stored under key.
func (t *Table[T]) Lookup(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	return row, ok
}

// Len returns the number of stored rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
