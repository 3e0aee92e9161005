package localstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/readbori/pulse-diary/internal/model"
)

// singletonSpec describes a table keyed by owner_id alone.
type singletonSpec[T any] struct {
	name     string
	owner    func(*T) string
	setOwner func(*T, string)
	touch    func(*T, time.Time) // nil when the entity has no update timestamp
	values   func(*T) ([]any, error)
	scan     func(scanner) (*T, error)

	selectSQL string
	upsertSQL string
	deleteSQL string
}

// newSingletonSpec derives the statements for table from its non-key columns.
func newSingletonSpec[T any](table string, columns []string, s singletonSpec[T]) *singletonSpec[T] {
	all := "owner_id, " + strings.Join(columns, ", ")
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)+1), ",")
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}

	s.name = table
	s.selectSQL = fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = ?`, all, table)
	s.upsertSQL = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(owner_id) DO UPDATE SET %s`,
		table, all, placeholders, strings.Join(sets, ", "))
	s.deleteSQL = fmt.Sprintf(`DELETE FROM %s WHERE owner_id = ?`, table)
	return &s
}

// Singleton is a table holding at most one row per owner. Writes are always
// upserts; changing the owner is an explicit Rekey.
type Singleton[T any] struct {
	q    querier
	spec *singletonSpec[T]
}

// Get returns the row of owner or model.ErrNotFound.
func (s *Singleton[T]) Get(ctx context.Context, owner string) (*T, error) {
	v, err := s.spec.scan(s.q.QueryRowContext(ctx, s.spec.selectSQL, owner))
	if err != nil {
		return nil, storageErr("get "+s.spec.name, err)
	}
	return v, nil
}

// Put inserts or replaces the row of v's owner.
func (s *Singleton[T]) Put(ctx context.Context, v *T) error {
	owner := s.spec.owner(v)
	if owner == "" {
		return model.ErrValidation
	}
	vals, err := s.spec.values(v)
	if err != nil {
		return storageErr("put "+s.spec.name, err)
	}
	_, err = s.q.ExecContext(ctx, s.spec.upsertSQL, append([]any{owner}, vals...)...)
	return storageErr("put "+s.spec.name, err)
}

// Delete removes the row of owner if present.
func (s *Singleton[T]) Delete(ctx context.Context, owner string) error {
	_, err := s.q.ExecContext(ctx, s.spec.deleteSQL, owner)
	return storageErr("delete "+s.spec.name, err)
}

// Rekey moves the row of from to to by deleting it and inserting an
// equivalent row under the new key; an existing row under to is replaced.
// It reports whether a row was moved. Call it inside InTx so the delete and
// insert commit together.
func (s *Singleton[T]) Rekey(ctx context.Context, from, to string, now time.Time) (bool, error) {
	v, err := s.Get(ctx, from)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.Delete(ctx, from); err != nil {
		return false, err
	}
	s.spec.setOwner(v, to)
	if s.spec.touch != nil {
		s.spec.touch(v, now)
	}
	if err := s.Put(ctx, v); err != nil {
		return false, err
	}
	return true, nil
}
