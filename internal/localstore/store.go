// Package localstore is the on-device SQLite store. It is the only source of
// truth for reads; every failure it reports is fatal to the caller.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/readbori/pulse-diary/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tables groups the per-entity accessors bound to one querier.
type tables struct {
	records  *Records
	reports  *Reports
	profiles *Singleton[model.UserProfile]
	settings *Singleton[model.UserSettings]
	streaks  *Singleton[model.StreakData]
}

func newTables(q querier) tables {
	return tables{
		records:  &Records{q: q},
		reports:  &Reports{q: q},
		profiles: &Singleton[model.UserProfile]{q: q, spec: profileSpec},
		settings: &Singleton[model.UserSettings]{q: q, spec: settingsSpec},
		streaks:  &Singleton[model.StreakData]{q: q, spec: streakSpec},
	}
}

func (t tables) Records() *Records { return t.records }
func (t tables) Reports() *Reports { return t.reports }
func (t tables) Profiles() *Singleton[model.UserProfile] { return t.profiles }
func (t tables) Settings() *Singleton[model.UserSettings] { return t.settings }
func (t tables) Streaks() *Singleton[model.StreakData] { return t.streaks }

// Store is the Local Store. Accessors outside InTx run each statement in its
// own implicit transaction.
type Store struct {
	tables
	db *sql.DB
}

// Open opens the database file at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	s, err := New(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and ensures the schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, storageErr("ensure schema", err)
	}
	return &Store{tables: newTables(db), db: db}, nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return storageErr("ping", s.db.PingContext(ctx))
}

// Tx exposes the same accessors as Store bound to one transaction.
type Tx struct {
	tables
}

// InTx runs fn inside a transaction. Every write made through tx commits
// together, or none does when fn returns an error or panics.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tables: newTables(sqlTx)}); err != nil {
		return err
	}
	return storageErr("commit", sqlTx.Commit())
}

// StorageError reports a failure of the underlying database. It matches
// model.ErrStorageUnavailable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == model.ErrStorageUnavailable }

// storageErr returns nil for nil, passes sentinel model errors through and
// wraps everything else with a stack.
func storageErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return model.ErrNotFound
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrStorageUnavailable):
		return err
	}
	return pkgerrors.WithStack(&StorageError{Op: op, Err: err})
}
