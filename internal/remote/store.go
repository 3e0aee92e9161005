// Package remote defines the relational backend the Local Store replicates to.
// Implementations live under internal/remote/<driver>/.
package remote

import (
	"context"
	"errors"

	"github.com/readbori/pulse-diary/internal/wire"
)

// ErrNotFound is returned by singleton Get when the owner has no row.
var ErrNotFound = errors.New("remote: not found")

// Store exposes one collection per entity kind.
type Store interface {
	Records() Rows[wire.RecordRow]
	Reports() Rows[wire.ReportRow]
	Profiles() Singleton[wire.ProfileRow]
	Settings() Singleton[wire.SettingsRow]
	Streaks() Singleton[wire.StreakRow]
}

// Rows is a collection keyed by id.
type Rows[T any] interface {
	// Upsert inserts or replaces the row with the same id.
	Upsert(ctx context.Context, row *T) error
	// Delete removes the row with id; a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// ListByOwner returns every row of owner in no particular order.
	ListByOwner(ctx context.Context, owner string) ([]T, error)
}

// Singleton is a collection keyed by owner.
type Singleton[T any] interface {
	// Upsert inserts or replaces the row of the owner named in row.
	Upsert(ctx context.Context, row *T) error
	// Get returns the owner's row or ErrNotFound.
	Get(ctx context.Context, owner string) (*T, error)
}

// Kind names an entity kind for logs and metrics.
type Kind string

const (
	KindRecord   Kind = "record"
	KindReport   Kind = "report"
	KindProfile  Kind = "profile"
	KindSettings Kind = "settings"
	KindStreak   Kind = "streak"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindRecord, KindReport, KindProfile, KindSettings, KindStreak}
