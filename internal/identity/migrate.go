// Package identity moves local data between owner identities and bootstraps
// the profile of a freshly signed-in user.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/readbori/pulse-diary/internal/localstore"
	"github.com/readbori/pulse-diary/internal/model"
)

// MigrationResult counts the rows that changed owner.
type MigrationResult struct {
	Records  int64
	Reports  int64
	Profile  bool
	Settings bool
	Streak   bool
}

// Empty reports whether nothing was moved.
func (r MigrationResult) Empty() bool {
	return r.Records == 0 && r.Reports == 0 && !r.Profile && !r.Settings && !r.Streak
}

// Migrate rewrites the owner of every local row owned by from to to, in a
// single transaction. Records are marked local again so the next sync pushes
// them under the new owner. Singleton rows are re-inserted under the new key;
// a row already held by to is replaced. Migrate(a, a) does nothing.
func Migrate(ctx context.Context, store *localstore.Store, from, to string, now time.Time) (MigrationResult, error) {
	var res MigrationResult
	if from == "" || to == "" {
		return res, model.ErrValidation
	}
	if from == to {
		return res, nil
	}
	err := store.InTx(ctx, func(tx *localstore.Tx) error {
		var err error
		if res.Records, err = tx.Records().Reassign(ctx, from, to); err != nil {
			return err
		}
		if res.Reports, err = tx.Reports().Reassign(ctx, from, to); err != nil {
			return err
		}
		if res.Profile, err = tx.Profiles().Rekey(ctx, from, to, now); err != nil {
			return err
		}
		if res.Settings, err = tx.Settings().Rekey(ctx, from, to, now); err != nil {
			return err
		}
		res.Streak, err = tx.Streaks().Rekey(ctx, from, to, now)
		return err
	})
	if err != nil {
		return MigrationResult{}, err
	}
	return res, nil
}

// Hint carries what the identity provider knows about a user.
type Hint struct {
	DisplayName string
	Email       string
}

// Name picks a profile name: the display name, else the local part of the
// e-mail address, else "User".
func (h Hint) Name() string {
	if n := strings.TrimSpace(h.DisplayName); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(h.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// EnsureProfile returns the owner's profile, creating a minimal one from hint
// when none exists. created reports whether a row was written.
func EnsureProfile(ctx context.Context, store *localstore.Store, owner string, hint Hint, now time.Time) (p *model.UserProfile, created bool, err error) {
	if owner == "" {
		return nil, false, model.ErrValidation
	}
	p, err = store.Profiles().Get(ctx, owner)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}
	p = &model.UserProfile{OwnerID: owner, Name: hint.Name(), CreatedAt: now, UpdatedAt: now}
	if err := store.Profiles().Put(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}
