// Package journal is the application-facing write and read path. Every write
// lands in the Local Store first and is then handed to the push pipeline;
// reads never touch the network.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/readbori/pulse-diary/internal/identity"
	"github.com/readbori/pulse-diary/internal/localstore"
	"github.com/readbori/pulse-diary/internal/model"
	"github.com/readbori/pulse-diary/internal/syncer"
)

// Pusher replicates single rows in the background. *push.Pipeline implements it.
type Pusher interface {
	PushRecord(ctx context.Context, s model.Session, rec model.EmotionRecord)
	PushReport(ctx context.Context, s model.Session, rep model.WeeklyReport)
	PushProfile(ctx context.Context, s model.Session, p model.UserProfile)
	PushSettings(ctx context.Context, s model.Session, st model.UserSettings)
	PushStreak(ctx context.Context, s model.Session, st model.StreakData)
	DeleteRecord(ctx context.Context, s model.Session, id string)
	DeleteReport(ctx context.Context, s model.Session, id string)
}

// Reconciler runs a full sync pass. *syncer.Syncer implements it.
type Reconciler interface {
	Run(ctx context.Context, s model.Session) syncer.Result
}

// Service owns the journal operations of one device.
type Service struct {
	store *localstore.Store
	push  Pusher
	sync  Reconciler

	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock replaces time.Now. Streak days are taken in the clock's location.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator replaces the random UUID generator used for new rows.
func WithIDGenerator(fn func() string) Option { return func(s *Service) { s.newID = fn } }

// New builds a Service.
func New(store *localstore.Store, p Pusher, r Reconciler, opts ...Option) *Service {
	s := &Service{
		store: store,
		push:  p,
		sync:  r,
		log:   zerolog.Nop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// owner resolves the identity rows are written under.
func owner(sess model.Session) string {
	if sess.OwnerID == "" {
		return model.AnonymousOwner
	}
	return sess.OwnerID
}

// Draft is a freshly captured entry.
type Draft struct {
	Transcript string
	Duration   float64
	Language   string
	Audio      []byte
	Emotions   *model.EmotionAnalysis
}

// CreateRecord stores a new record for the session owner and queues its push.
func (s *Service) CreateRecord(ctx context.Context, sess model.Session, d Draft) (*model.EmotionRecord, error) {
	rec := model.EmotionRecord{
		ID:         s.newID(),
		OwnerID:    owner(sess),
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
		Transcript: d.Transcript,
		Duration:   d.Duration,
		Language:   d.Language,
		Emotions:   d.Emotions,
		Audio:      d.Audio,
		SyncState:  model.SyncLocal,
	}
	if err := s.store.Records().Put(ctx, &rec); err != nil {
		return nil, err
	}
	s.push.PushRecord(ctx, sess, rec)
	return &rec, nil
}

// AttachAnalysis sets the emotion analysis of an existing record.
func (s *Service) AttachAnalysis(ctx context.Context, sess model.Session, id string, a model.EmotionAnalysis) (*model.EmotionRecord, error) {
	rec, err := s.ownedRecord(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	rec.Emotions = &a
	rec.SyncState = model.SyncLocal
	if err := s.store.Records().Put(ctx, rec); err != nil {
		return nil, err
	}
	s.push.PushRecord(ctx, sess, *rec)
	return rec, nil
}

// UpdateRecord replaces a record of the session owner.
func (s *Service) UpdateRecord(ctx context.Context, sess model.Session, rec model.EmotionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is required", model.ErrValidation)
	}
	if _, err := s.ownedRecord(ctx, sess, rec.ID); err != nil {
		return err
	}
	rec.OwnerID = owner(sess)
	rec.SyncState = model.SyncLocal
	if err := s.store.Records().Put(ctx, &rec); err != nil {
		return err
	}
	s.push.PushRecord(ctx, sess, rec)
	return nil
}

// DeleteRecord removes a record locally and remotely.
func (s *Service) DeleteRecord(ctx context.Context, sess model.Session, id string) error {
	if _, err := s.ownedRecord(ctx, sess, id); err != nil {
		return err
	}
	if err := s.store.Records().Delete(ctx, id); err != nil {
		return err
	}
	s.push.DeleteRecord(ctx, sess, id)
	return nil
}

func (s *Service) ownedRecord(ctx context.Context, sess model.Session, id string) (*model.EmotionRecord, error) {
	rec, err := s.store.Records().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != owner(sess) {
		return nil, model.ErrNotFound
	}
	return rec, nil
}

// SaveReport stores a report, assigning an id and creation time when missing.
func (s *Service) SaveReport(ctx context.Context, sess model.Session, rep model.WeeklyReport) (*model.WeeklyReport, error) {
	if rep.ID == "" {
		rep.ID = s.newID()
	}
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	}
	if rep.AIModel == "" {
		rep.AIModel = model.DefaultAIModel
	}
	if rep.EmotionSummary == nil {
		rep.EmotionSummary = map[model.EmotionType]float64{}
	}
	rep.OwnerID = owner(sess)
	if err := s.store.Reports().Put(ctx, &rep); err != nil {
		return nil, err
	}
	s.push.PushReport(ctx, sess, rep)
	return &rep, nil
}

// DeleteReport removes a report locally and remotely.
func (s *Service) DeleteReport(ctx context.Context, sess model.Session, id string) error {
	rep, err := s.store.Reports().Get(ctx, id)
	if err != nil {
		return err
	}
	if rep.OwnerID != owner(sess) {
		return model.ErrNotFound
	}
	if err := s.store.Reports().Delete(ctx, id); err != nil {
		return err
	}
	s.push.DeleteReport(ctx, sess, id)
	return nil
}

// SaveProfile upserts the owner's profile. CreatedAt is kept from the stored
// row when the caller leaves it zero; UpdatedAt is always now.
func (s *Service) SaveProfile(ctx context.Context, sess model.Session, p model.UserProfile) (*model.UserProfile, error) {
	p.OwnerID = owner(sess)
	now := s.now().UTC().Truncate(time.Millisecond)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
		existing, err := s.store.Profiles().Get(ctx, p.OwnerID)
		switch {
		case err == nil:
			p.CreatedAt = existing.CreatedAt
		case !errors.Is(err, model.ErrNotFound):
			return nil, err
		}
	}
	p.UpdatedAt = now
	if err := s.store.Profiles().Put(ctx, &p); err != nil {
		return nil, err
	}
	s.push.PushProfile(ctx, sess, p)
	return &p, nil
}

// SaveSettings upserts the owner's settings.
func (s *Service) SaveSettings(ctx context.Context, sess model.Session, st model.UserSettings) error {
	st.OwnerID = owner(sess)
	if err := s.store.Settings().Put(ctx, &st); err != nil {
		return err
	}
	s.push.PushSettings(ctx, sess, st)
	return nil
}

// RecordDay advances the owner's streak for today. The streak is pushed only
// when it changed.
func (s *Service) RecordDay(ctx context.Context, sess model.Session) (*model.StreakData, error) {
	id := owner(sess)
	today := s.now()
	var (
		streak  model.StreakData
		changed bool
	)
	err := s.store.InTx(ctx, func(tx *localstore.Tx) error {
		cur, err := tx.Streaks().Get(ctx, id)
		switch {
		case errors.Is(err, model.ErrNotFound):
			streak, changed = model.NewStreak(id, today), true
		case err != nil:
			return err
		default:
			streak = *cur
			changed = streak.RecordDay(today)
		}
		if !changed {
			return nil
		}
		return tx.Streaks().Put(ctx, &streak)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.push.PushStreak(ctx, sess, streak)
	}
	return &streak, nil
}

// Records lists every record of owner, newest first.
func (s *Service) Records(ctx context.Context, owner string) ([]model.EmotionRecord, error) {
	return s.store.Records().ListByOwner(ctx, owner)
}

// RecordsInRange lists the records of owner created within [from, to].
func (s *Service) RecordsInRange(ctx context.Context, owner string, from, to time.Time) ([]model.EmotionRecord, error) {
	return s.store.Records().ListByOwnerInRange(ctx, owner, from, to)
}

// WeekRecords lists the records of owner since the start of the current week.
func (s *Service) WeekRecords(ctx context.Context, owner string) ([]model.EmotionRecord, error) {
	now := s.now()
	return s.store.Records().ListByOwnerInRange(ctx, owner, WeekStart(now), now)
}

// WeekStart returns midnight of the Sunday on or before t, in t's location.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}

// Reports lists every report of owner, latest week first.
func (s *Service) Reports(ctx context.Context, owner string) ([]model.WeeklyReport, error) {
	return s.store.Reports().ListByOwner(ctx, owner)
}

// Profile returns the owner's profile or model.ErrNotFound.
func (s *Service) Profile(ctx context.Context, owner string) (*model.UserProfile, error) {
	return s.store.Profiles().Get(ctx, owner)
}

// Settings returns the owner's settings, or the defaults when none are stored.
func (s *Service) Settings(ctx context.Context, owner string) (*model.UserSettings, error) {
	st, err := s.store.Settings().Get(ctx, owner)
	if errors.Is(err, model.ErrNotFound) {
		def := model.DefaultSettings(owner)
		return &def, nil
	}
	return st, err
}

// Streak returns the owner's streak or model.ErrNotFound.
func (s *Service) Streak(ctx context.Context, owner string) (*model.StreakData, error) {
	return s.store.Streaks().Get(ctx, owner)
}

// SignInResult reports what SignIn did.
type SignInResult struct {
	Migration      identity.MigrationResult
	ProfileCreated bool
	Sync           syncer.Result
}

// SignIn moves the data of previousOwner to the session owner, makes sure a
// profile exists and reconciles with the remote store. The profile is not
// pushed on its own: the sync pulls first, so a remote profile wins over the
// bootstrap one.
func (s *Service) SignIn(ctx context.Context, previousOwner string, sess model.Session, hint identity.Hint) (SignInResult, error) {
	var res SignInResult
	if model.IsAnonymous(sess.OwnerID) {
		return res, fmt.Errorf("%w: sign-in requires an authenticated owner", model.ErrValidation)
	}
	log := s.log.With().Str("owner", sess.OwnerID).Logger()

	if previousOwner != "" && previousOwner != sess.OwnerID {
		m, err := identity.Migrate(ctx, s.store, previousOwner, sess.OwnerID, s.now().UTC().Truncate(time.Millisecond))
		if err != nil {
			return res, err
		}
		res.Migration = m
		if !m.Empty() {
			log.Info().
				Str("from", previousOwner).
				Int64("records", m.Records).
				Int64("reports", m.Reports).
				Msg("migrated local data")
		}
	}

	_, created, err := identity.EnsureProfile(ctx, s.store, sess.OwnerID, hint, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return res, err
	}
	res.ProfileCreated = created

	res.Sync = s.sync.Run(ctx, sess)
	return res, nil
}
