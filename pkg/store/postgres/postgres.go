// Package postgres implements [github.com/revstore/revstore/pkg/store.Store]
// on PostgreSQL using GORM.
//
// # Schema
//
// The change log is the only table. Every committed event is one row of
// revstore_events keyed by (repository, model, revision) and carrying the
// CBOR encoding of the event. Model state is never stored; it is rebuilt by
// replaying the log and kept in a per-process cache that only reads the rows
// appended since the last refresh.
//
// # Concurrency
//
// Several processes may write to the same repository. A commit inserts the
// row for revision current+1; when another writer took that revision first,
// the unique key rejects the insert, the store refreshes its cache and
// evaluates the change again. Callers only ever see the final result, so the
// retry loop is invisible to them. Within one process commits to the same
// model are serialized by a per-model lock.
//
// # Usage
//
//	s, err := postgres.New(dsn, "repo")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if err := s.Migrate(ctx); err != nil {
//		return err
//	}
package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/revstore/revstore/internal/codec"
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/executor"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultMaxAttempts bounds how often a commit is retried after losing a
// revision to another writer.
const DefaultMaxAttempts = 8

// EventRecord is one row of the change log.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Repository string    `gorm:"not null;uniqueIndex:idx_revstore_events_revision,priority:1"`
	Model      string    `gorm:"not null;uniqueIndex:idx_revstore_events_revision,priority:2"`
	Revision   int64     `gorm:"not null;uniqueIndex:idx_revstore_events_revision,priority:3"`
	Actor      string    `gorm:"not null"`
	Kind       string    `gorm:"not null"`
	Payload    []byte    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (EventRecord) TableName() string {
	return "revstore_events"
}

// cachedModel is the replayed state of one model as of revision current.
type cachedModel struct {
	mu      sync.Mutex
	state   *models.ModelState
	current int64
}

type Store struct {
	db          *gorm.DB
	repo        models.Address
	base        int64
	maxAttempts int
	codec       codec.Codec
	logger      logger.Logger

	mu    sync.Mutex
	cache map[models.ID]*cachedModel
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithBaseRevision sets the revision of the first event of every model log.
func WithBaseRevision(rev int64) Option {
	return func(s *Store) {
		s.base = rev
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		s.maxAttempts = max(n, 1)
	}
}

// WithCodec replaces the CBOR payload encoding.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// New connects to PostgreSQL. Call Migrate before the first use of a fresh
// database.
func New(dsn string, repository models.ID, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewFromDB(db, repository, opts...), nil
}

// NewFromDB wraps an open connection. The connection must be configured with
// TranslateError so that revision collisions are recognized.
func NewFromDB(db *gorm.DB, repository models.ID, opts ...Option) *Store {
	s := &Store{
		db:          db,
		repo:        models.RepositoryAddress(repository),
		maxAttempts: DefaultMaxAttempts,
		codec:       models.CborCodec{},
		logger:      logger.Nop(),
		cache:       make(map[models.ID]*cachedModel),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) getDB() *gorm.DB {
	return s.db
}

// Migrate creates the change log table and its indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.getDB().WithContext(ctx).AutoMigrate(&EventRecord{})
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) RepositoryAddress() models.Address {
	return s.repo
}

func (s *Store) cached(id models.ID) *cachedModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[id]
	if !ok {
		c = &cachedModel{current: s.base - 1}
		s.cache[id] = c
	}
	return c
}

// refresh replays the rows appended after c.current. c.mu must be held.
func (s *Store) refresh(ctx context.Context, db *gorm.DB, model models.Address, c *cachedModel) error {
	var rows []EventRecord
	err := db.WithContext(ctx).
		Where("repository = ? AND model = ? AND revision > ?", string(model.Repository), string(model.Model), c.current).
		Order("revision").
		Find(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		ev, err := s.decode(row)
		if err != nil {
			return err
		}
		if ev.Revision != c.current+1 {
			return fmt.Errorf("%w: %v jumps from revision %d to %d", constants.ErrRevisionGap, model, c.current, ev.Revision)
		}
		next, err := executor.ApplyEvent(c.state, ev)
		if err != nil {
			return fmt.Errorf("replaying %v revision %d: %w", model, ev.Revision, err)
		}
		c.state = next
		c.current = ev.Revision
	}
	return nil
}

func (s *Store) encode(model models.Address, ev change.Event) (EventRecord, error) {
	payload, err := s.codec.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		Repository: string(model.Repository),
		Model:      string(model.Model),
		Revision:   ev.Revision,
		Actor:      string(ev.Actor),
		Kind:       ev.Kind.String(),
		Payload:    payload,
	}, nil
}

func (s *Store) decode(row EventRecord) (change.Event, error) {
	var ev change.Event
	if err := s.codec.Unmarshal(row.Payload, &ev); err != nil {
		return change.Event{}, fmt.Errorf("decoding %s/%s revision %d: %w", row.Repository, row.Model, row.Revision, err)
	}
	return ev, nil
}

var errRevisionTaken = errors.New("revision taken by another writer")

func (s *Store) ExecuteCommand(ctx context.Context, actor models.ID, c change.Change) (int64, error) {
	model, err := store.ChangeModel(s.repo, c)
	if err != nil {
		return change.Failed, err
	}
	cm := s.cached(model.Model)
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		r, err := s.tryExecute(ctx, actor, model, cm, c)
		if !errors.Is(err, errRevisionTaken) {
			return r, err
		}
		s.logger.Debug("revision taken, retrying", "model", model, "attempt", attempt)
	}
	return change.Failed, fmt.Errorf("%w: %v after %d attempts", constants.ErrContention, model, s.maxAttempts)
}

func (s *Store) tryExecute(ctx context.Context, actor models.ID, model models.Address, cm *cachedModel, c change.Change) (int64, error) {
	if err := s.refresh(ctx, s.getDB(), model, cm); err != nil {
		return change.Failed, err
	}

	out, err := executor.Evaluate(actor, model, cm.state, cm.current, c)
	if err != nil {
		return change.Failed, err
	}
	if !change.IsSuccess(out.Result) {
		s.logger.Debug("change rejected", "model", model, "actor", actor, "result", change.ResultString(out.Result))
		return out.Result, nil
	}

	row, err := s.encode(model, out.Event)
	if err != nil {
		return change.Failed, err
	}
	err = s.getDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return change.Failed, errRevisionTaken
	}
	if err != nil {
		return change.Failed, err
	}

	cm.state = out.State
	cm.current = out.Result
	s.logger.Info("change committed", "model", model, "actor", actor, "revision", out.Result)
	return out.Result, nil
}

func (s *Store) GetEvents(ctx context.Context, model models.Address, begin, end int64) ([]change.Event, error) {
	if err := store.CheckAddress(s.repo, model, models.TypeModel); err != nil {
		return nil, err
	}
	if begin >= end {
		return nil, nil
	}
	var rows []EventRecord
	err := s.getDB().WithContext(ctx).
		Where("repository = ? AND model = ? AND revision >= ? AND revision < ?", string(model.Repository), string(model.Model), begin, end).
		Order("revision").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]change.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := s.decode(row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Store) snapshot(ctx context.Context, model models.Address) (*models.ModelState, error) {
	cm := s.cached(model.Model)
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if err := s.refresh(ctx, s.getDB(), model, cm); err != nil {
		return nil, err
	}
	return cm.state.Clone(), nil
}

func (s *Store) GetModelSnapshot(ctx context.Context, req store.GetWithAddressRequest) (*models.ModelState, error) {
	if err := store.CheckAddress(s.repo, req.Address, models.TypeModel); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, req.Address)
}

func (s *Store) GetObjectSnapshot(ctx context.Context, req store.GetWithAddressRequest) (*models.ObjectState, error) {
	if err := store.CheckAddress(s.repo, req.Address, models.TypeObject); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, req.Address.ModelAddress())
	if err != nil || snap == nil {
		return nil, err
	}
	return snap.Object(req.Address.Object), nil
}

func (s *Store) HasModel(ctx context.Context, id models.ID) (bool, error) {
	snap, err := s.snapshot(ctx, s.repo.Child(id))
	return snap != nil, err
}

func (s *Store) ModelIDs(ctx context.Context) ([]models.ID, error) {
	var names []string
	err := s.getDB().WithContext(ctx).
		Model(&EventRecord{}).
		Where("repository = ?", string(s.repo.Repository)).
		Distinct("model").
		Pluck("model", &names).Error
	if err != nil {
		return nil, err
	}
	var ids []models.ID
	for _, name := range names {
		ok, err := s.HasModel(ctx, models.ID(name))
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, models.ID(name))
		}
	}
	slices.Sort(ids)
	return ids, nil
}
