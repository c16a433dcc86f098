// Package memstore implements store.Store in memory.
//
// Each model is an executor.Model with its own lock, so commits to one model
// never wait for another. Model logs survive the removal of their model: a
// model that is removed and added again continues its revision sequence.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/changelog"
	"github.com/revstore/revstore/pkg/executor"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
)

type Store struct {
	repo     models.Address
	base     int64
	executor *executor.Executor
	logger   logger.Logger

	mu     sync.RWMutex
	models map[models.ID]*executor.Model
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

func New(repository models.ID, opts ...Option) *Store {
	s := &Store{
		repo:   models.RepositoryAddress(repository),
		logger: logger.Nop(),
		models: make(map[models.ID]*executor.Model),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = executor.New(s.logger)
	return s
}

func (s *Store) RepositoryAddress() models.Address {
	return s.repo
}

func (s *Store) model(id models.ID) *executor.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models[id]
}

func (s *Store) modelOrCreate(addr models.Address) *executor.Model {
	if m := s.model(addr.Model); m != nil {
		return m
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.models[addr.Model]; ok {
		return m
	}
	m := executor.NewModel(addr, s.base)
	s.models[addr.Model] = m
	return m
}

func (s *Store) ExecuteCommand(ctx context.Context, actor models.ID, c change.Change) (int64, error) {
	addr, err := store.ChangeModel(s.repo, c)
	if err != nil {
		return change.Failed, err
	}
	return s.executor.Execute(ctx, actor, s.modelOrCreate(addr), c)
}

func (s *Store) GetEvents(ctx context.Context, model models.Address, begin, end int64) ([]change.Event, error) {
	if err := store.CheckAddress(s.repo, model, models.TypeModel); err != nil {
		return nil, err
	}
	m := s.model(model.Model)
	if m == nil {
		return nil, nil
	}
	return m.Log.EventsBetween(begin, end), nil
}

// Log returns the change log of a model, nil if nothing was ever executed
// against it.
func (s *Store) Log(id models.ID) changelog.ChangeLog {
	m := s.model(id)
	if m == nil {
		return nil
	}
	return m.Log
}

func (s *Store) GetModelSnapshot(ctx context.Context, req store.GetWithAddressRequest) (*models.ModelState, error) {
	if err := store.CheckAddress(s.repo, req.Address, models.TypeModel); err != nil {
		return nil, err
	}
	m := s.model(req.Address.Model)
	if m == nil {
		return nil, nil
	}
	return m.Snapshot(), nil
}

func (s *Store) GetObjectSnapshot(ctx context.Context, req store.GetWithAddressRequest) (*models.ObjectState, error) {
	if err := store.CheckAddress(s.repo, req.Address, models.TypeObject); err != nil {
		return nil, err
	}
	m := s.model(req.Address.Model)
	if m == nil {
		return nil, nil
	}
	snap := m.Snapshot()
	if snap == nil {
		return nil, nil
	}
	return snap.Object(req.Address.Object), nil
}

func (s *Store) HasModel(ctx context.Context, id models.ID) (bool, error) {
	m := s.model(id)
	return m != nil && m.Exists(), nil
}

func (s *Store) ModelIDs(ctx context.Context) ([]models.ID, error) {
	s.mu.RLock()
	all := slices.Collect(maps.Values(s.models))
	s.mu.RUnlock()

	var ids []models.ID
	for _, m := range all {
		if m.Exists() {
			ids = append(ids, m.Address.Model)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
