package revstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/revstore/revstore/pkg/arm"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/remote"
	"github.com/revstore/revstore/pkg/store"
	"github.com/revstore/revstore/pkg/store/memstore"
	"github.com/revstore/revstore/pkg/store/postgres"
	"github.com/revstore/revstore/pkg/synchronizer"
)

// Repository is an opened repository: its store, its access rights and the
// logger they share.
type Repository struct {
	cfg    *Config
	store  store.Store
	access *arm.Manager
	logger logger.Logger

	closers []func() error
}

// Open builds the store selected by cfg. With a PostgreSQL DSN the schema is
// migrated before Open returns.
func Open(ctx context.Context, cfg *Config) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Repository{cfg: cfg, access: arm.NewManager(nil), logger: cfg.Logger}

	if r.logger == nil {
		build := logger.New()
		if cfg.LogPath != "" {
			build = build.FromPath(cfg.LogPath)
		}
		logData, err := build.Make()
		if err != nil {
			return nil, fmt.Errorf("opening log: %w", err)
		}
		r.logger = logData.Handler()
		r.closers = append(r.closers, logData.Close)
	}

	if cfg.PostgresDSN == "" {
		r.store = memstore.New(cfg.Repository,
			memstore.WithLogger(r.logger),
			memstore.WithBaseRevision(cfg.BaseRevision))
	} else {
		pg, err := postgres.New(cfg.PostgresDSN, cfg.Repository,
			postgres.WithLogger(r.logger),
			postgres.WithBaseRevision(cfg.BaseRevision))
		if err != nil {
			r.Close()
			return nil, err
		}
		r.closers = append(r.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("migrating: %w", err)
		}
		r.store = pg
	}

	repoAddr := r.store.RepositoryAddress()
	for _, admin := range cfg.Admins {
		r.access.Grant(admin, repoAddr, arm.Read)
		r.access.Grant(admin, repoAddr, arm.Write)
	}
	r.logger.Info("repository opened", "repository", cfg.Repository, "postgres", cfg.PostgresDSN != "")
	return r, nil
}

func (r *Repository) Address() models.Address {
	return r.store.RepositoryAddress()
}

// Store is the unrestricted store.
func (r *Repository) Store() store.Store {
	return r.store
}

// Access holds the rights AsActor and the access controlled handler apply.
func (r *Repository) Access() *arm.Manager {
	return r.access
}

func (r *Repository) Logger() logger.Logger {
	return r.logger
}

// AsActor returns the store as actor may see and change it.
func (r *Repository) AsActor(actor models.ID) *arm.Store {
	return arm.NewStore(r.store, actor, r.access)
}

// Replica starts a local replica of model for actor, synchronized against
// AsActor(actor). Call Synchronize on the result to load the model.
func (r *Repository) Replica(model models.Address, actor models.ID) (*synchronizer.Synchronizer, error) {
	if err := store.CheckAddress(r.Address(), model, models.TypeModel); err != nil {
		return nil, err
	}
	replica, err := synchronizer.NewReplica(model, actor)
	if err != nil {
		return nil, err
	}
	upstream := synchronizer.FromStore(r.AsActor(actor))
	return synchronizer.New(replica, upstream, synchronizer.WithLogger(r.logger)), nil
}

// Handler serves the repository over WebSocket. Access rights apply when the
// config enables access control.
func (r *Repository) Handler() http.Handler {
	opts := []remote.ServerOption{remote.WithServerLogger(r.logger)}
	if r.cfg.AccessControl {
		opts = append(opts, remote.WithAuthorization(r.access))
	}
	return remote.NewServer(r.store, opts...)
}

// Close releases the database connection and the log file.
func (r *Repository) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
