// Package store defines the persistence contract of a revstore repository.
//
// A [Store] executes changes and serves the change log and snapshots of the
// models of one repository. Implementations:
//
//   - [github.com/revstore/revstore/pkg/store/memstore.Store] keeps everything in memory
//   - [github.com/revstore/revstore/pkg/store/postgres.Store] stores the change log in PostgreSQL through GORM
//   - [github.com/revstore/revstore/pkg/arm.Store] filters another Store for one actor
//
// # Consistency
//
// Every implementation commits at most one change per model at a time.
// Changes to different models proceed independently. A change either commits
// completely, consuming exactly one revision of its model's log, or is
// rejected without consuming one. Rejections are results (change.Failed,
// change.NoChange), not errors; errors mean malformed input, denied access or
// a backend failure.
//
// # Revisions
//
// Range queries use half-open intervals. Pass changelog.ToCurrent as end to
// read through the current revision.
package store

import (
	"context"
	"fmt"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

// Store is the persistence SPI consumed by the executor, the access layer and
// the transport.
type Store interface {
	// RepositoryAddress is the address of the repository the store serves.
	RepositoryAddress() models.Address

	// ExecuteCommand executes a command or transaction as actor and returns
	// the new revision, change.NoChange or change.Failed.
	ExecuteCommand(ctx context.Context, actor models.ID, c change.Change) (int64, error)

	// GetEvents returns the events of a model with begin <= revision < end.
	// Unknown models have no events.
	GetEvents(ctx context.Context, model models.Address, begin, end int64) ([]change.Event, error)

	// GetModelSnapshot returns a copy of a model, or nil if it does not exist.
	GetModelSnapshot(ctx context.Context, req GetWithAddressRequest) (*models.ModelState, error)

	// GetObjectSnapshot returns a copy of an object, or nil if it does not exist.
	GetObjectSnapshot(ctx context.Context, req GetWithAddressRequest) (*models.ObjectState, error)

	// HasModel reports whether the model currently exists.
	HasModel(ctx context.Context, id models.ID) (bool, error)

	// ModelIDs lists the existing models in ascending order.
	ModelIDs(ctx context.Context) ([]models.ID, error)
}

// GetWithAddressRequest selects a snapshot. IncludeTentative asks for local
// changes that are not confirmed yet; stores without such changes ignore it.
type GetWithAddressRequest struct {
	Address          models.Address
	IncludeTentative bool
}

// CheckAddress verifies that addr has the wanted type and lies in repo.
func CheckAddress(repo, addr models.Address, want models.AddressType) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if addr.Type() != want {
		return fmt.Errorf("%w: want a %v address, got %v", constants.ErrInvalidAddress, want, addr)
	}
	if addr.Repository != repo.Repository {
		return fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideRepo, addr, repo)
	}
	return nil
}

// ChangeModel returns the model a change applies to after checking it lies in
// repo.
func ChangeModel(repo models.Address, c change.Change) (models.Address, error) {
	if c == nil {
		return models.Address{}, fmt.Errorf("%w: nil change", constants.ErrInvalidCommand)
	}
	target := c.TargetAddress()
	if target.Type() == models.TypeNone || target.Type() == models.TypeRepository {
		return models.Address{}, fmt.Errorf("%w: %v does not address a model", constants.ErrInvalidCommand, target)
	}
	model := target.ModelAddress()
	if err := CheckAddress(repo, model, models.TypeModel); err != nil {
		return models.Address{}, err
	}
	return model, nil
}
