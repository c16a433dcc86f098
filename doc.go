// Package revstore is a versioned store of hierarchical data.
//
// # Data Model
//
// A repository holds models, models hold objects and objects hold fields.
// Every entity is named by an address (package models) and carries the
// revision of the change that last touched it. Fields carry a value.
//
// Each model has its own change log (package changelog). Executing a command
// or transaction (package change) against a model either commits exactly one
// event, consuming the next revision of the log, or is rejected and leaves
// the log alone. Commands with Safe intent are checked against the revision
// the caller saw; commands with Forced intent are not.
//
// # Backends
//
// [Open] picks the store from the [Config]:
//
//   - in memory ([github.com/revstore/revstore/pkg/store/memstore]) when no DSN is set
//   - PostgreSQL through GORM ([github.com/revstore/revstore/pkg/store/postgres]) otherwise
//
// # Access Rights
//
// [Repository.AsActor] restricts the store to what an actor may read and
// write according to [Repository.Access] (package arm).
//
// # Synchronization
//
// Clients keep a replica of a model, change it locally and synchronize with
// the server (package synchronizer). In the same process use
// [Repository.Replica]; across the network serve [Repository.Handler] and
// connect with package remote.
//
// # Example
//
//	cfg := revstore.NewConfig("repo")
//	repo, err := revstore.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer repo.Close()
//
//	repo.Access().Grant("alice", repo.Address(), arm.Write)
//	model := repo.Address().Child("notes")
//	rev, err := repo.AsActor("alice").ExecuteCommand(ctx, "alice",
//		change.Must(change.NewAdd(model, change.Safe)))
package revstore
