// Package synchronizer reconciles a local replica of a model with the
// authoritative change log of a server.
//
// A [Replica] holds the synced model, the server events it was built from,
// and the commands applied locally since. Local commands are checked against
// the tentative view (synced model plus queued commands) and queued.
//
// [Synchronizer.Synchronize] then runs one round of the protocol:
//
//  1. fetch the server events after the synced revision and apply them
//  2. rebase every queued change: when no foreign event since the change
//     was queued touches an overlapping address, its commands are resent
//     with Forced intent; otherwise the whole change is a conflict, set aside
//     and reported
//  3. submit the resent commands as one change
//  4. on success the synced revision advances to the committed one
//
// Outcomes are reported through a [Callback]; Synchronize never returns
// errors. Conflicts stay with the replica until the caller resolves them with
// [Replica.Requeue] or [Replica.DropConflicts].
//
// The protocol never retries on its own. Callers decide the cadence.
package synchronizer

import (
	"context"
	"fmt"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/changelog"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
	"github.com/revstore/revstore/pkg/store"
)

// Remote is the server side of the protocol.
type Remote interface {
	// GetEvents returns the events of model with begin <= revision < end.
	GetEvents(ctx context.Context, model models.Address, begin, end int64) ([]change.Event, error)
	// Execute executes c as actor and returns a revision, change.NoChange or
	// change.Failed.
	Execute(ctx context.Context, actor models.ID, c change.Change) (int64, error)
}

type storeRemote struct {
	s store.Store
}

// FromStore serves the protocol straight from a store in the same process.
func FromStore(s store.Store) Remote {
	return storeRemote{s: s}
}

func (r storeRemote) GetEvents(ctx context.Context, model models.Address, begin, end int64) ([]change.Event, error) {
	return r.s.GetEvents(ctx, model, begin, end)
}

func (r storeRemote) Execute(ctx context.Context, actor models.ID, c change.Change) (int64, error) {
	return r.s.ExecuteCommand(ctx, actor, c)
}

// Callback receives the outcome of one synchronization.
type Callback interface {
	// OnSuccess is called when the queued commands were committed or there
	// was nothing to submit.
	OnSuccess()
	// OnCommandError reports a conflict (a *ConflictError) or a submission
	// the server rejected.
	OnCommandError(err error)
	// OnEventsError reports a failure to fetch or apply server events.
	OnEventsError(err error)
	// OnRequestError reports a failure to submit commands.
	OnRequestError(err error)
}

// CallbackFuncs adapts functions to a Callback. Nil functions are skipped.
type CallbackFuncs struct {
	Success      func()
	CommandError func(error)
	EventsError  func(error)
	RequestError func(error)
}

func (c CallbackFuncs) OnSuccess() {
	if c.Success != nil {
		c.Success()
	}
}

func (c CallbackFuncs) OnCommandError(err error) {
	if c.CommandError != nil {
		c.CommandError(err)
	}
}

func (c CallbackFuncs) OnEventsError(err error) {
	if c.EventsError != nil {
		c.EventsError(err)
	}
}

func (c CallbackFuncs) OnRequestError(err error) {
	if c.RequestError != nil {
		c.RequestError(err)
	}
}

// ConflictError is reported for a queued change when server events the
// replica did not author touched an overlapping address. ID identifies the
// conflict for [Replica.Requeue].
type ConflictError struct {
	ID     uint64
	Change change.Change
	Events []change.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %v overlaps %d newer server event(s)", constants.ErrConflict, e.Change, len(e.Events))
}

func (e *ConflictError) Unwrap() error {
	return constants.ErrConflict
}

type Synchronizer struct {
	replica *Replica
	remote  Remote
	logger  logger.Logger

	// running holds a token while a synchronization runs.
	running chan struct{}
}

type Option func(*Synchronizer)

func WithLogger(l logger.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

func New(replica *Replica, remote Remote, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		replica: replica,
		remote:  remote,
		logger:  logger.Nop(),
		running: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) Replica() *Replica {
	return s.replica
}

// Synchronize runs one round of the protocol. A concurrent call waits for the
// running one. When ctx ends while waiting, OnRequestError receives the
// context error.
func (s *Synchronizer) Synchronize(ctx context.Context, cb Callback) {
	select {
	case s.running <- struct{}{}:
	case <-ctx.Done():
		cb.OnRequestError(ctx.Err())
		return
	}
	defer func() { <-s.running }()

	r := s.replica
	from := r.SyncedRevision() + 1
	events, err := s.remote.GetEvents(ctx, r.model, from, changelog.ToCurrent)
	if err != nil {
		s.logger.Warn("fetching events failed", "model", r.model, "from", from, "error", err)
		cb.OnEventsError(err)
		return
	}
	if err := r.applyEvents(events); err != nil {
		s.logger.Warn("applying events failed", "model", r.model, "error", err)
		cb.OnEventsError(err)
		return
	}

	batch, conflicts := r.rebase()
	for _, c := range conflicts {
		s.logger.Info("conflict", "model", r.model, "change", c.Change, "events", len(c.Events))
		cb.OnCommandError(c)
	}
	if len(batch) == 0 {
		cb.OnSuccess()
		return
	}

	var submit change.Change = batch[0]
	if len(batch) > 1 {
		submit = change.Transaction{Target: r.model, Commands: batch}
	}
	rev, err := s.remote.Execute(ctx, r.actor, submit)
	if err != nil {
		r.restore()
		s.logger.Warn("submitting commands failed", "model", r.model, "commands", len(batch), "error", err)
		cb.OnRequestError(err)
		return
	}
	if rev == change.Failed {
		r.restore()
		s.logger.Info("submission rejected", "model", r.model, "commands", len(batch))
		cb.OnCommandError(fmt.Errorf("%w: %v", constants.ErrSyncRejected, submit))
		return
	}
	r.confirm(rev, submit)
	s.logger.Debug("synchronized", "model", r.model, "commands", len(batch), "result", change.ResultString(rev))
	cb.OnSuccess()
}

// SynchronizeAsync runs Synchronize on its own goroutine. The returned
// channel is closed after the callback returned.
func (s *Synchronizer) SynchronizeAsync(ctx context.Context, cb Callback) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Synchronize(ctx, cb)
	}()
	return done
}
