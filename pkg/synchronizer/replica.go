package synchronizer

import (
	"fmt"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/changelog"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/delta"
	"github.com/revstore/revstore/pkg/executor"
	"github.com/revstore/revstore/pkg/models"
)

// Pending is a local change not confirmed by the server yet. Base is the
// synced revision it was checked against.
type Pending struct {
	// Change is the change as it was executed locally.
	Change change.Change
	// Commands are the commands of Change that had an effect. They are
	// rebased, sent and confirmed together.
	Commands []change.Command
	Base     int64
}

// overlaps reports whether an event touches an entity of p.
func (p Pending) overlaps(ev change.Event) bool {
	for _, addr := range ev.Touched() {
		for _, cmd := range p.Commands {
			if addr.Overlaps(cmd.Target) {
				return true
			}
		}
	}
	return false
}

// Replica is a local copy of one model plus the commands applied to it since
// the last synchronization. It is safe for concurrent use.
type Replica struct {
	model models.Address
	actor models.ID

	mu   sync.Mutex
	base *models.ModelState
	// log holds the fetched events. Events the actor may not see never
	// arrive, so its revisions can skip.
	log *changelog.SparseLog
	// pending is the queue of local changes, oldest first.
	pending []Pending
	// sent holds the changes of the submission in flight.
	sent []Pending
	// confirmed holds committed commands whose event was not fetched yet.
	confirmed    []change.Command
	confirmedRev int64
	conflicts    []ConflictError
	lastConflict uint64
	// own holds the revisions of events committed from this replica.
	own mapset.Set[int64]
}

type ReplicaOption func(*Replica)

// WithSnapshot starts the replica from a model snapshot instead of an empty
// log. Synchronization continues after the snapshot's revision.
func WithSnapshot(state *models.ModelState) ReplicaOption {
	return func(r *Replica) {
		r.base = state.Clone()
		r.log = changelog.NewSparseLog(r.model, state.Revision+1)
	}
}

// WithBaseRevision sets the first revision of the server log.
func WithBaseRevision(rev int64) ReplicaOption {
	return func(r *Replica) {
		r.log = changelog.NewSparseLog(r.model, rev)
	}
}

// NewReplica returns an empty replica of model that writes as actor.
func NewReplica(model models.Address, actor models.ID, opts ...ReplicaOption) (*Replica, error) {
	if model.Type() != models.TypeModel {
		return nil, fmt.Errorf("%w: %v is not a model address", constants.ErrInvalidAddress, model)
	}
	if actor.IsZero() {
		return nil, constants.ErrNoActor
	}
	r := &Replica{
		model: model,
		actor: actor,
		log:   changelog.NewSparseLog(model, 0),
		own:   mapset.NewSet[int64](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Replica) Address() models.Address {
	return r.model
}

func (r *Replica) Actor() models.ID {
	return r.actor
}

// SyncedRevision is the revision of the last server event the replica has
// applied.
func (r *Replica) SyncedRevision() int64 {
	return r.log.CurrentRevision()
}

// Log is the part of the server log the replica has fetched.
func (r *Replica) Log() changelog.Reader {
	return r.log
}

// Pending returns the queued commands, including those of a submission in
// flight.
func (r *Replica) Pending() []Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(slices.Clone(r.sent), r.pending...)
}

// Conflicts returns the changes set aside because the server changed the
// entities they touch, oldest first.
func (r *Replica) Conflicts() []ConflictError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.conflicts)
}

// DropConflicts discards and returns the conflicts.
func (r *Replica) DropConflicts() []ConflictError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.conflicts
	r.conflicts = nil
	return out
}

// Requeue resolves the conflict with the given ID by executing c locally in
// its place, typically the conflicting change adjusted to the synced state.
// The conflict is kept when c fails.
func (r *Replica) Requeue(id uint64, c change.Change) (int64, error) {
	if _, ok := r.conflict(id); !ok {
		return change.Failed, fmt.Errorf("%w: no conflict %d", constants.ErrInvalidValue, id)
	}
	res, err := r.Execute(c)
	if err != nil || res == change.Failed {
		return res, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = slices.DeleteFunc(r.conflicts, func(x ConflictError) bool { return x.ID == id })
	return res, nil
}

func (r *Replica) conflict(id uint64) (ConflictError, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.conflicts, func(x ConflictError) bool { return x.ID == id })
	if i < 0 {
		return ConflictError{}, false
	}
	return r.conflicts[i], true
}

// Execute applies c to the tentative view and queues it for the next
// synchronization. Safe commands are checked against the tentative view. A
// transaction stays one unit: it is rebased, sent and confirmed as a whole.
//
// The result is models.RevisionUnconfirmed when something changed. Model
// commands cannot be queued; send them to the store directly.
func (r *Replica) Execute(c change.Change) (int64, error) {
	if c == nil {
		return change.Failed, fmt.Errorf("%w: nil change", constants.ErrInvalidCommand)
	}
	if err := c.Validate(); err != nil {
		return change.Failed, err
	}
	cmds := change.Commands(c)
	for _, cmd := range cmds {
		if cmd.Target.ModelAddress() != r.model {
			return change.Failed, fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideModel, cmd.Target, r.model)
		}
		if cmd.Target.Type() == models.TypeModel {
			return change.Failed, fmt.Errorf("%w: %v cannot be queued on a replica", constants.ErrInvalidCommand, cmd.Kind)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cm := r.overlay()
	if cm == nil {
		return change.Failed, nil
	}
	var effective []change.Command
	for _, cmd := range cmds {
		switch cm.Apply(cmd) {
		case change.Failed:
			return change.Failed, nil
		case change.NoChange:
		default:
			effective = append(effective, cmd)
		}
	}
	if len(effective) == 0 {
		return change.NoChange, nil
	}
	r.pending = append(r.pending, Pending{Change: c, Commands: effective, Base: r.log.CurrentRevision()})
	return models.RevisionUnconfirmed, nil
}

// GetModelSnapshot returns the synced model, or with includeTentative the
// synced model with every unconfirmed command applied. Entities touched by
// unconfirmed commands carry models.RevisionUnconfirmed.
func (r *Replica) GetModelSnapshot(includeTentative bool) *models.ModelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !includeTentative || r.base == nil {
		return r.base.Clone()
	}
	cm := r.overlay()
	if cm.IsEmpty() {
		return r.base.Clone()
	}
	return cm.Snapshot(models.RevisionUnconfirmed)
}

// overlay replays every unconfirmed command onto the synced model. r.mu must
// be held. It returns nil when the model does not exist locally.
func (r *Replica) overlay() *delta.ChangedModel {
	if r.base == nil {
		return nil
	}
	cm := delta.New(r.base)
	for _, c := range r.confirmed {
		cm.Apply(c)
	}
	for _, p := range r.sent {
		applyForced(cm, p.Commands)
	}
	for _, p := range r.pending {
		applyForced(cm, p.Commands)
	}
	return cm
}

func applyForced(cm *delta.ChangedModel, cmds []change.Command) {
	for _, c := range cmds {
		cm.Apply(c.Forced())
	}
}

// applyEvents appends fetched server events to the local log. The events may
// be filtered for the actor, so the synced model is the visible part of the
// server model.
func (r *Replica) applyEvents(events []change.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		if ev.Revision <= r.log.CurrentRevision() {
			continue
		}
		next, err := executor.ApplyFilteredEvent(r.base.Clone(), r.model, ev)
		if err != nil {
			return err
		}
		if _, err := r.log.Append(ev); err != nil {
			return err
		}
		r.base = next
	}
	if r.log.CurrentRevision() >= r.confirmedRev {
		r.confirmed = nil
	}
	r.prune()
	return nil
}

// prune forgets own revisions no queued command can be compared against.
func (r *Replica) prune() {
	floor := r.log.CurrentRevision()
	for _, p := range r.sent {
		floor = min(floor, p.Base)
	}
	for _, p := range r.pending {
		floor = min(floor, p.Base)
	}
	for _, rev := range r.own.ToSlice() {
		if rev <= floor {
			r.own.Remove(rev)
		}
	}
}

// rebase moves every pending change either to the submission, as forced
// commands, or to the conflicts when a foreign event since its base touched
// an address overlapping any of its commands.
func (r *Replica) rebase() ([]change.Command, []*ConflictError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		batch     []change.Command
		conflicts []*ConflictError
	)
	for _, p := range r.pending {
		if events := r.conflicting(p); len(events) > 0 {
			r.lastConflict++
			c := ConflictError{ID: r.lastConflict, Change: p.Change, Events: events}
			r.conflicts = append(r.conflicts, c)
			conflicts = append(conflicts, &c)
			continue
		}
		r.sent = append(r.sent, p)
		for _, cmd := range p.Commands {
			batch = append(batch, cmd.Forced())
		}
	}
	r.pending = nil
	return batch, conflicts
}

func (r *Replica) conflicting(p Pending) []change.Event {
	var out []change.Event
	for _, ev := range r.log.EventsBetween(p.Base+1, changelog.ToCurrent) {
		if !r.own.Contains(ev.Revision) && p.overlaps(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// restore puts a rejected submission back in front of the queue.
func (r *Replica) restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.sent, r.pending...)
	r.sent = nil
}

// confirm records a committed submission. When nobody else committed in
// between, the event is rebuilt locally and the synced model advances to rev;
// otherwise the commands stay in the tentative view until the event is
// fetched.
func (r *Replica) confirm(rev int64, c change.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sent := r.sent
	r.sent = nil
	if !change.IsSuccess(rev) {
		return
	}
	r.own.Add(rev)

	current := r.log.CurrentRevision()
	if rev == current+1 {
		out, err := executor.Evaluate(r.actor, r.model, r.base, current, c)
		if err == nil && out.Result == rev {
			if _, err := r.log.Append(out.Event); err == nil {
				r.base = out.State
				return
			}
		}
	}
	for _, p := range sent {
		for _, cmd := range p.Commands {
			r.confirmed = append(r.confirmed, cmd.Forced())
		}
	}
	r.confirmedRev = max(r.confirmedRev, rev)
}
