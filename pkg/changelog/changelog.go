package changelog

import (
	"fmt"
	"math"
	"sync"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

// ToCurrent as the upper bound of a range query means "through the current
// revision".
const ToCurrent int64 = math.MaxInt64

// Reader is the query side of a change log.
type Reader interface {
	Address() models.Address
	// EventAt returns the event committed at rev.
	EventAt(rev int64) (change.Event, bool)
	// EventsBetween returns the events with lo <= revision < hi.
	EventsBetween(lo, hi int64) []change.Event
	CurrentRevision() int64
	// BaseRevision is the earliest revision the log still holds.
	BaseRevision() int64
}

// ChangeLog is the append-only history of one model.
type ChangeLog interface {
	Reader
	// Append stores ev, whose revision must be CurrentRevision()+1.
	Append(ev change.Event) (int64, error)
	// Truncate drops every event before rev.
	Truncate(rev int64)
}

// State is a copy of a log's content.
type State struct {
	Address         models.Address
	CurrentRevision int64
	BaseRevision    int64
	Events          []change.Event
}

// MemoryLog is a ChangeLog held in memory. It is safe for concurrent readers
// and one writer.
type MemoryLog struct {
	mu      sync.RWMutex
	address models.Address
	base    int64
	events  []change.Event
}

var _ ChangeLog = (*MemoryLog)(nil)

// NewMemoryLog returns an empty log whose first event will get revision base.
func NewMemoryLog(addr models.Address, base int64) *MemoryLog {
	return &MemoryLog{address: addr, base: base}
}

// FromState restores a log from a State copy.
func FromState(s State) (*MemoryLog, error) {
	l := NewMemoryLog(s.Address, s.BaseRevision)
	for _, ev := range s.Events {
		if _, err := l.Append(ev); err != nil {
			return nil, err
		}
	}
	if cur := l.CurrentRevision(); cur != s.CurrentRevision {
		return nil, fmt.Errorf("%w: state claims revision %d but holds events up to %d", constants.ErrRevisionGap, s.CurrentRevision, cur)
	}
	return l, nil
}

func (l *MemoryLog) Address() models.Address {
	return l.address
}

func (l *MemoryLog) Append(ev change.Event) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.base + int64(len(l.events))
	if ev.Revision != next {
		return change.Failed, fmt.Errorf("%w: got revision %d, want %d", constants.ErrRevisionGap, ev.Revision, next)
	}
	for _, a := range ev.Flatten() {
		if a.Revision != ev.Revision {
			return change.Failed, fmt.Errorf("%w: child at revision %d inside event %d", constants.ErrRevisionGap, a.Revision, ev.Revision)
		}
	}
	if !l.address.Contains(ev.Target) {
		return change.Failed, fmt.Errorf("%w: %v is not in %v", constants.ErrOutsideModel, ev.Target, l.address)
	}
	l.events = append(l.events, ev)
	return next, nil
}

func (l *MemoryLog) EventAt(rev int64) (change.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := rev - l.base
	if i < 0 || i >= int64(len(l.events)) {
		return change.Event{}, false
	}
	return l.events[i], true
}

func (l *MemoryLog) EventsBetween(lo, hi int64) []change.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	end := l.base + int64(len(l.events))
	lo = max(lo, l.base)
	hi = min(hi, end)
	if lo >= hi {
		return nil
	}
	out := make([]change.Event, hi-lo)
	copy(out, l.events[lo-l.base:hi-l.base])
	return out
}

// CurrentRevision is the revision of the last event, or BaseRevision()-1 when
// the log is empty.
func (l *MemoryLog) CurrentRevision() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base + int64(len(l.events)) - 1
}

func (l *MemoryLog) BaseRevision() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

func (l *MemoryLog) Truncate(rev int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	end := l.base + int64(len(l.events))
	rev = min(rev, end)
	if rev <= l.base {
		return
	}
	l.events = append([]change.Event(nil), l.events[rev-l.base:]...)
	l.base = rev
}

func (l *MemoryLog) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return State{
		Address:         l.address,
		CurrentRevision: l.base + int64(len(l.events)) - 1,
		BaseRevision:    l.base,
		Events:          append([]change.Event(nil), l.events...),
	}
}
