package changelog

import (
	"fmt"
	"slices"
	"sync"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

// SparseLog mirrors the part of a server log a reader was allowed to fetch.
// Revisions increase but may skip the events that were filtered out, so
// CurrentRevision is the revision of the last event held, not of the server.
type SparseLog struct {
	mu      sync.RWMutex
	address models.Address
	base    int64
	current int64
	events  []change.Event
}

var _ Reader = (*SparseLog)(nil)

// NewSparseLog returns an empty log that accepts events from revision base on.
func NewSparseLog(addr models.Address, base int64) *SparseLog {
	return &SparseLog{address: addr, base: base, current: base - 1}
}

func (l *SparseLog) Address() models.Address {
	return l.address
}

// Append stores ev, whose revision must be above CurrentRevision().
func (l *SparseLog) Append(ev change.Event) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Revision <= l.current {
		return change.Failed, fmt.Errorf("%w: got revision %d after %d", constants.ErrRevisionGap, ev.Revision, l.current)
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
	l.current = ev.Revision
	return ev.Revision, nil
}

// search returns the index of the first event at or after rev.
func (l *SparseLog) search(rev int64) int {
	i, _ := slices.BinarySearchFunc(l.events, rev, func(ev change.Event, rev int64) int {
		switch {
		case ev.Revision < rev:
			return -1
		case ev.Revision > rev:
			return 1
		}
		return 0
	})
	return i
}

// EventAt reports false for revisions the log skipped.
func (l *SparseLog) EventAt(rev int64) (change.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.search(rev)
	if i == len(l.events) || l.events[i].Revision != rev {
		return change.Event{}, false
	}
	return l.events[i], true
}

func (l *SparseLog) EventsBetween(lo, hi int64) []change.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if lo >= hi {
		return nil
	}
	i, j := l.search(lo), l.search(hi)
	if i >= j {
		return nil
	}
	return slices.Clone(l.events[i:j])
}

func (l *SparseLog) CurrentRevision() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *SparseLog) BaseRevision() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}

// Truncate drops every event before rev.
func (l *SparseLog) Truncate(rev int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rev = min(rev, l.current+1)
	if rev <= l.base {
		return
	}
	l.events = slices.Clone(l.events[l.search(rev):])
	l.base = rev
}
