package arm

import (
	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/changelog"
	"github.com/revstore/revstore/pkg/models"
)

// ChangeLog is a read-only view of a change log for one actor. Hidden events
// are left out; revisions are not renumbered.
type ChangeLog struct {
	inner changelog.Reader
	actor models.ID
	am    AuthorizationManager
}

var _ changelog.Reader = (*ChangeLog)(nil)

func NewChangeLog(inner changelog.Reader, actor models.ID, am AuthorizationManager) *ChangeLog {
	return &ChangeLog{inner: inner, actor: actor, am: am}
}

func (l *ChangeLog) Address() models.Address {
	return l.inner.Address()
}

// EventAt reports false for hidden events.
func (l *ChangeLog) EventAt(rev int64) (change.Event, bool) {
	ev, ok := l.inner.EventAt(rev)
	if !ok {
		return change.Event{}, false
	}
	return FilterEvent(l.am, l.actor, ev)
}

func (l *ChangeLog) EventsBetween(lo, hi int64) []change.Event {
	return FilterEvents(l.am, l.actor, l.inner.EventsBetween(lo, hi))
}

func (l *ChangeLog) CurrentRevision() int64 {
	return l.inner.CurrentRevision()
}

func (l *ChangeLog) BaseRevision() int64 {
	return l.inner.BaseRevision()
}
