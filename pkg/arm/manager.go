// Package arm restricts what an actor can read and write in a repository.
//
// Rights are granted or denied to subjects, which are actors or groups, on
// addresses. The decision for an address is taken at the most specific level
// that has a grant for the actor or one of its groups, walking from the
// address up to the repository. At one level a deny beats an allow. Without
// any grant on the way, access is denied.
//
// [Store] and [ChangeLog] apply the decisions of an [AuthorizationManager] to
// a store or log for one actor: writes are checked before they reach the
// store and reads are filtered.
package arm

import (
	"fmt"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/revstore/revstore/pkg/models"
)

type Access int

const (
	Read Access = iota
	Write
)

func (a Access) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

type Decision int

const (
	Undefined Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Undefined:
		return "undefined"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// combine merges two decisions taken at the same level.
func combine(a, b Decision) Decision {
	return max(a, b)
}

// GroupDatabase records which groups actors belong to. It is safe for
// concurrent use.
type GroupDatabase struct {
	mu     sync.RWMutex
	groups map[models.ID]mapset.Set[models.ID]
}

func NewGroupDatabase() *GroupDatabase {
	return &GroupDatabase{groups: make(map[models.ID]mapset.Set[models.ID])}
}

func (db *GroupDatabase) AddToGroup(actor, group models.ID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	set, ok := db.groups[actor]
	if !ok {
		set = mapset.NewThreadUnsafeSet[models.ID]()
		db.groups[actor] = set
	}
	set.Add(group)
}

func (db *GroupDatabase) RemoveFromGroup(actor, group models.ID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if set, ok := db.groups[actor]; ok {
		set.Remove(group)
		if set.Cardinality() == 0 {
			delete(db.groups, actor)
		}
	}
}

func (db *GroupDatabase) IsMember(actor, group models.ID) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	set, ok := db.groups[actor]
	return ok && set.Contains(group)
}

// Groups returns the groups of actor in ascending order.
func (db *GroupDatabase) Groups(actor models.ID) []models.ID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	set, ok := db.groups[actor]
	if !ok {
		return nil
	}
	out := set.ToSlice()
	slices.Sort(out)
	return out
}

// Members returns the actors of group in ascending order.
func (db *GroupDatabase) Members(group models.ID) []models.ID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.ID
	for actor, set := range db.groups {
		if set.Contains(group) {
			out = append(out, actor)
		}
	}
	slices.Sort(out)
	return out
}

// AuthorizationManager decides whether actors may access addresses.
type AuthorizationManager interface {
	Decide(actor models.ID, addr models.Address, access Access) Decision
	CanRead(actor models.ID, addr models.Address) bool
	CanWrite(actor models.ID, addr models.Address) bool
}

type grantKey struct {
	subject models.ID
	addr    models.Address
	access  Access
}

// Manager is an AuthorizationManager over explicit grants. It is safe for
// concurrent use.
type Manager struct {
	groups *GroupDatabase

	mu     sync.RWMutex
	grants map[grantKey]Decision
}

var _ AuthorizationManager = (*Manager)(nil)

// NewManager returns a manager without grants. groups may be nil.
func NewManager(groups *GroupDatabase) *Manager {
	if groups == nil {
		groups = NewGroupDatabase()
	}
	return &Manager{groups: groups, grants: make(map[grantKey]Decision)}
}

func (m *Manager) Groups() *GroupDatabase {
	return m.groups
}

// Set records the decision for subject on addr. Undefined removes the grant.
func (m *Manager) Set(subject models.ID, addr models.Address, access Access, d Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := grantKey{subject: subject, addr: addr, access: access}
	if d == Undefined {
		delete(m.grants, k)
		return
	}
	m.grants[k] = d
}

func (m *Manager) Grant(subject models.ID, addr models.Address, access Access) {
	m.Set(subject, addr, access, Allow)
}

func (m *Manager) Deny(subject models.ID, addr models.Address, access Access) {
	m.Set(subject, addr, access, Deny)
}

func (m *Manager) Revoke(subject models.ID, addr models.Address, access Access) {
	m.Set(subject, addr, access, Undefined)
}

// Decide returns the decision at the most specific level of addr that has
// one for actor or its groups.
func (m *Manager) Decide(actor models.ID, addr models.Address, access Access) Decision {
	subjects := append([]models.ID{actor}, m.groups.Groups(actor)...)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for a := addr; ; a = a.Parent() {
		d := Undefined
		for _, s := range subjects {
			d = combine(d, m.grants[grantKey{subject: s, addr: a, access: access}])
		}
		if d != Undefined || a.IsZero() {
			return d
		}
	}
}

func (m *Manager) CanRead(actor models.ID, addr models.Address) bool {
	return m.Decide(actor, addr, Read) == Allow
}

func (m *Manager) CanWrite(actor models.ID, addr models.Address) bool {
	return m.Decide(actor, addr, Write) == Allow
}
