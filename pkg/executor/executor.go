package executor

import (
	"context"
	"sync"

	"github.com/revstore/revstore/pkg/change"
	"github.com/revstore/revstore/pkg/changelog"
	"github.com/revstore/revstore/pkg/logger"
	"github.com/revstore/revstore/pkg/models"
)

// Model is the committed state of one model together with its log. It is the
// unit of serialization: one change commits at a time per Model.
type Model struct {
	mu      sync.Mutex
	Address models.Address
	State   *models.ModelState
	Log     changelog.ChangeLog
}

// NewModel returns a model that does not exist yet and whose log starts at
// base.
func NewModel(addr models.Address, base int64) *Model {
	return &Model{Address: addr, Log: changelog.NewMemoryLog(addr, base)}
}

// Snapshot returns a copy of the committed state, nil if the model does not
// exist.
func (m *Model) Snapshot() *models.ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State.Clone()
}

func (m *Model) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.State != nil
}

type Executor struct {
	logger logger.Logger
}

func New(l logger.Logger) *Executor {
	if l == nil {
		l = logger.Nop()
	}
	return &Executor{logger: l}
}

// Execute evaluates c against m and commits the resulting event. It returns
// the new revision, change.NoChange or change.Failed.
func (e *Executor) Execute(ctx context.Context, actor models.ID, m *Model, c change.Change) (int64, error) {
	if err := ctx.Err(); err != nil {
		return change.Failed, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := Evaluate(actor, m.Address, m.State, m.Log.CurrentRevision(), c)
	if err != nil {
		e.logger.Warn("malformed change", "model", m.Address, "actor", actor, "error", err)
		return change.Failed, err
	}
	if !change.IsSuccess(out.Result) {
		e.logger.Debug("change rejected", "model", m.Address, "actor", actor, "result", change.ResultString(out.Result))
		return out.Result, nil
	}
	if _, err := m.Log.Append(out.Event); err != nil {
		e.logger.Error("append failed", "model", m.Address, "revision", out.Result, "error", err)
		return change.Failed, err
	}
	m.State = out.State
	e.logger.Info("change committed", "model", m.Address, "actor", actor, "revision", out.Result)
	return out.Result, nil
}
