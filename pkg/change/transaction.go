package change

import (
	"fmt"
	"strings"

	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

// Transaction is an ordered batch of object- and field-level commands that
// either all apply or none do.
type Transaction struct {
	Target   models.Address
	Commands []Command
}

// NewTransaction validates and returns a transaction rooted at a model or
// object address.
func NewTransaction(target models.Address, commands ...Command) (Transaction, error) {
	t := Transaction{Target: target, Commands: commands}
	return t, t.Validate()
}

func (t Transaction) TargetAddress() models.Address {
	return t.Target
}

// Model returns the model the transaction applies to.
func (t Transaction) Model() models.Address {
	return t.Target.ModelAddress()
}

func (t Transaction) Validate() error {
	if err := t.Target.Validate(); err != nil {
		return fmt.Errorf("%w: %w", constants.ErrInvalidCommand, err)
	}
	if tt := t.Target.Type(); tt != models.TypeModel && tt != models.TypeObject {
		return fmt.Errorf("%w: transaction must target a model or object, got %v", constants.ErrInvalidCommand, t.Target)
	}
	if len(t.Commands) == 0 {
		return fmt.Errorf("%w: empty transaction", constants.ErrInvalidCommand)
	}
	for i, c := range t.Commands {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
		if c.Kind == AddModel || c.Kind == RemoveModel {
			return fmt.Errorf("%w: command %d: %v inside a transaction", constants.ErrInvalidCommand, i, c.Kind)
		}
		if !t.Target.Contains(c.Target) {
			return fmt.Errorf("%w: command %d: %v is outside %v", constants.ErrOutsideModel, i, c.Target, t.Target)
		}
	}
	return nil
}

func (t Transaction) String() string {
	parts := make([]string, len(t.Commands))
	for i, c := range t.Commands {
		parts[i] = c.String()
	}
	return fmt.Sprintf("Transaction(%v [%s])", t.Target, strings.Join(parts, ", "))
}

func (Transaction) isChange() {}

// Commands returns the commands of c in order.
func Commands(c Change) []Command {
	switch v := c.(type) {
	case Command:
		return []Command{v}
	case Transaction:
		return v.Commands
	default:
		return nil
	}
}
