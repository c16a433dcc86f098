package change

import (
	"fmt"

	"github.com/revstore/revstore/pkg/constants"
	"github.com/revstore/revstore/pkg/models"
)

var wire = models.CborCodec{}

type commandWire struct {
	_        struct{} `cbor:",toarray"`
	Kind     Kind
	Target   models.Address
	Intent   Intent
	Revision int64
	Value    models.ValueBox
}

func (c Command) MarshalCBOR() ([]byte, error) {
	return wire.Marshal(commandWire{
		Kind:     c.Kind,
		Target:   c.Target,
		Intent:   c.Intent,
		Revision: c.Revision,
		Value:    models.ValueBox{Value: c.Value},
	})
}

func (c *Command) UnmarshalCBOR(data []byte) error {
	var w commandWire
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Command{Kind: w.Kind, Target: w.Target, Intent: w.Intent, Revision: w.Revision, Value: w.Value.Value}
	return nil
}

type transactionWire struct {
	_        struct{} `cbor:",toarray"`
	Target   models.Address
	Commands []Command
}

func (t Transaction) MarshalCBOR() ([]byte, error) {
	return wire.Marshal(transactionWire{Target: t.Target, Commands: t.Commands})
}

func (t *Transaction) UnmarshalCBOR(data []byte) error {
	var w transactionWire
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Transaction{Target: w.Target, Commands: w.Commands}
	return nil
}

type eventWire struct {
	Kind              Kind            `cbor:"1,keyasint"`
	Target            models.Address  `cbor:"2,keyasint"`
	Actor             models.ID       `cbor:"3,keyasint"`
	Revision          int64           `cbor:"4,keyasint"`
	OldModelRevision  int64           `cbor:"5,keyasint"`
	OldObjectRevision int64           `cbor:"6,keyasint"`
	OldFieldRevision  int64           `cbor:"7,keyasint"`
	InTransaction     bool            `cbor:"8,keyasint,omitempty"`
	Implied           bool            `cbor:"9,keyasint,omitempty"`
	Value             models.ValueBox `cbor:"10,keyasint"`
	OldValue          models.ValueBox `cbor:"11,keyasint"`
	Children          []Event         `cbor:"12,keyasint,omitempty"`
}

func (e Event) MarshalCBOR() ([]byte, error) {
	return wire.Marshal(eventWire{
		Kind:              e.Kind,
		Target:            e.Target,
		Actor:             e.Actor,
		Revision:          e.Revision,
		OldModelRevision:  e.OldModelRevision,
		OldObjectRevision: e.OldObjectRevision,
		OldFieldRevision:  e.OldFieldRevision,
		InTransaction:     e.InTransaction,
		Implied:           e.Implied,
		Value:             models.ValueBox{Value: e.Value},
		OldValue:          models.ValueBox{Value: e.OldValue},
		Children:          e.Children,
	})
}

func (e *Event) UnmarshalCBOR(data []byte) error {
	var w eventWire
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		Kind:              w.Kind,
		Target:            w.Target,
		Actor:             w.Actor,
		Revision:          w.Revision,
		OldModelRevision:  w.OldModelRevision,
		OldObjectRevision: w.OldObjectRevision,
		OldFieldRevision:  w.OldFieldRevision,
		InTransaction:     w.InTransaction,
		Implied:           w.Implied,
		Value:             w.Value.Value,
		OldValue:          w.OldValue.Value,
		Children:          w.Children,
	}
	return nil
}

// Box carries a Change through CBOR.
type Box struct {
	Change Change
}

type boxWire struct {
	Command     *Command     `cbor:"1,keyasint,omitempty"`
	Transaction *Transaction `cbor:"2,keyasint,omitempty"`
}

func (b Box) MarshalCBOR() ([]byte, error) {
	var w boxWire
	switch c := b.Change.(type) {
	case Command:
		w.Command = &c
	case Transaction:
		w.Transaction = &c
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", constants.ErrInvalidCommand, b.Change)
	}
	return wire.Marshal(w)
}

func (b *Box) UnmarshalCBOR(data []byte) error {
	var w boxWire
	if err := wire.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Command != nil && w.Transaction == nil:
		b.Change = *w.Command
	case w.Transaction != nil && w.Command == nil:
		b.Change = *w.Transaction
	default:
		return fmt.Errorf("%w: change must hold exactly one of command or transaction", constants.ErrInvalidCommand)
	}
	return nil
}
