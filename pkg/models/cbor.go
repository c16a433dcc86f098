package models

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/revstore/revstore/internal/codec"
	"github.com/revstore/revstore/pkg/constants"
)

type CustomCBORTag uint64

var (
	TagAddress CustomCBORTag = 47100
	TagValue   CustomCBORTag = 47101
)

type CborMarshaler struct {
}

func (c CborMarshaler) Marshal(v interface{}) ([]byte, error) {
	em := getCborEncoder()
	return em.Marshal(v)
}

func (c CborMarshaler) NewEncoder(w io.Writer) codec.Encoder {
	em := getCborEncoder()
	return em.NewEncoder(w)
}

type CborUnmarshaler struct {
}

func (c CborUnmarshaler) Unmarshal(data []byte, dst interface{}) error {
	dm := getCborDecoder()
	return dm.Unmarshal(data, dst)
}

func (c CborUnmarshaler) NewDecoder(r io.Reader) codec.Decoder {
	dm := getCborDecoder()
	return dm.NewDecoder(r)
}

// CborCodec is the wire format shared by the durable store and the transport.
type CborCodec struct {
	CborMarshaler
	CborUnmarshaler
}

var _ codec.Codec = CborCodec{}

func getCborEncoder() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

func getCborDecoder() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic(err)
	}

	return dm
}

func (a Address) MarshalCBOR() ([]byte, error) {
	enc := getCborEncoder()

	return enc.Marshal(cbor.Tag{
		Number:  uint64(TagAddress),
		Content: []string{string(a.Repository), string(a.Model), string(a.Object), string(a.Field)},
	})
}

func (a *Address) UnmarshalCBOR(data []byte) error {
	dec := getCborDecoder()

	var tag cbor.RawTag
	if err := dec.Unmarshal(data, &tag); err != nil {
		return err
	}
	if tag.Number != uint64(TagAddress) {
		return fmt.Errorf("%w: unexpected cbor tag %d", constants.ErrInvalidAddress, tag.Number)
	}

	var parts []string
	if err := dec.Unmarshal(tag.Content, &parts); err != nil {
		return err
	}
	if len(parts) != 4 {
		return fmt.Errorf("%w: expected 4 components, got %d", constants.ErrInvalidAddress, len(parts))
	}

	decoded := Address{Repository: ID(parts[0]), Model: ID(parts[1]), Object: ID(parts[2]), Field: ID(parts[3])}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*a = decoded
	return nil
}

// ValueBox carries a possibly nil Value through CBOR, which cannot decode
// into an interface on its own.
type ValueBox struct {
	Value Value
}

type valueWire struct {
	_      struct{} `cbor:",toarray"`
	Kind   ValueKind
	Elem   ValueKind
	Scalar cbor.RawMessage
	Items  []cbor.RawMessage
}

func (b ValueBox) MarshalCBOR() ([]byte, error) {
	enc := getCborEncoder()
	if b.Value == nil {
		return enc.Marshal(nil)
	}

	w := valueWire{Kind: b.Value.Kind()}
	if c, ok := b.Value.(Collection); ok {
		w.Elem = c.elem
		w.Items = make([]cbor.RawMessage, len(c.items))
		for i, it := range c.items {
			raw, err := marshalScalar(enc, it)
			if err != nil {
				return nil, err
			}
			w.Items[i] = raw
		}
	} else {
		raw, err := marshalScalar(enc, b.Value)
		if err != nil {
			return nil, err
		}
		w.Scalar = raw
	}

	return enc.Marshal(cbor.Tag{Number: uint64(TagValue), Content: w})
}

func (b *ValueBox) UnmarshalCBOR(data []byte) error {
	if isCborNull(data) {
		b.Value = nil
		return nil
	}

	dec := getCborDecoder()

	var tag cbor.RawTag
	if err := dec.Unmarshal(data, &tag); err != nil {
		return err
	}
	if tag.Number != uint64(TagValue) {
		return fmt.Errorf("%w: unexpected cbor tag %d", constants.ErrInvalidValue, tag.Number)
	}

	var w valueWire
	if err := dec.Unmarshal(tag.Content, &w); err != nil {
		return err
	}

	if !w.Kind.IsCollection() {
		v, err := unmarshalScalar(dec, w.Kind, w.Scalar)
		if err != nil {
			return err
		}
		b.Value = v
		return nil
	}

	items := make([]Value, len(w.Items))
	for i, raw := range w.Items {
		v, err := unmarshalScalar(dec, w.Elem, raw)
		if err != nil {
			return err
		}
		items[i] = v
	}
	c, err := newCollection(w.Kind, w.Elem, items)
	if err != nil {
		return err
	}
	b.Value = c
	return nil
}

// isCborNull matches the encodings of null and undefined.
func isCborNull(data []byte) bool {
	return len(data) == 1 && (data[0] == 0xf6 || data[0] == 0xf7)
}

func marshalScalar(enc cbor.EncMode, v Value) (cbor.RawMessage, error) {
	switch sv := v.(type) {
	case Boolean:
		return enc.Marshal(bool(sv))
	case Integer:
		return enc.Marshal(int32(sv))
	case Long:
		return enc.Marshal(int64(sv))
	case Double:
		return enc.Marshal(float64(sv))
	case String:
		return enc.Marshal(string(sv))
	case IDValue:
		return enc.Marshal(string(sv))
	case AddressValue:
		return enc.Marshal(Address(sv))
	case Binary:
		return enc.Marshal(sv.Bytes())
	default:
		return nil, fmt.Errorf("%w: %v is not a scalar", constants.ErrInvalidValue, v)
	}
}

func unmarshalScalar(dec cbor.DecMode, kind ValueKind, raw cbor.RawMessage) (Value, error) {
	var err error
	switch kind {
	case KindBoolean:
		var v bool
		err = dec.Unmarshal(raw, &v)
		return Boolean(v), err
	case KindInteger:
		var v int32
		err = dec.Unmarshal(raw, &v)
		return Integer(v), err
	case KindLong:
		var v int64
		err = dec.Unmarshal(raw, &v)
		return Long(v), err
	case KindDouble:
		var v float64
		err = dec.Unmarshal(raw, &v)
		return Double(v), err
	case KindString:
		var v string
		err = dec.Unmarshal(raw, &v)
		return String(v), err
	case KindID:
		var v string
		if err = dec.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		id, err := NewID(v)
		return IDValue(id), err
	case KindAddress:
		var v Address
		err = dec.Unmarshal(raw, &v)
		return AddressValue(v), err
	case KindBinary:
		var v []byte
		err = dec.Unmarshal(raw, &v)
		return NewBinary(v), err
	default:
		return nil, fmt.Errorf("%w: unknown scalar kind %v", constants.ErrInvalidValue, kind)
	}
}
