package types

import (
	"fmt"
	"sort"
)

// ByteOrder is the bit-packing convention of a signal.
type ByteOrder string

const (
	// OrderLittleEndian is the Intel convention: the start bit addresses
	// the field's least significant bit and numbering ascends.
	OrderLittleEndian ByteOrder = "little_endian"
	// OrderBigEndian is the Motorola convention: the start bit addresses
	// the field's most significant bit in sawtooth numbering.
	OrderBigEndian ByteOrder = "big_endian"
)

// SignalDef describes one named bit field within a message payload.
// Immutable once the layout is built.
type SignalDef struct {
	// Name is unique within the enclosing message.
	Name string
	// StartBit is the bit offset of the field's first bit, under the
	// convention selected by ByteOrder.
	StartBit uint
	// BitLength is the field width in bits, at least 1.
	BitLength uint
	// ByteOrder selects the bit-packing convention.
	ByteOrder ByteOrder
	// Signed marks two's-complement interpretation. Ignored for floats.
	Signed bool
	// Float marks IEEE-754 interpretation; BitLength must be 32 or 64.
	Float bool
	// Scale and Offset convert the raw value to the physical value:
	// physical = raw*Scale + Offset.
	Scale  float64
	Offset float64
	// Min and Max bound the physical value (informational).
	Min float64
	Max float64
	// Unit is the physical unit label (informational).
	Unit string
	// Labels maps sign-interpreted raw values to display labels.
	Labels map[int64]string
}

// MessageDef describes one message layout: expected payload length and
// the signals packed into it. Immutable once the layout is built.
type MessageDef struct {
	ID       uint32
	Name     string
	// Length is the expected payload length in bytes (the DLC).
	Length uint
	// Signals in declared order. Order is decode order but carries no
	// semantic weight; fields are independent.
	Signals  []SignalDef
	Sender   string
	Extended bool
}

// Layout is the read-only table mapping identifiers to message layouts.
// Built once per session; safe for concurrent readers afterwards.
type Layout struct {
	messages map[uint32]*MessageDef
}

// NewLayout builds a layout from message definitions.
// Returns an error on duplicate identifiers.
func NewLayout(defs []*MessageDef) (*Layout, error) {
	messages := make(map[uint32]*MessageDef, len(defs))
	for _, def := range defs {
		if prev, ok := messages[def.ID]; ok {
			return nil, fmt.Errorf("duplicate message ID 0x%X (%s and %s)", def.ID, prev.Name, def.Name)
		}
		messages[def.ID] = def
	}
	return &Layout{messages: messages}, nil
}

// Lookup returns the message layout for an identifier.
func (l *Layout) Lookup(id uint32) (*MessageDef, bool) {
	def, ok := l.messages[id]
	return def, ok
}

// Messages returns all message layouts sorted by identifier.
func (l *Layout) Messages() []*MessageDef {
	defs := make([]*MessageDef, 0, len(l.messages))
	for _, def := range l.messages {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Len returns the number of message layouts in the table.
func (l *Layout) Len() int {
	return len(l.messages)
}
