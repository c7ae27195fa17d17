package dbc

import (
	"fmt"

	"github.com/pithecene-io/canmill/types"
)

// Violation is one layout defect found by Validate.
type Violation struct {
	MessageID uint32 `json:"message_id"`
	Message   string `json:"message"`
	Signal    string `json:"signal,omitempty"`
	Detail    string `json:"detail"`
}

func (v Violation) String() string {
	if v.Signal == "" {
		return fmt.Sprintf("0x%X %s: %s", v.MessageID, v.Message, v.Detail)
	}
	return fmt.Sprintf("0x%X %s.%s: %s", v.MessageID, v.Message, v.Signal, v.Detail)
}

// Validate checks every message layout for defects: zero-width fields,
// fields that do not fit the declared payload length, float fields of
// invalid width, duplicate signal names, and overlapping bit fields.
// Returns all violations found, nil when the layout is clean.
func Validate(layout *types.Layout) []Violation {
	var violations []Violation

	for _, msg := range layout.Messages() {
		names := make(map[string]bool, len(msg.Signals))
		// Owner of each payload bit, for overlap detection
		owner := make(map[uint]string)

		for i := range msg.Signals {
			sig := &msg.Signals[i]

			if names[sig.Name] {
				violations = append(violations, Violation{
					MessageID: msg.ID, Message: msg.Name, Signal: sig.Name,
					Detail: "duplicate signal name",
				})
			}
			names[sig.Name] = true

			if sig.BitLength == 0 {
				violations = append(violations, Violation{
					MessageID: msg.ID, Message: msg.Name, Signal: sig.Name,
					Detail: "zero bit length",
				})
				continue
			}

			if sig.Float && sig.BitLength != 32 && sig.BitLength != 64 {
				violations = append(violations, Violation{
					MessageID: msg.ID, Message: msg.Name, Signal: sig.Name,
					Detail: fmt.Sprintf("float width must be 32 or 64 bits, got %d", sig.BitLength),
				})
			}

			bits, ok := fieldBits(sig, msg.Length*8)
			if !ok {
				violations = append(violations, Violation{
					MessageID: msg.ID, Message: msg.Name, Signal: sig.Name,
					Detail: fmt.Sprintf("%d bits at start bit %d exceed %d-byte payload",
						sig.BitLength, sig.StartBit, msg.Length),
				})
				continue
			}

			reported := make(map[string]bool)
			for _, bit := range bits {
				if prev, ok := owner[bit]; ok && !reported[prev] {
					reported[prev] = true
					violations = append(violations, Violation{
						MessageID: msg.ID, Message: msg.Name, Signal: sig.Name,
						Detail: fmt.Sprintf("overlaps signal %s", prev),
					})
				}
				owner[bit] = sig.Name
			}
		}
	}

	return violations
}

// fieldBits returns the physical bit positions (byte*8 + bit, LSB
// numbering) a signal occupies, or false when the field does not fit
// in payloadBits.
func fieldBits(sig *types.SignalDef, payloadBits uint) ([]uint, bool) {
	bits := make([]uint, 0, sig.BitLength)

	if sig.ByteOrder == types.OrderBigEndian {
		start := 8*(sig.StartBit/8) + 7 - sig.StartBit%8
		if start+sig.BitLength > payloadBits {
			return nil, false
		}
		for i := uint(0); i < sig.BitLength; i++ {
			pos := start + i
			bits = append(bits, 8*(pos/8)+7-pos%8)
		}
		return bits, true
	}

	if sig.StartBit+sig.BitLength > payloadBits {
		return nil, false
	}
	for i := uint(0); i < sig.BitLength; i++ {
		bits = append(bits, sig.StartBit+i)
	}
	return bits, true
}
