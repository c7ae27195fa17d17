// Package decode implements the frame decoding engine: payload length
// reconciliation, bit-field signal extraction, and per-frame decoding
// against a read-only layout table.
//
// Every function here is pure. Frame-level faults are returned as data
// and never abort a decode session.
package decode

import "github.com/pithecene-io/canmill/types"

// Reconcile adjusts a raw payload to the layout's expected length.
//
// A short payload is right-padded with zero bytes, a long one truncated
// to the first expected bytes; either case returns an adjustment record
// carrying copies of the original and adjusted bytes. A payload already
// at the expected length is returned unchanged with a nil adjustment.
func Reconcile(id uint32, ts float64, payload []byte, expected int) ([]byte, *types.LengthAdjustment) {
	if len(payload) == expected {
		return payload, nil
	}

	// Covers both cases: padding leaves the zero-initialized tail,
	// truncation copies only the first expected bytes.
	adjusted := make([]byte, expected)
	copy(adjusted, payload)

	original := make([]byte, len(payload))
	copy(original, payload)
	recorded := make([]byte, expected)
	copy(recorded, adjusted)

	return adjusted, &types.LengthAdjustment{
		ID:             id,
		Timestamp:      ts,
		OriginalLength: len(payload),
		AdjustedLength: expected,
		Original:       original,
		Adjusted:       recorded,
	}
}
