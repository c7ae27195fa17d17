// Package types defines core domain types for the canmill decode engine.
//
//nolint:revive // types is a common Go package naming convention
package types

import "encoding/hex"

// CAN identifier limits. Standard frames carry an 11-bit identifier,
// extended frames a 29-bit identifier.
const (
	// MaxStandardID is the highest valid standard (11-bit) identifier.
	MaxStandardID uint32 = 0x7FF
	// MaxExtendedID is the highest valid extended (29-bit) identifier.
	MaxExtendedID uint32 = 0x1FFFFFFF
)

// ExtendedFlag is the bit some log and schema sources set on an
// identifier to mark it as extended. It is masked off on ingest; the
// engine works with bare 29-bit identifiers.
const ExtendedFlag uint32 = 0x80000000

// Frame is one raw bus frame as read from a log.
// Transient input: the engine never retains a Frame after decoding it.
type Frame struct {
	// ID is the bare identifier (extended flag already masked off).
	ID uint32
	// Timestamp is the capture time in seconds since the epoch.
	Timestamp float64
	// Data is the raw payload. Classic frames carry up to 8 bytes,
	// FD logs up to 64. The engine imposes no cap.
	Data []byte
	// Bus is the interface name from the log line (informational).
	Bus string
}

// HexData returns the payload as a lowercase hex string.
func (f Frame) HexData() string {
	return hex.EncodeToString(f.Data)
}
