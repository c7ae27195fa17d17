package types

// DecodeStatus is the per-frame decode outcome discriminant.
type DecodeStatus string

const (
	// StatusUnknown means the identifier has no layout. Normal traffic,
	// not a fault.
	StatusUnknown DecodeStatus = "unknown"
	// StatusDecoded means every signal extracted successfully.
	StatusDecoded DecodeStatus = "decoded"
	// StatusFailed means at least one signal failed extraction. The
	// frame is reported failed as a whole; partial signal sets are not
	// surfaced.
	StatusFailed DecodeStatus = "failed"
)

// DecodedSignal is one extracted signal value.
type DecodedSignal struct {
	Name string
	// Value is the physical value (raw*scale + offset).
	Value float64
	// Label is set when a value label matched the raw value. Value still
	// carries the physical value.
	Label string
}

// LengthAdjustment records one payload pad or truncation. Produced at
// most once per frame, before extraction, and reported even when
// extraction subsequently fails.
type LengthAdjustment struct {
	ID             uint32
	Timestamp      float64
	OriginalLength int
	AdjustedLength int
	// Original and Adjusted are copies, never aliases of the frame
	// payload.
	Original []byte
	Adjusted []byte
}

// DecodeError records one per-frame decode fault. Captured as data;
// a decode session never aborts on one.
type DecodeError struct {
	ID        uint32
	Timestamp float64
	Message   string
}

// DecodeResult is the outcome of decoding one frame.
type DecodeResult struct {
	Status DecodeStatus
	// Message is the layout name of the matched message. Empty for
	// StatusUnknown.
	Message string
	// Signals is populated only when Status is StatusDecoded.
	Signals []DecodedSignal
	// Adjustment is set when the payload was padded or truncated,
	// regardless of whether extraction then succeeded.
	Adjustment *LengthAdjustment
	// Err is set only when Status is StatusFailed.
	Err *DecodeError
}

// Row is one decoded frame in export form.
type Row struct {
	Timestamp float64
	ID        uint32
	// Message is the layout name of the frame's message.
	Message string
	Signals []DecodedSignal
}
