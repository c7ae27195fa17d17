package decode

import "github.com/pithecene-io/canmill/types"

// Decoder decodes frames against an immutable layout table.
// Safe for concurrent use: the layout is read-only and decoding holds
// no state between frames.
type Decoder struct {
	layout *types.Layout
}

// New creates a decoder over the given layout.
func New(layout *types.Layout) *Decoder {
	return &Decoder{layout: layout}
}

// Decode decodes one frame.
//
// An identifier absent from the layout yields StatusUnknown with no
// error recorded. Otherwise the payload is reconciled to the layout's
// expected length, then every signal is extracted in declared order.
// The first extraction failure fails the whole frame; the adjustment,
// if one was made, is reported either way since it is independent of
// extraction outcome.
func (d *Decoder) Decode(frame types.Frame) types.DecodeResult {
	def, ok := d.layout.Lookup(frame.ID)
	if !ok {
		return types.DecodeResult{Status: types.StatusUnknown}
	}

	payload, adjustment := Reconcile(frame.ID, frame.Timestamp, frame.Data, int(def.Length))

	signals := make([]types.DecodedSignal, 0, len(def.Signals))
	for i := range def.Signals {
		sig, err := Extract(payload, &def.Signals[i])
		if err != nil {
			return types.DecodeResult{
				Status:     types.StatusFailed,
				Message:    def.Name,
				Adjustment: adjustment,
				Err: &types.DecodeError{
					ID:        frame.ID,
					Timestamp: frame.Timestamp,
					Message:   err.Error(),
				},
			}
		}
		signals = append(signals, sig)
	}

	return types.DecodeResult{
		Status:     types.StatusDecoded,
		Message:    def.Name,
		Signals:    signals,
		Adjustment: adjustment,
	}
}

// Layout returns the decoder's layout table.
func (d *Decoder) Layout() *types.Layout {
	return d.layout
}
