package decode

import (
	"errors"
	"fmt"
	"math"

	"github.com/pithecene-io/canmill/types"
)

// ExtractionError reports a signal whose bit field does not fit inside
// the payload it was extracted from.
type ExtractionError struct {
	Signal      string
	StartBit    uint
	BitLength   uint
	PayloadBits uint
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("signal %s: %d bits at start bit %d exceed payload of %d bits",
		e.Signal, e.BitLength, e.StartBit, e.PayloadBits)
}

// AsExtractionError unwraps err to an *ExtractionError if there is one
// in the chain.
func AsExtractionError(err error) (*ExtractionError, bool) {
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr, true
	}
	return nil, false
}

// Extract pulls one signal's bit field out of payload and converts it
// to a physical value.
//
// Little-endian fields take the start bit as the position of the
// field's least significant bit, numbered LSB-first from byte 0, and
// collect ascending bits. Big-endian fields take the start bit as the
// position of the field's most significant bit in byte-wise numbering
// (bit 7 is the MSB of each byte) and collect bits in sawtooth order:
// descending within a byte, then from bit 7 of the next byte.
//
// Integer fields apply two's-complement sign interpretation when the
// signal is signed, then scale and offset. Float fields reinterpret
// the 32- or 64-bit pattern as IEEE-754 before scale and offset. A
// matching value label is returned alongside the physical value.
func Extract(payload []byte, sig *types.SignalDef) (types.DecodedSignal, error) {
	raw, err := rawBits(payload, sig)
	if err != nil {
		return types.DecodedSignal{}, err
	}

	if sig.Float {
		var value float64
		switch sig.BitLength {
		case 32:
			value = float64(math.Float32frombits(uint32(raw)))
		case 64:
			value = math.Float64frombits(raw)
		default:
			return types.DecodedSignal{}, fmt.Errorf("signal %s: float width must be 32 or 64 bits, got %d", sig.Name, sig.BitLength)
		}
		return types.DecodedSignal{
			Name:  sig.Name,
			Value: value*sig.Scale + sig.Offset,
		}, nil
	}

	signed := int64(raw)
	if sig.Signed && raw&(1<<(sig.BitLength-1)) != 0 {
		signed = int64(raw | ^uint64(0)<<sig.BitLength)
	}

	value := float64(raw)
	if sig.Signed {
		value = float64(signed)
	}

	decoded := types.DecodedSignal{
		Name:  sig.Name,
		Value: value*sig.Scale + sig.Offset,
	}
	if label, ok := sig.Labels[signed]; ok {
		decoded.Label = label
	}
	return decoded, nil
}

// rawBits reads the signal's bit field as a raw unsigned integer.
func rawBits(payload []byte, sig *types.SignalDef) (uint64, error) {
	payloadBits := uint(len(payload)) * 8
	var raw uint64

	switch sig.ByteOrder {
	case types.OrderBigEndian:
		// Map the declared MSB position into MSB-first linear numbering;
		// the sawtooth walk ascends there one bit at a time.
		start := 8*(sig.StartBit/8) + 7 - sig.StartBit%8
		if start+sig.BitLength > payloadBits {
			return 0, &ExtractionError{
				Signal:      sig.Name,
				StartBit:    sig.StartBit,
				BitLength:   sig.BitLength,
				PayloadBits: payloadBits,
			}
		}
		for i := uint(0); i < sig.BitLength; i++ {
			pos := start + i
			bit := payload[pos/8] >> (7 - pos%8) & 1
			raw = raw<<1 | uint64(bit)
		}

	default:
		if sig.StartBit+sig.BitLength > payloadBits {
			return 0, &ExtractionError{
				Signal:      sig.Name,
				StartBit:    sig.StartBit,
				BitLength:   sig.BitLength,
				PayloadBits: payloadBits,
			}
		}
		for i := uint(0); i < sig.BitLength; i++ {
			pos := sig.StartBit + i
			bit := payload[pos/8] >> (pos % 8) & 1
			raw |= uint64(bit) << i
		}
	}

	return raw, nil
}
