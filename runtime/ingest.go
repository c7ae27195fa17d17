package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/canmill/types"
)

// SessionError classifies ingest errors for outcome determination.
type SessionError struct {
	// Kind indicates whether this is a stream error, a policy error,
	// or a cancellation.
	Kind SessionErrorKind
	// Err is the underlying error.
	Err error
}

// SessionErrorKind classifies session errors.
type SessionErrorKind int

const (
	// SessionErrorStream indicates a frame source read error (crash outcome).
	SessionErrorStream SessionErrorKind = iota
	// SessionErrorPolicy indicates a policy failure (error outcome).
	SessionErrorPolicy
	// SessionErrorCanceled indicates context cancellation (crash outcome).
	SessionErrorCanceled
)

func (e *SessionError) Error() string {
	return e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsPolicyError returns true if the error is a policy failure.
func IsPolicyError(err error) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == SessionErrorPolicy
	}
	return false
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == SessionErrorCanceled
	}
	return false
}

// IsStreamError returns true if the error is a frame source read error.
func IsStreamError(err error) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == SessionErrorStream
	}
	return false
}

// rowFromResult shapes a decoded frame into its export row.
// Call only for StatusDecoded results.
func rowFromResult(frame types.Frame, result types.DecodeResult) types.Row {
	return types.Row{
		Timestamp: frame.Timestamp,
		ID:        frame.ID,
		Message:   result.Message,
		Signals:   result.Signals,
	}
}

// ingestSequential decodes frames one at a time in source order.
// Every frame folds into the session collector; decoded frames
// additionally become rows handed to the policy. The first policy
// failure terminates the session with rows before it persisted and
// rows after it never produced.
func (s *Session) ingestSequential(ctx context.Context, src FrameSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return &SessionError{Kind: SessionErrorCanceled, Err: err}
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &SessionError{Kind: SessionErrorStream, Err: err}
		}
		s.framesRead.Add(1)

		result := s.decoder.Decode(frame)
		s.collector.Fold(frame, result)

		if result.Status != types.StatusDecoded {
			continue
		}
		if err := s.config.Policy.IngestRow(ctx, rowFromResult(frame, result)); err != nil {
			return &SessionError{Kind: SessionErrorPolicy, Err: fmt.Errorf("ingest row: %w", err)}
		}
	}
}
