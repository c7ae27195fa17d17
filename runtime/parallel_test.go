package runtime

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/types"
)

// mixedFrames builds a deterministic traffic mix: decodable frames,
// short frames needing padding, frames of a broken layout, and
// unknown identifiers.
func mixedFrames(n int) []types.Frame {
	frames := make([]types.Frame, 0, n)
	for i := 0; i < n; i++ {
		ts := 1700000000.0 + float64(i)/1000.0
		switch i % 5 {
		case 0, 1:
			frames = append(frames, sessionFrame(ts, 0x2B4, byte(i), byte(i>>3), 0x50, 0, 0, 0, 0, 0))
		case 2:
			frames = append(frames, sessionFrame(ts, 0x3FF, byte(i), 0x01))
		case 3:
			frames = append(frames, sessionFrame(ts, 0x2B4, byte(i), byte(i)))
		default:
			frames = append(frames, sessionFrame(ts, 0x700, 0xFF))
		}
	}
	return frames
}

func runSession(t *testing.T, frames []types.Frame, workers, batchSize int) (*SessionResult, *policy.StubSink) {
	t.Helper()
	sink := policy.NewStubSink()
	session, err := NewSession(&SessionConfig{
		Input:     "stub.log",
		Layout:    sessionLayout(t),
		Policy:    policy.NewStrictPolicy(sink),
		Workers:   workers,
		BatchSize: batchSize,
		Source:    &stubSource{frames: frames},
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return session.Execute(context.Background()), sink
}

func TestParallel_MatchesSequential(t *testing.T) {
	frames := mixedFrames(137)

	seq, seqSink := runSession(t, frames, 1, 0)
	par, parSink := runSession(t, frames, 4, 10)

	if seq.Outcome.Status != OutcomeCompleted || par.Outcome.Status != OutcomeCompleted {
		t.Fatalf("outcomes = %q / %q, want completed / completed", seq.Outcome.Status, par.Outcome.Status)
	}
	if seq.FramesRead != par.FramesRead {
		t.Errorf("FramesRead = %d sequential, %d parallel", seq.FramesRead, par.FramesRead)
	}
	if !reflect.DeepEqual(seq.Stats, par.Stats) {
		t.Errorf("stats snapshots diverge:\nsequential: %+v\nparallel:   %+v", seq.Stats, par.Stats)
	}
	if !reflect.DeepEqual(seqSink.Rows, parSink.Rows) {
		t.Fatalf("sink rows diverge: %d sequential, %d parallel", len(seqSink.Rows), len(parSink.Rows))
	}
}

func TestParallel_RowOrder(t *testing.T) {
	frames := make([]types.Frame, 0, 60)
	for i := 0; i < 60; i++ {
		frames = append(frames, sessionFrame(float64(i), 0x2B4, byte(i), 0x01, 0x20, 0, 0, 0, 0, 0))
	}

	result, sink := runSession(t, frames, 3, 7)

	if result.Outcome.Status != OutcomeCompleted {
		t.Fatalf("Outcome.Status = %q (%s), want completed", result.Outcome.Status, result.Outcome.Message)
	}
	if len(sink.Rows) != 60 {
		t.Fatalf("sink rows = %d, want 60", len(sink.Rows))
	}
	for i := 1; i < len(sink.Rows); i++ {
		if sink.Rows[i].Timestamp <= sink.Rows[i-1].Timestamp {
			t.Fatalf("row %d out of order: %v after %v", i, sink.Rows[i].Timestamp, sink.Rows[i-1].Timestamp)
		}
	}
}

func TestParallel_PolicyFailure(t *testing.T) {
	sink := policy.NewStubSink()
	sink.SetError(errors.New("bucket gone"))
	session, err := NewSession(&SessionConfig{
		Input:     "stub.log",
		Layout:    sessionLayout(t),
		Policy:    policy.NewStrictPolicy(sink),
		Workers:   4,
		BatchSize: 8,
		Source:    &stubSource{frames: mixedFrames(100)},
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	result := session.Execute(context.Background())

	if result.Outcome.Status != OutcomeError {
		t.Fatalf("Outcome.Status = %q, want %q", result.Outcome.Status, OutcomeError)
	}
	if !strings.Contains(result.Outcome.Message, "policy failure") {
		t.Errorf("Message = %q, want policy failure", result.Outcome.Message)
	}
}

func TestParallel_StreamError(t *testing.T) {
	sink := policy.NewStubSink()
	session, err := NewSession(&SessionConfig{
		Input:     "stub.log",
		Layout:    sessionLayout(t),
		Policy:    policy.NewStrictPolicy(sink),
		Workers:   2,
		BatchSize: 10,
		Source: &stubSource{
			frames: mixedFrames(25),
			err:    errors.New("read log: input/output error"),
		},
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	result := session.Execute(context.Background())

	if result.Outcome.Status != OutcomeCrash {
		t.Fatalf("Outcome.Status = %q, want %q", result.Outcome.Status, OutcomeCrash)
	}
	// Everything read before the fault still decoded.
	if result.FramesRead != 25 || result.Stats.TotalFrames != 25 {
		t.Errorf("frames = %d read / %d folded, want 25/25", result.FramesRead, result.Stats.TotalFrames)
	}
}

func TestParallel_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := NewSession(&SessionConfig{
		Input:   "stub.log",
		Layout:  sessionLayout(t),
		Policy:  policy.NewStrictPolicy(policy.NewStubSink()),
		Workers: 4,
		Source:  &stubSource{frames: mixedFrames(50)},
		Logger:  quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	result := session.Execute(ctx)

	if result.Outcome.Status != OutcomeCrash {
		t.Fatalf("Outcome.Status = %q, want %q", result.Outcome.Status, OutcomeCrash)
	}
	if !strings.Contains(result.Outcome.Message, "canceled") {
		t.Errorf("Message = %q, want canceled", result.Outcome.Message)
	}
}
