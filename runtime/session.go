// Package runtime orchestrates decode sessions end to end: reading
// frames from a candump log, decoding them against a loaded layout,
// folding statistics, and handing rows to the ingestion policy.
package runtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/canmill/canlog"
	"github.com/pithecene-io/canmill/decode"
	"github.com/pithecene-io/canmill/log"
	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/stats"
	"github.com/pithecene-io/canmill/types"
)

// flushTimeout bounds the best-effort policy flush on termination.
const flushTimeout = 30 * time.Second

// FrameSource yields frames in log order.
// Next returns io.EOF when the source is exhausted.
type FrameSource interface {
	Next() (types.Frame, error)
}

// SessionConfig configures a single decode session.
type SessionConfig struct {
	// Input is the candump log path. Files ending in .gz are
	// decompressed transparently.
	Input string
	// Schema is the DBC path, recorded in logs and reports.
	Schema string
	// Layout is the loaded message layout table.
	Layout *types.Layout
	// Policy is the row ingestion policy.
	Policy policy.Policy
	// RunID identifies the session in logs and reports.
	// If empty, a fresh UUID is assigned.
	RunID string
	// Workers is the decode worker count. Values below 2 select the
	// sequential path.
	Workers int
	// BatchSize is the frames-per-batch granularity for parallel
	// decode. If zero, DefaultBatchSize.
	BatchSize int
	// Source overrides Input as the frame source (for testing).
	Source FrameSource
	// Logger overrides the session logger (for testing).
	Logger *log.Logger
}

// SessionResult is the result of a decode session.
type SessionResult struct {
	// RunID is the session identity.
	RunID string
	// Input is the candump log path ("" when a source override fed
	// the session).
	Input string
	// Schema is the DBC path, informational.
	Schema string
	// Outcome is the terminal classification.
	Outcome Outcome
	// Duration is the total session duration.
	Duration time.Duration
	// PolicyStats is the row ingestion statistics.
	PolicyStats policy.Stats
	// Stats is the decode statistics snapshot.
	Stats stats.Snapshot
	// FramesRead is the number of frames read from the source,
	// including frames past a terminating failure.
	FramesRead int64
	// LinesSkipped is the number of non-blank undecodable log lines.
	LinesSkipped int64
}

// Session orchestrates a single decode session.
type Session struct {
	config    *SessionConfig
	logger    *log.Logger
	decoder   *decode.Decoder
	collector *stats.Collector

	framesRead atomic.Int64
	startTime  time.Time
}

// NewSession creates a session from the config.
// Returns an error if the config is incomplete.
func NewSession(config *SessionConfig) (*Session, error) {
	if config.Layout == nil {
		return nil, fmt.Errorf("invalid session config: layout is required")
	}
	if config.Policy == nil {
		return nil, fmt.Errorf("invalid session config: policy is required")
	}
	if config.Input == "" && config.Source == nil {
		return nil, fmt.Errorf("invalid session config: input path is required")
	}

	if config.RunID == "" {
		config.RunID = uuid.New().String()
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunID)
	}

	return &Session{
		config:    config,
		logger:    logger,
		decoder:   decode.New(config.Layout),
		collector: stats.NewCollector(),
	}, nil
}

// Execute runs the session end-to-end.
//
// Execution flow:
//  1. Open the frame source
//  2. Decode frames, folding stats and ingesting rows
//  3. Flush policy (best effort, all termination paths)
//  4. Classify outcome
//  5. Return result
//
// Failures are encoded in the result outcome, never returned.
func (s *Session) Execute(ctx context.Context) *SessionResult {
	s.startTime = time.Now()

	s.logger.Info("starting session", map[string]any{
		"input":    s.config.Input,
		"schema":   s.config.Schema,
		"messages": s.config.Layout.Len(),
		"workers":  s.workers(),
	})

	src := s.config.Source
	if src == nil {
		scanner, err := canlog.Open(s.config.Input)
		if err != nil {
			s.logger.Error("failed to open input", map[string]any{
				"error": err.Error(),
			})
			// Best-effort flush even on open failure for strict
			// termination semantics.
			s.flushPolicy(ctx)
			return s.buildResult(Outcome{
				Status:  OutcomeInvalidInput,
				Message: fmt.Sprintf("failed to open input: %v", err),
			}, nil)
		}
		defer scanner.Close()
		src = scanner
	}

	var ingErr error
	if s.workers() > 1 {
		ingErr = s.ingestParallel(ctx, src)
	} else {
		ingErr = s.ingestSequential(ctx, src)
	}

	// Always attempt policy flush (best effort) on all termination
	// paths. WithoutCancel preserves context values while ignoring
	// parent cancellation.
	flushErr := s.flushPolicy(ctx)

	var outcome Outcome
	switch {
	case IsPolicyError(ingErr):
		outcome = Outcome{
			Status:  OutcomeError,
			Message: fmt.Sprintf("policy failure: %v", ingErr),
		}
	case IsCanceledError(ingErr):
		outcome = Outcome{
			Status:  OutcomeCrash,
			Message: fmt.Sprintf("session canceled: %v", ingErr),
		}
	case ingErr != nil:
		outcome = Outcome{
			Status:  OutcomeCrash,
			Message: fmt.Sprintf("stream error: %v", ingErr),
		}
	case flushErr != nil:
		outcome = Outcome{
			Status:  OutcomeError,
			Message: fmt.Sprintf("policy flush failed: %v", flushErr),
		}
	default:
		outcome = Outcome{
			Status:  OutcomeCompleted,
			Message: "session completed successfully",
		}
	}

	s.logger.Info("session completed", map[string]any{
		"outcome":  outcome.Status,
		"frames":   s.framesRead.Load(),
		"duration": time.Since(s.startTime).String(),
	})

	return s.buildResult(outcome, src)
}

// workers returns the effective decode worker count.
func (s *Session) workers() int {
	if s.config.Workers < 1 {
		return 1
	}
	return s.config.Workers
}

// flushPolicy flushes the policy with a bounded context, logging
// failures instead of aborting on them.
func (s *Session) flushPolicy(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	if err := s.config.Policy.Flush(flushCtx); err != nil {
		s.logger.Warn("policy flush failed (best effort)", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// buildResult constructs the final session result.
func (s *Session) buildResult(outcome Outcome, src FrameSource) *SessionResult {
	result := &SessionResult{
		RunID:       s.config.RunID,
		Input:       s.config.Input,
		Schema:      s.config.Schema,
		Outcome:     outcome,
		Duration:    time.Since(s.startTime),
		PolicyStats: s.config.Policy.Stats(),
		Stats:       s.collector.Snapshot(),
		FramesRead:  s.framesRead.Load(),
	}

	if counter, ok := src.(interface{ Skipped() int64 }); ok {
		result.LinesSkipped = counter.Skipped()
	}

	return result
}
