package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/canmill/stats"
	"github.com/pithecene-io/canmill/types"
)

// DefaultBatchSize is the frames-per-batch granularity for parallel
// decode when the config leaves it unset.
const DefaultBatchSize = 256

// frameBatch is one contiguous slice of the input assigned to a worker.
type frameBatch struct {
	index  int
	frames []types.Frame
}

// batchOutcome carries one worker's decoded batch back to the merger.
type batchOutcome struct {
	index     int
	rows      []types.Row
	collector *stats.Collector
}

// ingestParallel decodes frames with a worker pool while preserving
// sequential semantics: rows reach the policy in source order, and
// worker collectors merge in batch order, so a completed parallel
// session produces the same rows and statistics as a sequential one.
//
// Pipeline shape:
//
//	dispatcher -> jobs -> workers -> outcomes -> merger (this goroutine)
//
// The dispatcher reads contiguous batches off the source. Workers
// decode independently, each folding into a private collector. The
// merger holds out-of-order batches in a reorder buffer and releases
// them strictly by index.
func (s *Session) ingestParallel(ctx context.Context, src FrameSource) error {
	workers := s.workers()
	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan frameBatch, workers)
	outcomes := make(chan batchOutcome, workers)
	readErr := make(chan error, 1)

	// Dispatcher: batch frames until EOF, read error, or cancel.
	go func() {
		defer close(jobs)

		index := 0
		batch := make([]types.Frame, 0, batchSize)

		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			select {
			case jobs <- frameBatch{index: index, frames: batch}:
				index++
				batch = make([]types.Frame, 0, batchSize)
				return true
			case <-pipeCtx.Done():
				return false
			}
		}

		for {
			if err := pipeCtx.Err(); err != nil {
				readErr <- &SessionError{Kind: SessionErrorCanceled, Err: err}
				return
			}

			frame, err := src.Next()
			if errors.Is(err, io.EOF) {
				if !flush() {
					readErr <- &SessionError{Kind: SessionErrorCanceled, Err: pipeCtx.Err()}
				}
				return
			}
			if err != nil {
				// Frames before the error still decode, matching the
				// sequential path.
				flush()
				readErr <- &SessionError{Kind: SessionErrorStream, Err: err}
				return
			}
			s.framesRead.Add(1)

			batch = append(batch, frame)
			if len(batch) >= batchSize {
				if !flush() {
					readErr <- &SessionError{Kind: SessionErrorCanceled, Err: pipeCtx.Err()}
					return
				}
			}
		}
	}()

	// Workers: decode batches with a private collector each.
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				local := stats.NewCollector()
				rows := make([]types.Row, 0, len(batch.frames))
				for _, frame := range batch.frames {
					result := s.decoder.Decode(frame)
					local.Fold(frame, result)
					if result.Status == types.StatusDecoded {
						rows = append(rows, rowFromResult(frame, result))
					}
				}
				select {
				case outcomes <- batchOutcome{index: batch.index, rows: rows, collector: local}:
				case <-pipeCtx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Merger: release batches strictly by index, ingesting rows in
	// source order and merging partial collectors in the same order.
	// After a failure the channel is drained so the pool can exit.
	pending := make(map[int]batchOutcome)
	next := 0
	var mergeErr error

	for outcome := range outcomes {
		if mergeErr != nil {
			continue
		}
		pending[outcome.index] = outcome

		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if err := pipeCtx.Err(); err != nil {
				mergeErr = &SessionError{Kind: SessionErrorCanceled, Err: err}
				cancel()
				break
			}

			s.collector.Merge(ready.collector)
			for _, row := range ready.rows {
				if err := s.config.Policy.IngestRow(ctx, row); err != nil {
					mergeErr = &SessionError{Kind: SessionErrorPolicy, Err: fmt.Errorf("ingest row: %w", err)}
					cancel()
					break
				}
			}
			if mergeErr != nil {
				break
			}
		}
	}

	if mergeErr != nil {
		return mergeErr
	}
	select {
	case err := <-readErr:
		return err
	default:
	}
	return nil
}
