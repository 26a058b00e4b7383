// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/cartograph/ledger"
)

// Item pairs a candidate record with its content hash.
type Item[T any] struct {
	Hash  string
	Value T
}

// ItemError records one failed transform. The item stays un-ledgered and is
// retried on the next orchestrator invocation.
type ItemError struct {
	Hash string
	Err  error
}

// Outcome aggregates a stage run. Item-level errors are returned as values
// here rather than bubbling up; the abort threshold is checked explicitly by
// the runner.
type Outcome struct {
	Candidates int
	Skipped    int
	Processed  int
	Failed     int
	Errors     []ItemError
	Aborted    bool
}

// RunnerConfig tunes the bounded worker pool and checkpointing.
type RunnerConfig struct {
	// Concurrency is the worker pool size. Keep conservative for
	// rate-limited external services. Default 4.
	Concurrency int

	// CheckpointEvery flushes the ledger after this many successful items.
	// Default 50.
	CheckpointEvery int

	// CheckpointInterval flushes the ledger at least this often while the
	// run is in flight. Default 30s.
	CheckpointInterval time.Duration

	// AbortThreshold stops the stage after this many consecutive failures
	// (an expired API key should not burn a whole dataset of calls).
	// Default 10; zero disables.
	AbortThreshold int

	// Label names the stage in progress output. Set per stage.
	Label string

	// Progress receives throughput lines while the run is in flight.
	// Nil disables reporting.
	Progress io.Writer

	Logger *slog.Logger
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.CheckpointEvery == 0 {
		c.CheckpointEvery = 50
	}
	if c.CheckpointInterval == 0 {
		c.CheckpointInterval = 30 * time.Second
	}
	if c.AbortThreshold == 0 {
		c.AbortThreshold = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Run executes transform over every item whose hash the ledger has not seen,
// on a bounded worker pool. Successful items are marked done (and their
// output must already have been emitted by transform, in that order);
// failures are recorded and left un-ledgered. The ledger is flushed at
// checkpoint intervals and once at the end, so a crash loses at most one
// interval of completed work.
//
// Run returns a non-nil error only for whole-stage conditions: external
// cancellation or the consecutive-failure abort.
func Run[T any](ctx context.Context, cfg RunnerConfig, items []Item[T], led *ledger.Ledger, transform func(context.Context, Item[T]) error) (*Outcome, error) {
	cfg = cfg.withDefaults()

	out := &Outcome{Candidates: len(items)}
	pending := make([]Item[T], 0, len(items))
	for _, it := range items {
		if led.Contains(it.Hash) {
			out.Skipped++
			continue
		}
		pending = append(pending, it)
	}
	if len(pending) == 0 {
		return out, nil
	}

	var tracker *ProgressTracker
	if cfg.Progress != nil {
		tracker = NewProgressTracker(cfg.Progress, cfg.Label, len(pending), len(pending)/100)
	}

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu          sync.Mutex // guards out.Errors and counters below
		wg          sync.WaitGroup
		consecutive atomic.Int64
		successes   atomic.Int64
		aborted     atomic.Bool
	)

	// Time-based checkpointing alongside the count-based one.
	flushDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.CheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-flushDone:
				return
			case <-ticker.C:
				if err := led.Flush(); err != nil {
					cfg.Logger.Error("checkpoint flush failed", "err", err)
				}
			}
		}
	}()

	for _, it := range pending {
		it := it
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			// Items not yet started when the run is cancelled stay
			// pending for the next invocation.
			if runCtx.Err() != nil {
				return
			}

			if err := transform(runCtx, it); err != nil {
				if runCtx.Err() != nil && !aborted.Load() {
					// Cancellation racing the transform; not a real failure.
					return
				}
				if tracker != nil {
					tracker.Increment(1)
				}
				mu.Lock()
				out.Failed++
				out.Errors = append(out.Errors, ItemError{Hash: it.Hash, Err: err})
				mu.Unlock()
				cfg.Logger.Warn("item transform failed", "hash", it.Hash, "err", err)

				if cfg.AbortThreshold > 0 && consecutive.Add(1) >= int64(cfg.AbortThreshold) {
					if aborted.CompareAndSwap(false, true) {
						cfg.Logger.Error("aborting stage", "consecutiveFailures", cfg.AbortThreshold)
					}
					cancel()
				}
				return
			}

			consecutive.Store(0)
			led.MarkDone(it.Hash)
			mu.Lock()
			out.Processed++
			mu.Unlock()
			if tracker != nil {
				tracker.Increment(1)
			}

			if n := successes.Add(1); cfg.CheckpointEvery > 0 && n%int64(cfg.CheckpointEvery) == 0 {
				if err := led.Flush(); err != nil {
					cfg.Logger.Error("checkpoint flush failed", "err", err)
				}
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			out.Failed++
			out.Errors = append(out.Errors, ItemError{Hash: it.Hash, Err: submitErr})
			mu.Unlock()
		}
	}

	wg.Wait()
	close(flushDone)
	if tracker != nil {
		tracker.Finish()
	}

	// Whatever completed before interruption is persisted.
	if err := led.Flush(); err != nil {
		return out, err
	}

	if aborted.Load() {
		out.Aborted = true
		return out, fmt.Errorf("%w: %d consecutive", ErrStageAborted, cfg.AbortThreshold)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
