package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/cartograph/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open("test", filepath.Join(t.TempDir(), "test.json"), nil)
	require.NoError(t, err)
	return l
}

func strItems(hashes ...string) []Item[string] {
	items := make([]Item[string], len(hashes))
	for i, h := range hashes {
		items[i] = Item[string]{Hash: h, Value: "v-" + h}
	}
	return items
}

func TestRun_ProcessesAllPending(t *testing.T) {
	led := testLedger(t)
	var calls atomic.Int64

	out, err := Run(context.Background(), RunnerConfig{Concurrency: 3},
		strItems("a", "b", "c", "d"), led,
		func(ctx context.Context, it Item[string]) error {
			calls.Add(1)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 4, out.Processed)
	assert.Equal(t, 0, out.Skipped)
	assert.Equal(t, int64(4), calls.Load())
	assert.True(t, led.Contains("a"))
	assert.True(t, led.Contains("d"))
}

func TestRun_Idempotent(t *testing.T) {
	led := testLedger(t)
	var calls atomic.Int64
	transform := func(ctx context.Context, it Item[string]) error {
		calls.Add(1)
		return nil
	}
	items := strItems("a", "b", "c")

	_, err := Run(context.Background(), RunnerConfig{}, items, led, transform)
	require.NoError(t, err)
	require.Equal(t, int64(3), calls.Load())

	// Re-running the identical input set is a no-op: zero transforms.
	out, err := Run(context.Background(), RunnerConfig{}, items, led, transform)
	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, 3, out.Skipped)
	assert.Equal(t, 0, out.Processed)
}

func TestRun_FailedItemsLeftForRetry(t *testing.T) {
	led := testLedger(t)
	fail := map[string]bool{"b": true, "d": true}

	var calls atomic.Int64
	transform := func(ctx context.Context, it Item[string]) error {
		calls.Add(1)
		if fail[it.Hash] {
			return errors.New("transient")
		}
		return nil
	}

	out, err := Run(context.Background(), RunnerConfig{Concurrency: 1},
		strItems("a", "b", "c", "d", "e"), led, transform)
	require.NoError(t, err, "isolated failures do not fail the stage")
	assert.Equal(t, 3, out.Processed)
	assert.Equal(t, 2, out.Failed)
	require.Len(t, out.Errors, 2)
	assert.False(t, led.Contains("b"))
	assert.False(t, led.Contains("d"))

	// Next invocation retries exactly the failed items.
	fail = map[string]bool{}
	calls.Store(0)
	out, err = Run(context.Background(), RunnerConfig{Concurrency: 1},
		strItems("a", "b", "c", "d", "e"), led, transform)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 2, out.Processed)
	assert.Equal(t, 3, out.Skipped)
}

func TestRun_Resumability(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stage.json")

	// First run: K of N items complete before the ledger is flushed and the
	// process "dies" (we just drop the ledger instance).
	led, err := ledger.Open("stage", path, nil)
	require.NoError(t, err)
	items := strItems("a", "b", "c", "d", "e", "f")
	for _, it := range items[:4] {
		led.MarkDone(it.Hash)
	}
	require.NoError(t, led.Flush())

	// Re-run from the persisted ledger: exactly N-K transforms.
	reloaded, err := ledger.Open("stage", path, nil)
	require.NoError(t, err)
	var calls atomic.Int64
	out, err := Run(context.Background(), RunnerConfig{}, items, reloaded,
		func(ctx context.Context, it Item[string]) error {
			calls.Add(1)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 4, out.Skipped)
	assert.Equal(t, 2, out.Processed)
}

func TestRun_AbortOnConsecutiveFailures(t *testing.T) {
	led := testLedger(t)
	var calls atomic.Int64

	items := strItems("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	out, err := Run(context.Background(),
		RunnerConfig{Concurrency: 1, AbortThreshold: 3},
		items, led,
		func(ctx context.Context, it Item[string]) error {
			calls.Add(1)
			return errors.New("api key expired")
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageAborted)
	assert.True(t, out.Aborted)
	assert.Less(t, calls.Load(), int64(len(items)),
		"abort must prevent burning through the whole dataset")
	assert.Equal(t, 0, led.Count())
}

func TestRun_SuccessResetsConsecutiveCount(t *testing.T) {
	led := testLedger(t)

	// Alternating failures never hit a threshold of 3.
	var n atomic.Int64
	out, err := Run(context.Background(),
		RunnerConfig{Concurrency: 1, AbortThreshold: 3},
		strItems("a", "b", "c", "d", "e", "f"), led,
		func(ctx context.Context, it Item[string]) error {
			if n.Add(1)%2 == 0 {
				return errors.New("flaky")
			}
			return nil
		})

	require.NoError(t, err)
	assert.False(t, out.Aborted)
	assert.Equal(t, 3, out.Processed)
	assert.Equal(t, 3, out.Failed)
}

func TestRun_ContextCancellation(t *testing.T) {
	led := testLedger(t)
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int64
	out, err := Run(ctx, RunnerConfig{Concurrency: 1},
		strItems("a", "b", "c", "d", "e", "f", "g", "h"), led,
		func(ctx context.Context, it Item[string]) error {
			if started.Add(1) == 2 {
				cancel()
			}
			return nil
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// Whatever completed before interruption is ledgered and flushed.
	assert.Equal(t, out.Processed, led.Count())
	assert.Less(t, led.Count(), 8)
}

func TestRun_ConcurrentTransformsBounded(t *testing.T) {
	led := testLedger(t)

	var mu sync.Mutex
	inflight, maxInflight := 0, 0

	_, err := Run(context.Background(), RunnerConfig{Concurrency: 3},
		strItems("a", "b", "c", "d", "e", "f", "g", "h", "i", "j"), led,
		func(ctx context.Context, it Item[string]) error {
			mu.Lock()
			inflight++
			if inflight > maxInflight {
				maxInflight = inflight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inflight--
			mu.Unlock()
			return nil
		})

	require.NoError(t, err)
	assert.LessOrEqual(t, maxInflight, 3)
	assert.GreaterOrEqual(t, maxInflight, 2, "pool should actually run concurrently")
}

func TestRun_CheckpointFlushPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stage.json")
	led, err := ledger.Open("stage", path, nil)
	require.NoError(t, err)

	_, err = Run(context.Background(),
		RunnerConfig{Concurrency: 1, CheckpointEvery: 2},
		strItems("a", "b", "c", "d", "e"), led,
		func(ctx context.Context, it Item[string]) error { return nil })
	require.NoError(t, err)

	reloaded, err := ledger.Open("stage", path, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Count())
}
