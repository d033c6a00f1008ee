// Package batch drives many independent per-item operations through fixed-size chunks.
//
// Chunks run one after another; the items of a chunk run concurrently and the chunk is
// joined before the next one starts, so at most Size operations are ever in flight.
// A failing item never aborts the run: its failure is handed to a FailureHandler that
// either drops the item or substitutes a fallback value.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultSize is used when Config.Size is not positive.
const DefaultSize = 10

// Config controls chunking.
type Config struct {
	Size   int
	Logger *slog.Logger
}

// Op is the per-item operation.
type Op[T, R any] func(ctx context.Context, item T) (R, error)

// Failure describes one item whose operation failed or was never started.
type Failure[T any] struct {
	Index int
	Item  T
	Err   error
}

// FailureHandler decides what happens to a failed item: keep=false drops it,
// keep=true puts the returned fallback value in its place.
type FailureHandler[T, R any] func(f Failure[T]) (fallback R, keep bool)

// Drop is the FailureHandler that removes failed items from the result.
func Drop[T, R any](Failure[T]) (R, bool) {
	var zero R
	return zero, false
}

// Run applies op to every item and returns the kept results in input order.
// When ctx is cancelled no further chunks are started; their items are passed to onFailure with ctx.Err().
func Run[T, R any](ctx context.Context, cfg Config, items []T, op Op[T, R], onFailure FailureHandler[T, R]) []R {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	if onFailure == nil {
		onFailure = Drop[T, R]
	}

	outcomes := make([]R, len(items))
	errs := make([]error, len(items))
	total := (len(items) + size - 1) / size

	for start, chunk := 0, 1; start < len(items); start, chunk = start+size, chunk+1 {
		end := min(start+size, len(items))

		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				errs[i] = err
			}
			break
		}

		if cfg.Logger != nil {
			cfg.Logger.Debug("processing batch", "batch", fmt.Sprintf("%d/%d", chunk, total), "items", end-start)
		}

		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			g.Go(func() error {
				outcomes[i], errs[i] = call(ctx, op, items[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	results := make([]R, 0, len(items))
	for i, item := range items {
		if errs[i] == nil {
			results = append(results, outcomes[i])
			continue
		}
		if fallback, keep := onFailure(Failure[T]{Index: i, Item: item, Err: errs[i]}); keep {
			results = append(results, fallback)
		}
	}
	return results
}

func call[T, R any](ctx context.Context, op Op[T, R], item T) (out R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx, item)
}
