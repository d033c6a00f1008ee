package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any item count, chunk size and failure pattern:
// - the fallback policy yields exactly one result per item, in input order
// - the drop policy yields exactly the successful items, in input order
// - no more than size operations are ever in flight
func TestRunProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	failing := func(item int, modulo int) bool {
		return modulo > 0 && item%modulo == 0
	}

	properties.Property("fallback keeps count and order", prop.ForAll(
		func(n, size, modulo int) bool {
			items := make([]int, n)
			for i := range items {
				items[i] = i
			}
			op := func(ctx context.Context, item int) (int, error) {
				if failing(item, modulo) {
					return 0, errors.New("fail")
				}
				return item, nil
			}
			got := Run(context.Background(), Config{Size: size}, items, op, func(f Failure[int]) (int, bool) {
				return f.Item, true
			})
			if len(got) != n {
				return false
			}
			for i, v := range got {
				if v != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 60),
		gen.IntRange(1, 12),
		gen.IntRange(0, 7),
	))

	properties.Property("drop keeps successes in order", prop.ForAll(
		func(n, size, modulo int) bool {
			items := make([]int, n)
			var want []int
			for i := range items {
				items[i] = i
				if !failing(i, modulo) {
					want = append(want, i)
				}
			}
			op := func(ctx context.Context, item int) (int, error) {
				if failing(item, modulo) {
					return 0, errors.New("fail")
				}
				return item, nil
			}
			got := Run(context.Background(), Config{Size: size}, items, op, Drop[int, int])
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 60),
		gen.IntRange(1, 12),
		gen.IntRange(0, 7),
	))

	properties.Property("in-flight never exceeds size", prop.ForAll(
		func(n, size int) bool {
			var inFlight, peak atomic.Int64
			op := func(ctx context.Context, item int) (int, error) {
				cur := inFlight.Add(1)
				for {
					prev := peak.Load()
					if cur <= prev || peak.CompareAndSwap(prev, cur) {
						break
					}
				}
				inFlight.Add(-1)
				return item, nil
			}
			Run(context.Background(), Config{Size: size}, make([]int, n), op, nil)
			return peak.Load() <= int64(size)
		},
		gen.IntRange(0, 40),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
