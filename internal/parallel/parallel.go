// Package parallel runs data-parallel loops over index ranges.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunksPerWorker oversubscribes each worker so uneven chunks balance out.
const chunksPerWorker = 4

// Workers normalizes a requested worker count. Zero or negative values
// select GOMAXPROCS.
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// For splits [0, n) into contiguous chunks and calls fn(lo, hi) for each of
// them on at most workers goroutines. It returns when every chunk is done.
// Chunks never overlap, so fn may write to disjoint slices of shared output
// without further synchronization.
func For(workers, n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers = Workers(workers)
	if workers == 1 || n == 1 {
		fn(0, n)
		return
	}

	chunks := min(workers*chunksPerWorker, n)
	size := (n + chunks - 1) / chunks

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// Each calls fn(i) for every i in [0, n) using For.
func Each(workers, n int, fn func(i int)) {
	For(workers, n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			fn(i)
		}
	})
}
