package worker

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/beetlebugorg/vtgeom/pkg/style"
	"github.com/beetlebugorg/vtgeom/pkg/vt"
)

// Job is one encoded tile for ParseTiles.
type Job struct {
	Params TileParameters
	Raw    []byte
}

// ParseTiles decodes and parses many tiles concurrently.
//
// Jobs are handed to workers in Hilbert order of their tile ids, so tiles
// that are close on the map are parsed close in time. Results come back in
// job order; the slot of a failed or empty tile is nil.
//
// The function respects Options:
//   - Workers: number of concurrent parses (defaults to NumCPU)
//   - SkipErrors: continue past failed tiles
//   - Progress: called after each finished tile
//   - ErrorLog: receives a line per failed tile
func ParseTiles(ctx context.Context, jobs []Job, layers *style.LayerIndex, actor Actor, opts Options) ([]*Result, []error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	order := make([]int, len(jobs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return jobs[order[a]].Params.TileID.Canonical.HilbertID() < jobs[order[b]].Params.TileID.Canonical.HilbertID()
	})

	type parseResult struct {
		index  int
		result *Result
		err    error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, len(jobs))
	results := make(chan parseResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				res, err := parseJob(ctx, jobs[index], layers, actor, opts)
				results <- parseResult{index: index, result: res, err: err}
			}
		}()
	}

	for _, index := range order {
		queue <- index
	}
	close(queue)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]*Result, len(jobs))
	var errs []error
	done := 0

	for r := range results {
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(jobs))
		}

		if r.err != nil {
			err := fmt.Errorf("%s: %w", jobs[r.index].Params.TileID, r.err)
			if opts.ErrorLog != nil {
				fmt.Fprintf(opts.ErrorLog, "Error parsing tile: %v\n", err)
			}
			if !opts.SkipErrors {
				// Workers see the cancellation and drain the queue.
				cancel()
				for range results {
				}
				return nil, []error{err}
			}
			errs = append(errs, err)
			continue
		}
		out[r.index] = r.result
	}
	return out, errs
}

func parseJob(ctx context.Context, job Job, layers *style.LayerIndex, actor Actor, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if job.Raw == nil {
		return nil, nil
	}
	data, err := vt.Decode(job.Raw, job.Params.Source)
	if err != nil {
		return nil, err
	}
	return NewTile(job.Params, opts).Parse(ctx, data, job.Raw, layers, actor)
}
