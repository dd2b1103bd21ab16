package magicrows

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Progress reports scheduler advancement to an optional callback.
type Progress struct {
	Batch     int
	Batches   int
	RowsDone  int
	RowsTotal int
	Usage     Usage
}

// ProgressFunc observes progress after each completed batch.
type ProgressFunc func(Progress)

// batchScheduler walks the table in fixed-size batches. Batches run
// sequentially so rate pressure stays bounded; rows inside a batch run
// concurrently through the Runner.
type batchScheduler struct {
	proc      *rowProcessor
	batchSize int
	newRunner RunnerFactory
	progress  ProgressFunc
	log       *slog.Logger
}

// run processes the first limit rows of the table and returns the
// per-row results indexed by original row position.
func (s *batchScheduler) run(ctx context.Context, t *Table, limit int) ([]*rowResult, *RunStats, error) {
	stats := &RunStats{RowsTotal: t.Len(), RowsProcessed: limit}
	results := make([]*rowResult, limit)

	start := time.Now()
	var mu sync.Mutex

	for offset := 0; offset < limit; offset += s.batchSize {
		end := offset + s.batchSize
		if end > limit {
			end = limit
		}
		stats.Batches++
		s.log.Info("starting batch",
			"batch", stats.Batches, "rows", end-offset, "offset", offset)

		runner := s.newRunner(ctx)
		for i := offset; i < end; i++ {
			index := i
			row := t.Row(index)
			runner.Go(func() error {
				res, err := s.proc.process(ctx, index, row)
				if err != nil {
					return err
				}
				mu.Lock()
				results[index] = res
				stats.Usage.add(res.usage)
				stats.ProviderTime += res.elapsed
				mu.Unlock()
				return nil
			})
		}
		if err := runner.Wait(); err != nil {
			stats.WallTime = time.Since(start)
			return results, stats, err
		}

		if s.progress != nil {
			s.progress(Progress{
				Batch:     stats.Batches,
				Batches:   (limit + s.batchSize - 1) / s.batchSize,
				RowsDone:  end,
				RowsTotal: limit,
				Usage:     stats.Usage,
			})
		}
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		for _, v := range res.record {
			if _, ok := v.(ErrorValue); ok {
				stats.Failures++
			}
		}
	}
	stats.WallTime = time.Since(start)
	return results, stats, nil
}
