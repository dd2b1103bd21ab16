package magicrows

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchSchedulerBatching(t *testing.T) {
	stub := NewStubHandler()
	for i := 0; i < 5; i++ {
		stub.Reply("sentiment", StubReply{
			Text:  `{"sentiment": "positive"}`,
			Usage: Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		})
	}
	rp := newTestProcessor(t, sentimentConfig(), stub)

	var progressed []Progress
	sched := &batchScheduler{
		proc:      rp,
		batchSize: 2,
		newRunner: func(ctx context.Context) Runner { return newGroupRunner(ctx, 2) },
		progress:  func(p Progress) { progressed = append(progressed, p) },
		log:       slog.Default(),
	}

	table := NewTable([]string{"review"},
		Row{"review": "a"}, Row{"review": "b"}, Row{"review": "c"},
		Row{"review": "d"}, Row{"review": "e"},
	)
	results, stats, err := sched.run(context.Background(), table, 5)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 5, stats.Usage.Calls)
	assert.Equal(t, 10, stats.Usage.TotalTokens)
	require.Len(t, results, 5)
	for i, res := range results {
		require.NotNil(t, res, "row %d missing", i)
		assert.Equal(t, i, res.index)
		assert.Equal(t, "positive", res.record["sentiment"])
	}
	require.Len(t, progressed, 3)
	assert.Equal(t, 2, progressed[0].RowsDone)
	assert.Equal(t, 5, progressed[2].RowsDone)
}

func TestBatchSchedulerRespectsLimit(t *testing.T) {
	stub := NewStubHandler().Reply("sentiment",
		StubReply{Text: `{"sentiment": "positive"}`},
		StubReply{Text: `{"sentiment": "positive"}`},
	)
	rp := newTestProcessor(t, sentimentConfig(), stub)
	sched := &batchScheduler{
		proc:      rp,
		batchSize: 10,
		newRunner: func(ctx context.Context) Runner { return newGroupRunner(ctx, 10) },
		log:       slog.Default(),
	}

	table := NewTable([]string{"review"},
		Row{"review": "a"}, Row{"review": "b"}, Row{"review": "c"}, Row{"review": "d"},
	)
	results, stats, err := sched.run(context.Background(), table, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.RowsProcessed)
	assert.Len(t, results, 2)
	assert.Len(t, stub.Calls(), 2)
}

func TestGroupRunnerBoundsConcurrency(t *testing.T) {
	r := newGroupRunner(context.Background(), 1)

	var active, peak int32
	for i := 0; i < 4; i++ {
		r.Go(func() error {
			cur := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		})
	}
	require.NoError(t, r.Wait())
	assert.Equal(t, int32(1), peak)
}
