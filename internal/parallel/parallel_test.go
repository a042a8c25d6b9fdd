package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForRangeCoversEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}

	n := 1000
	hits := make([]int32, n)
	var calls atomic.Int32
	ForRange(n, func(lo, hi int) {
		calls.Add(1)
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		require.Equal(t, int32(1), h, "index %d", i)
	}
	assert.Greater(t, calls.Load(), int32(1))
}

func TestForRangeSequentialFallback(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		n    int
	}{
		{"disabled", Sequential(), 100000},
		{"small", DefaultConfig(), 10},
		{"single worker", Config{Enabled: true, NumWorkers: 1, MinChunkSize: 1}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			ForRange(tt.n, func(lo, hi int) {
				calls++
				assert.Equal(t, 0, lo)
				assert.Equal(t, tt.n, hi)
			}, tt.cfg)
			assert.Equal(t, 1, calls)
		})
	}

	ForRange(0, func(_, _ int) { t.Fatal("called for empty range") }, DefaultConfig())
}

func TestWorkers(t *testing.T) {
	var sum atomic.Int64
	err := Workers(context.Background(), 8, func(_ context.Context, id int) error {
		sum.Add(int64(id))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(28), sum.Load())
}

func TestWorkersFirstErrorCancels(t *testing.T) {
	boom := errors.New("boom")
	err := Workers(context.Background(), 4, func(ctx context.Context, id int) error {
		if id == 2 {
			return boom
		}
		<-ctx.Done()
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "worker 2")
}

func TestWorkersRecoversPanic(t *testing.T) {
	err := Workers(context.Background(), 2, func(_ context.Context, id int) error {
		if id == 1 {
			panic("bad shard")
		}
		return nil
	})
	assert.ErrorContains(t, err, "bad shard")
}
