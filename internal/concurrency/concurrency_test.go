package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_CancelsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	p := NewPool(context.Background(), 1)

	p.Go(func(ctx context.Context) error { return boom })
	var sawCancel atomic.Bool
	p.Go(func(ctx context.Context) error {
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return nil
	})

	assert.ErrorIs(t, p.Wait(), boom)
	assert.True(t, sawCancel.Load())
}

func TestNewBestEffortPool_RunsEveryTask(t *testing.T) {
	boom := errors.New("boom")
	p := NewBestEffortPool(context.Background(), 2)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		i := i
		p.Go(func(ctx context.Context) error {
			ran.Add(1)
			if i == 0 {
				return boom
			}
			return ctx.Err()
		})
	}

	require.ErrorIs(t, p.Wait(), boom)
	assert.Equal(t, int32(5), ran.Load())
}

func TestLimitDefaults(t *testing.T) {
	assert.Equal(t, DefaultMaxGoroutines, limit(0))
	assert.Equal(t, 3, limit(3))
}
