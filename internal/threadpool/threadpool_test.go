package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNaivePoolRunsAllJobs(t *testing.T) {
	p := NewNaivePool(0)
	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Spawn(func() {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
		})
	}
	wg.Wait()
	require.EqualValues(t, 50, atomic.LoadInt64(&n))
}

func TestSharedQueuePoolRunsAllJobs(t *testing.T) {
	p := NewSharedQueuePool(4, zap.NewNop().Sugar())
	defer p.Close()

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		p.Spawn(func() {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
		})
	}
	wg.Wait()
	require.EqualValues(t, 200, atomic.LoadInt64(&n))
}

func TestSharedQueuePoolSurvivesWorkerPanic(t *testing.T) {
	p := NewSharedQueuePool(2, zap.NewNop().Sugar())
	defer p.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	p.Spawn(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	// Give the panic-recovery goroutine a moment to spawn its replacement
	// before proving the pool still has full capacity.
	time.Sleep(20 * time.Millisecond)

	var n int64
	var wg2 sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg2.Add(1)
		p.Spawn(func() {
			defer wg2.Done()
			atomic.AddInt64(&n, 1)
		})
	}
	wg2.Wait()
	require.EqualValues(t, 20, atomic.LoadInt64(&n))
}

func TestExternalPoolBoundsConcurrency(t *testing.T) {
	p := NewExternalPool(2)

	var current, max int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Spawn(func() {
			defer wg.Done()
			c := atomic.AddInt64(&current, 1)
			for {
				m := atomic.LoadInt64(&max)
				if c <= m || atomic.CompareAndSwapInt64(&max, m, c) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		})
	}
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt64(&max), int64(2))
}
