// Package threadpool dispatches opaque one-shot jobs onto a bounded set
// of workers, with three interchangeable realizations: a naive
// goroutine-per-job pool, a shared-queue pool of long-lived workers with
// panic recovery, and a semaphore-bounded pool delegating to
// golang.org/x/sync.
package threadpool

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Job is a no-argument, owns-its-captures unit of work that runs once.
type Job func()

// Pool dispatches jobs onto workers.
type Pool interface {
	Spawn(job Job)
}

func resolveSize(n int) int {
	if n == 0 {
		return runtime.NumCPU()
	}
	return n
}

// NaivePool spawns a fresh goroutine per job; it does not bound
// concurrency.
type NaivePool struct{}

// NewNaivePool builds a NaivePool. n is accepted for interface symmetry
// with the other pool constructors but ignored: nothing is bounded.
func NewNaivePool(n int) *NaivePool {
	return &NaivePool{}
}

// Spawn runs job on a brand new goroutine.
func (p *NaivePool) Spawn(job Job) {
	go job()
}

// SharedQueuePool runs n long-lived workers pulling jobs from one shared
// channel. A worker whose job panics is replaced so the pool's effective
// worker count never drops.
type SharedQueuePool struct {
	jobs chan Job
	log  *zap.SugaredLogger
}

// NewSharedQueuePool starts n workers (or runtime.NumCPU() if n == 0)
// reading from a shared job channel.
func NewSharedQueuePool(n int, log *zap.SugaredLogger) *SharedQueuePool {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &SharedQueuePool{jobs: make(chan Job), log: log}
	for i := 0; i < resolveSize(n); i++ {
		spawnWorker(p.jobs, p.log)
	}
	return p
}

// spawnWorker launches a goroutine that ranges over jobs until the channel
// is closed. If a job panics, the deferred recover spawns a replacement
// worker sharing the same channel before this goroutine exits, so the
// pool's live worker count never drops.
func spawnWorker(jobs chan Job, log *zap.SugaredLogger) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("threadpool: worker panicked, spawning replacement", "panic", r)
				spawnWorker(jobs, log)
			}
		}()
		for job := range jobs {
			job()
		}
	}()
}

// Spawn enqueues job. Job order between workers is unspecified; the queue
// itself is FIFO.
func (p *SharedQueuePool) Spawn(job Job) {
	p.jobs <- job
}

// Close closes the job channel, causing idle workers to exit once they
// finish any in-flight job. It does not block on in-flight jobs.
func (p *SharedQueuePool) Close() {
	close(p.jobs)
}

// ExternalPool delegates admission control to golang.org/x/sync/semaphore.
// Spawn blocks until one of n slots is free, bounding the number of jobs
// running at once. NaivePool has no such bound; SharedQueuePool's Spawn
// likewise blocks until an idle worker receives the job.
type ExternalPool struct {
	sem *semaphore.Weighted
}

// NewExternalPool builds a pool bounded to n concurrent jobs (or
// runtime.NumCPU() if n == 0).
func NewExternalPool(n int) *ExternalPool {
	return &ExternalPool{sem: semaphore.NewWeighted(int64(resolveSize(n)))}
}

// Spawn acquires a semaphore slot (blocking if the pool is saturated) and
// runs job on a new goroutine, releasing the slot on completion.
func (p *ExternalPool) Spawn(job Job) {
	_ = p.sem.Acquire(context.Background(), 1)
	go func() {
		defer p.sem.Release(1)
		job()
	}()
}
