// Package workerpool provides the fixed-size goroutine pool the constraint
// builder fans scan-match jobs out to. The rdk codebase has no dedicated
// pool library; every long-lived goroutine it spawns goes through
// utils.PanicCapturingGo directly (see grpc/server.Server.DoAction). This
// pool is built the same way: a fixed number of worker goroutines, each
// started with PanicCapturingGo, pulling closures off a channel.
package workerpool

import (
	"sync"

	"go.viam.com/utils"
)

// Pool runs submitted jobs on a fixed number of worker goroutines.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// New starts a pool with numWorkers goroutines. numWorkers must be >= 1.
func New(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	p := &Pool{jobs: make(chan func())}
	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		utils.PanicCapturingGo(func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		})
	}
	return p
}

// Submit enqueues job to run on the next free worker. It blocks until a
// worker picks it up.
func (p *Pool) Submit(job func()) {
	p.jobs <- job
}

// Close stops accepting new jobs and waits for every in-flight job to
// finish. It must only be called once.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
