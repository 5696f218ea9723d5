// Package worker bounds the number of concurrently in-flight tasks.
package worker

import (
	"sync"
)

// Pool is a semaphore-bounded worker pool.
type Pool struct {
	wg    sync.WaitGroup
	slots chan struct{}
}

// NewPool creates a pool allowing at most size concurrent tasks. A size
// below one is treated as one.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Submit schedules task on its own goroutine. The task waits for a free
// slot before it starts, so at most size tasks run at once; Submit itself
// never blocks the caller.
func (p *Pool) Submit(task func()) {
	p.wg.Add(1)

	go func() {
		p.slots <- struct{}{}
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		task()
	}()
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
