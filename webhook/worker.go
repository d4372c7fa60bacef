package webhook

import "sync"

// workerPool bounds the number of concurrent webhook deliveries so a slow
// sink cannot pile up unbounded goroutines.
type workerPool struct {
	workers chan struct{}
	wg      sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{
		workers: make(chan struct{}, size),
	}
}

// submit schedules task and returns immediately. The semaphore slot is
// acquired inside the spawned goroutine so a saturated pool never blocks
// the submitting caller.
func (p *workerPool) submit(task func()) {
	p.wg.Add(1)
	go func() {
		p.workers <- struct{}{}
		defer func() {
			<-p.workers
			p.wg.Done()
		}()
		task()
	}()
}

// wait blocks until all submitted tasks finish. Used by shutdown and tests.
func (p *workerPool) wait() {
	p.wg.Wait()
}
