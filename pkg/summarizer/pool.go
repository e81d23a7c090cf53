package summarizer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vedmemory/ved/pkg/logger"
)

// pool runs submitted jobs on a fixed number of goroutines.
type pool struct {
	jobs    chan func()
	wg      sync.WaitGroup
	stopped atomic.Bool
	log     logger.Logger
}

func newPool(workers int, log logger.Logger) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{
		jobs: make(chan func()),
		log:  log,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// submit blocks until a worker takes the job.
func (p *pool) submit(job func()) error {
	if p.stopped.Load() {
		return fmt.Errorf("summarizer: pool stopped")
	}
	p.jobs <- job
	return nil
}

// stop waits for in-flight jobs. submit must not be called concurrently.
func (p *pool) stop() {
	if p.stopped.Swap(true) {
		return
	}
	close(p.jobs)
	p.wg.Wait()
}

func (p *pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *pool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("summary job panicked", "worker", id, "panic", r)
		}
	}()
	job()
}
