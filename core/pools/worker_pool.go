package pools

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work
type Task func()

var (
	ErrInvalidPoolSize = errors.New("invalid worker pool size")
	ErrPoolClosed      = errors.New("worker pool is closed")
)

// WorkerPool runs tasks on a fixed set of goroutines fed from one shared FIFO queue
type WorkerPool struct {
	numWorkers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	wg           sync.WaitGroup
	shutdownOnce sync.Once

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksPanicked  atomic.Uint64
		busyWorkers    atomic.Int64
	}
}

// NewWorkerPool starts numWorkers workers. It fails with ErrInvalidPoolSize
// when numWorkers is not positive, in which case nothing is started.
func NewWorkerPool(numWorkers int) (*WorkerPool, error) {
	if numWorkers <= 0 {
		return nil, ErrInvalidPoolSize
	}

	pool := &WorkerPool{
		numWorkers: numWorkers,
	}
	pool.cond = sync.NewCond(&pool.mu)

	pool.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.run(i)
	}

	return pool, nil
}

// Execute enqueues a task for whichever worker frees up first.
// It never waits for the task to run.
func (p *WorkerPool) Execute(task Task) error {
	if task == nil {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	p.stats.tasksSubmitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// next blocks until a task is available. ok is false once the queue is
// closed and drained.
func (p *WorkerPool) next() (task Task, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}

	task = p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}

// run is the main loop for a worker goroutine
func (p *WorkerPool) run(id int) {
	defer p.wg.Done()

	for {
		task, ok := p.next()
		if !ok {
			return
		}
		p.runTask(id, task)
	}
}

// runTask executes outside the queue lock. A panicking task still counts as run.
func (p *WorkerPool) runTask(id int, task Task) {
	p.stats.busyWorkers.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.stats.tasksPanicked.Add(1)
			log.Printf("worker %d: task panicked: %v", id, r)
		}
		p.stats.busyWorkers.Add(-1)
		p.stats.tasksCompleted.Add(1)
	}()

	task()
}

// Shutdown closes the queue, lets the workers drain what was already
// submitted and waits for all of them to exit. Safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cond.Broadcast()
	})

	p.wg.Wait()
}

// Size returns the number of workers
func (p *WorkerPool) Size() int {
	return p.numWorkers
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	submitted := p.stats.tasksSubmitted.Load()
	completed := p.stats.tasksCompleted.Load()

	var pending uint64
	if submitted > completed {
		pending = submitted - completed
	}

	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		BusyWorkers:    int(p.stats.busyWorkers.Load()),
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPanicked:  p.stats.tasksPanicked.Load(),
		TasksPending:   pending,
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int
	BusyWorkers    int
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksPanicked  uint64
	TasksPending   uint64
}
