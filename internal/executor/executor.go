package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"github.com/muurk/wsduplex/internal/logging"
	"go.uber.org/zap"
)

// ErrShutdown is returned by Shutdown when called twice.
var ErrShutdown = errors.New("executor: already shut down")

// maxBatch bounds how many tasks a worker runs from one strand before
// yielding it back to the ready queue.
const maxBatch = 32

// Options configures an Executor.
type Options struct {
	// Workers is the number of worker goroutines. Zero means GOMAXPROCS.
	Workers int
}

// Executor runs tasks posted to strands on a fixed pool of worker
// goroutines. It is created explicitly and must be shut down explicitly.
type Executor struct {
	mu       sync.Mutex
	cond     *sync.Cond
	ready    *queue.Queue // of *Strand
	stopping bool
	workers  int
	wg       sync.WaitGroup
}

// New starts an executor with its worker pool.
func New(opts Options) *Executor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ex := &Executor{
		ready:   queue.New(),
		workers: workers,
	}
	ex.cond = sync.NewCond(&ex.mu)

	ex.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go ex.work()
	}

	return ex
}

// Workers returns the size of the worker pool.
func (ex *Executor) Workers() int { return ex.workers }

// NewStrand returns a new serial execution context on this executor.
func (ex *Executor) NewStrand() *Strand {
	return &Strand{ex: ex, tasks: queue.New()}
}

// Shutdown stops accepting new tasks, lets the workers finish every task
// already queued, and waits for them to exit or for ctx to be done.
func (ex *Executor) Shutdown(ctx context.Context) error {
	ex.mu.Lock()
	if ex.stopping {
		ex.mu.Unlock()
		return ErrShutdown
	}
	ex.stopping = true
	ex.cond.Broadcast()
	ex.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ex.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor shutdown: %w", ctx.Err())
	}
}

func (ex *Executor) post(s *Strand, fn func()) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.stopping {
		return false
	}

	s.tasks.Add(fn)
	if !s.scheduled {
		s.scheduled = true
		ex.ready.Add(s)
		ex.cond.Signal()
	}
	return true
}

// work is the worker loop. A strand sits in the ready queue or is held by
// exactly one worker while scheduled, which serialises its tasks.
func (ex *Executor) work() {
	defer ex.wg.Done()

	batch := make([]func(), 0, maxBatch)
	for {
		ex.mu.Lock()
		for ex.ready.Length() == 0 && !ex.stopping {
			ex.cond.Wait()
		}
		if ex.ready.Length() == 0 {
			ex.mu.Unlock()
			return
		}

		s := ex.ready.Remove().(*Strand)
		for s.tasks.Length() > 0 && len(batch) < maxBatch {
			batch = append(batch, s.tasks.Remove().(func()))
		}
		ex.mu.Unlock()

		for i, fn := range batch {
			run(fn)
			batch[i] = nil
		}
		batch = batch[:0]

		ex.mu.Lock()
		if s.tasks.Length() > 0 {
			ex.ready.Add(s)
			ex.cond.Signal()
		} else {
			s.scheduled = false
		}
		ex.mu.Unlock()
	}
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Recovered panic in executor task",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	fn()
}

// Strand is a serial execution context: tasks posted to it run one at a
// time in posting order, never concurrently with each other.
type Strand struct {
	ex        *Executor
	tasks     *queue.Queue // of func(); guarded by ex.mu
	scheduled bool         // guarded by ex.mu
}

// Post enqueues fn. It returns false if the executor is shutting down, in
// which case fn will never run.
func (s *Strand) Post(fn func()) bool {
	return s.ex.post(s, fn)
}
