package reqresp

import (
	"sync"
)

// jobQueue runs subscribe and unsubscribe work on one goroutine so the
// connection sees them in the order the engine decided them.
type jobQueue struct {
	mu       sync.Mutex
	jobs     []func()
	stopping bool
	wake     chan struct{}
	done     chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push appends a job. It reports false once the queue is stopping.
func (q *jobQueue) push(job func()) bool {
	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *jobQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		jobs := q.jobs
		q.jobs = nil
		stopping := q.stopping
		q.mu.Unlock()

		if len(jobs) == 0 {
			if stopping {
				return
			}
			<-q.wake
			continue
		}

		for _, job := range jobs {
			job()
		}
	}
}

// stop lets already queued jobs finish and waits for the runner to exit.
func (q *jobQueue) stop() {
	q.mu.Lock()
	q.stopping = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	<-q.done
}
