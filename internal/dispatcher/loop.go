// Package dispatcher runs cache mutations on a single worker goroutine so that
// every write to the issue and tag caches is applied one at a time, in
// submission order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrQueueFull is returned when the loop cannot accept more jobs.
	ErrQueueFull = errors.New("dispatcher: queue full")
	// ErrQueueClosed is returned once Shutdown has been called.
	ErrQueueClosed = errors.New("dispatcher: queue closed")
)

// Config controls loop behaviour
type Config struct {
	QueueSize int
}

// Loop executes jobs serially on one goroutine.
type Loop struct {
	cfg   Config
	queue chan *job

	// mu orders enqueues against Shutdown so no job lands in the queue
	// after the worker has drained it.
	mu     sync.RWMutex
	closed bool

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

type job struct {
	fn   func() error
	err  error
	done chan struct{}
}

// New starts a loop with the provided configuration
func New(cfg Config) *Loop {
	normalized := normalizeConfig(cfg)
	l := &Loop{
		cfg:    normalized,
		queue:  make(chan *job, normalized.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go l.worker()
	return l
}

func normalizeConfig(cfg Config) Config {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return cfg
}

// Submit queues fn without waiting for it to run. A nil error means fn will
// run, even if Shutdown is called right after.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return errors.New("dispatcher submit: job is nil")
	}
	_, err := l.enqueue(func() error {
		fn()
		return nil
	})
	return err
}

// Do queues fn and waits until it has run, returning its error. Do must not
// be called from inside a job.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	j, err := l.enqueue(fn)
	if err != nil {
		return err
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.doneCh:
		select {
		case <-j.done:
			return j.err
		default:
			return ErrQueueClosed
		}
	}
}

func (l *Loop) enqueue(fn func() error) (*job, error) {
	if fn == nil {
		return nil, errors.New("dispatcher enqueue: job is nil")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrQueueClosed
	}

	j := &job{fn: fn, done: make(chan struct{})}
	select {
	case l.queue <- j:
		return j, nil
	default:
		return nil, ErrQueueFull
	}
}

func (l *Loop) worker() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			l.drain()
			return
		case j := <-l.queue:
			l.run(j)
		}
	}
}

// drain runs whatever was queued before Shutdown.
func (l *Loop) drain() {
	for {
		select {
		case j := <-l.queue:
			l.run(j)
		default:
			return
		}
	}
}

func (l *Loop) run(j *job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Loop] job panicked: %v", r)
			j.err = fmt.Errorf("dispatcher job panicked: %v", r)
		}
	}()
	j.err = j.fn()
}

// Shutdown stops accepting jobs, runs the ones already queued and waits for
// the worker to exit or ctx to expire.
func (l *Loop) Shutdown(ctx context.Context) {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.stopCh)
		l.mu.Unlock()
	})

	select {
	case <-ctx.Done():
		return
	case <-l.doneCh:
		return
	}
}
