// Package observable provides a generic state holder that replaces its value
// wholesale and notifies subscribers synchronously after each replacement.
package observable

import (
	"log"
	"sync"
)

// Logger receives subscriber failures. The default writes through log.Printf.
type Logger interface {
	Printf(format string, args ...any)
}

type stdLogger struct{}

func (stdLogger) Printf(format string, args ...any) { log.Printf(format, args...) }

// Option configures a Store.
type Option func(*options)

type options struct {
	name   string
	logger Logger
}

// WithName sets the name used in log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger replaces the logger used to report subscriber failures.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Store holds a single state value and notifies subscribers after every
// replacement.
//
// Get is safe from any goroutine. Set and Update do not serialize concurrent
// writers; callers funnel writes through one goroutine (see dispatcher.Loop).
//
// Notification is synchronous and not guarded against re-entrancy: a
// subscriber that calls Set triggers a nested round of notification before
// the outer round continues. Later subscribers in the outer round then observe
// the nested state, not the one the outer Set installed.
type Store[S any] struct {
	mu        sync.RWMutex
	state     S
	listeners []listener[S]
	nextID    uint64
	opts      options
}

type listener[S any] struct {
	id uint64
	fn func(S)
}

// New creates a store seeded with initial.
func New[S any](initial S, opts ...Option) *Store[S] {
	o := options{name: "store", logger: stdLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[S]{state: initial, opts: o}
}

// Get returns the current state.
func (s *Store[S]) Get() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set installs next and notifies subscribers.
func (s *Store[S]) Set(next S) {
	s.mu.Lock()
	s.state = next
	listeners := append([]listener[S](nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		s.notify(l, next)
	}
}

// Update installs fn(current) and notifies subscribers. fn must return the
// full replacement state.
func (s *Store[S]) Update(fn func(S) S) {
	s.Set(fn(s.Get()))
}

// Subscribe registers fn and returns a function that removes this
// registration. Registering the same function twice yields two independent
// registrations.
func (s *Store[S]) Subscribe(fn func(S)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener[S]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Store[S]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]listener[S], 0, len(s.listeners))
	for _, l := range s.listeners {
		if l.id != id {
			next = append(next, l)
		}
	}
	s.listeners = next
}

func (s *Store[S]) notify(l listener[S], state S) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.logger.Printf("[Store] %s subscriber failed: %v", s.opts.name, r)
		}
	}()
	l.fn(state)
}
