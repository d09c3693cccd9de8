// Package mutex provides a FIFO mutex with context-aware admission.
//
// Waiters are granted the lock strictly in arrival order. Unlock hands
// ownership directly to the next waiter, so a late Lock call can never
// overtake a queued one.
package mutex

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type waiter struct {
	ready chan struct{}
}

// FIFO is a mutual exclusion lock with first-in first-out admission.
// The zero value is an unlocked mutex.
type FIFO struct {
	mu       sync.Mutex
	locked   bool
	queue    []*waiter
	dispatch uint64

	logger  *zap.Logger
	observe func(name string, wait time.Duration)
}

// New creates a FIFO mutex that logs admission at debug level.
func New(logger *zap.Logger) *FIFO {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FIFO{logger: logger}
}

// OnWait registers a callback receiving how long each Do call waited.
func (m *FIFO) OnWait(fn func(name string, wait time.Duration)) {
	m.mu.Lock()
	m.observe = fn
	m.mu.Unlock()
}

// Lock blocks until the lock is held or ctx is done.
func (m *FIFO) Lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked && len(m.queue) == 0 {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	m.queue = append(m.queue, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, q := range m.queue {
			if q == w {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		// Ownership was handed over concurrently; pass it on.
		<-w.ready
		m.Unlock()
		return ctx.Err()
	}
}

// TryLock acquires the lock only if it is free and nobody is queued.
func (m *FIFO) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || len(m.queue) > 0 {
		return false
	}
	m.locked = true
	return true
}

// Unlock releases the lock, handing it to the oldest waiter if any.
func (m *FIFO) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		panic("mutex: unlock of unlocked FIFO")
	}
	if len(m.queue) == 0 {
		m.locked = false
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	close(next.ready)
}

// Waiting returns the number of queued waiters.
func (m *FIFO) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Do runs fn while holding the lock. Once admitted, fn runs to completion.
func (m *FIFO) Do(ctx context.Context, name string, fn func() error) error {
	m.mu.Lock()
	m.dispatch++
	n := m.dispatch
	observe := m.observe
	m.mu.Unlock()

	log := m.log().With(zap.Uint64("dispatch", n), zap.String("op", name))
	log.Debug("requesting lock")
	start := time.Now()
	if err := m.Lock(ctx); err != nil {
		log.Debug("lock request abandoned", zap.Error(err))
		return err
	}
	if observe != nil {
		observe(name, time.Since(start))
	}
	log.Debug("granted lock")
	defer func() {
		log.Debug("releasing lock")
		m.Unlock()
	}()

	if err := fn(); err != nil {
		log.Debug("rejected", zap.Error(err))
		return err
	}
	return nil
}

func (m *FIFO) log() *zap.Logger {
	if m.logger == nil {
		return zap.NewNop()
	}
	return m.logger
}
