package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/kv"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/transport"
)

// ValuePrefix prefixes durable window value keys.
const ValuePrefix = "wv_"

var (
	ErrUnknownWindow = errors.New("unknown window")
	ErrWindowExists  = errors.New("window already registered")
	ErrInvalidWindow = errors.New("invalid window")
)

// Window is a live window reported by the window host.
type Window struct {
	ID      arrangement.WindowID `json:"id"`
	Handle  transport.Handle     `json:"handle"`
	Title   string               `json:"title,omitempty"`
	AddedAt time.Time            `json:"added_at"`
}

// EventKind tells whether a window appeared or disappeared.
type EventKind int

const (
	WindowCreated EventKind = iota
	WindowRemoved
)

func (k EventKind) String() string {
	if k == WindowCreated {
		return "created"
	}
	return "removed"
}

// Event announces a registry change.
type Event struct {
	Kind   EventKind
	Window Window
}

// Stats summarizes the registry.
type Stats struct {
	Windows     int        `json:"windows"`
	Subscribers int        `json:"subscribers"`
	Dropped     int64      `json:"dropped_events"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Manager tracks live windows. It enumerates them, resolves their native
// handles and stores small values on them. Values are keyed by native
// handle so they outlive a daemon restart while the handle stays the same.
type Manager struct {
	store  kv.Store
	logger *zap.Logger

	mu          sync.RWMutex
	windows     map[arrangement.WindowID]Window
	lastUpdated *time.Time

	subMu   sync.Mutex
	subs    map[int]*subscription
	nextSub int
	dropped atomic.Int64
}

type subscription struct {
	ch   chan Event
	done chan struct{}
}

// NewManager creates a window registry persisting values in store.
func NewManager(store kv.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		logger:  logger,
		windows: make(map[arrangement.WindowID]Window),
		subs:    make(map[int]*subscription),
	}
}

// Add registers a window and notifies subscribers.
func (m *Manager) Add(w Window) error {
	if w.ID <= 0 || w.Handle == "" {
		return fmt.Errorf("%w: id %d handle %q", ErrInvalidWindow, w.ID, w.Handle)
	}
	if w.AddedAt.IsZero() {
		w.AddedAt = time.Now()
	}

	m.mu.Lock()
	if _, exists := m.windows[w.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrWindowExists, w.ID)
	}
	m.windows[w.ID] = w
	m.touchLocked()
	m.mu.Unlock()

	m.logger.Debug("Window registered", zap.Int64("window", int64(w.ID)), zap.String("handle", string(w.Handle)))
	m.publish(Event{Kind: WindowCreated, Window: w})
	return nil
}

// Remove unregisters a window and notifies subscribers. It reports whether
// the window was registered.
func (m *Manager) Remove(id arrangement.WindowID) bool {
	m.mu.Lock()
	w, ok := m.windows[id]
	if ok {
		delete(m.windows, id)
		m.touchLocked()
	}
	m.mu.Unlock()

	if ok {
		m.logger.Debug("Window unregistered", zap.Int64("window", int64(id)))
		m.publish(Event{Kind: WindowRemoved, Window: w})
	}
	return ok
}

func (m *Manager) touchLocked() {
	now := time.Now()
	m.lastUpdated = &now
}

// Get returns a registered window.
func (m *Manager) Get(id arrangement.WindowID) (Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[id]
	return w, ok
}

// List returns all registered windows ordered by id.
func (m *Manager) List() []Window {
	m.mu.RLock()
	out := make([]Window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs enumerates the live windows.
func (m *Manager) IDs(_ context.Context) ([]arrangement.WindowID, error) {
	windows := m.List()
	ids := make([]arrangement.WindowID, len(windows))
	for i, w := range windows {
		ids[i] = w.ID
	}
	return ids, nil
}

// NativeHandle returns the handle the app knows the window by.
func (m *Manager) NativeHandle(_ context.Context, id arrangement.WindowID) (transport.Handle, error) {
	w, ok := m.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownWindow, id)
	}
	return w.Handle, nil
}

func (m *Manager) valueKey(id arrangement.WindowID, key string) (string, error) {
	w, ok := m.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownWindow, id)
	}
	return ValuePrefix + string(w.Handle) + "_" + key, nil
}

// WindowValue reads a value stored on a window.
func (m *Manager) WindowValue(ctx context.Context, id arrangement.WindowID, key string) (string, bool, error) {
	k, err := m.valueKey(id, key)
	if err != nil {
		return "", false, err
	}
	raw, ok, err := m.store.Get(ctx, k)
	if err != nil || !ok {
		return "", false, err
	}
	var value string
	if err := sonic.Unmarshal(raw, &value); err != nil {
		return "", false, fmt.Errorf("decode %s: %w", k, err)
	}
	return value, true, nil
}

// SetWindowValue stores a value on a window.
func (m *Manager) SetWindowValue(ctx context.Context, id arrangement.WindowID, key, value string) error {
	k, err := m.valueKey(id, key)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, k, data)
}

// RemoveWindowValue deletes a value stored on a window.
func (m *Manager) RemoveWindowValue(ctx context.Context, id arrangement.WindowID, key string) error {
	k, err := m.valueKey(id, key)
	if err != nil {
		return err
	}
	return m.store.Remove(ctx, k)
}

// Subscribe returns a channel of registry events and a function that ends
// the subscription. Created events are dropped when the channel is full.
// Removed events wait for room until the subscription ends.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscription{ch: make(chan Event, buffer), done: make(chan struct{})}

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = sub
	m.subMu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(sub.done)
		})
	}
}

func (m *Manager) publish(ev Event) {
	m.subMu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subMu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		if ev.Kind == WindowRemoved {
			select {
			case sub.ch <- ev:
				continue
			case <-sub.done:
			}
		}
		m.dropped.Add(1)
		m.logger.Warn("Window event dropped", zap.Stringer("kind", ev.Kind), zap.Int64("window", int64(ev.Window.ID)))
	}
}

// Stats returns registry statistics
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	stats := Stats{Windows: len(m.windows), LastUpdated: m.lastUpdated, Dropped: m.dropped.Load()}
	m.mu.RUnlock()

	m.subMu.Lock()
	stats.Subscribers = len(m.subs)
	m.subMu.Unlock()
	return stats
}
