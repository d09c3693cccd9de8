package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/observe"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/kv"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/monitoring"
)

const (
	// CounterKey holds the next durable id to mint.
	CounterKey = "windowCounter"
	// SlotPrefix prefixes every snapshot slot key.
	SlotPrefix = "as_"
	// UIDField is the window value key and serialized id field for durable ids.
	UIDField = "uid"
	// DefaultMaxSize bounds a slot's history unless told otherwise.
	DefaultMaxSize = 10
)

var (
	ErrNoSuchStore = errors.New("no such arrangement store")
	ErrNoSuchIndex = errors.New("no such index in arrangement store")
	ErrNotStarted  = errors.New("memory is not started")
	ErrInUse       = errors.New("memory is in use")
)

// UID is a durable window id.
type UID string

// WindowValues stores small string tags on live windows.
type WindowValues interface {
	WindowValue(ctx context.Context, id arrangement.WindowID, key string) (string, bool, error)
	SetWindowValue(ctx context.Context, id arrangement.WindowID, key, value string) error
	RemoveWindowValue(ctx context.Context, id arrangement.WindowID, key string) error
}

// record is one stored snapshot.
type record struct {
	Arrangement arrangement.Serializable[UID] `json:"arrangement"`
	Date        time.Time                     `json:"date"`
}

// Manager persists bounded snapshot histories in named slots, keyed by
// durable window ids.
type Manager struct {
	store   kv.Store
	windows WindowValues
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	started bool
	counter int64
	mapper  *observe.Mapper[arrangement.WindowID, UID]

	// serializes counter writes so the stored value never goes backwards
	counterMu sync.Mutex
}

// NewManager creates a persistence manager over a key-value store.
func NewManager(store kv.Store, windows WindowValues, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		windows: windows,
		logger:  logger,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Start loads the window counter and creates a fresh id mapper.
// Starting twice logs a warning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		m.logger.Warn("Memory already started")
		return nil
	}

	counter, err := m.loadCounter(ctx)
	if err != nil {
		return err
	}
	m.counter = counter
	m.mapper = observe.NewMapper[arrangement.WindowID, UID](0)
	m.started = true
	m.logger.Info("Memory started", zap.Int64("window_counter", counter))
	return nil
}

// Stop discards the id mapper. Stopping while stopped logs a warning.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		m.logger.Warn("Memory already stopped")
		return
	}
	m.mapper = nil
	m.started = false
	m.logger.Info("Memory stopped")
}

// Started reports whether Start has run.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Manager) currentMapper() (*observe.Mapper[arrangement.WindowID, UID], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil, ErrNotStarted
	}
	return m.mapper, nil
}

func (m *Manager) loadCounter(ctx context.Context) (int64, error) {
	raw, ok, err := m.store.Get(ctx, CounterKey)
	if err != nil {
		return 0, fmt.Errorf("read window counter: %w", err)
	}
	if !ok {
		return 1, nil
	}
	var n int64
	if err := sonic.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode window counter: %w", err)
	}
	return n, nil
}

// WindowCounter returns the next durable id that will be minted.
func (m *Manager) WindowCounter(ctx context.Context) (int64, error) {
	m.mu.Lock()
	if m.started {
		n := m.counter
		m.mu.Unlock()
		return n, nil
	}
	m.mu.Unlock()
	return m.loadCounter(ctx)
}

// Observe updates the durable id mapping for windows starting or stopping
// being observed. Windows without a stored uid are assigned a new one.
func (m *Manager) Observe(ctx context.Context, info observe.Info[arrangement.WindowID]) (observe.Info[UID], error) {
	mapper, err := m.currentMapper()
	if err != nil {
		return observe.Info[UID]{}, err
	}
	change := mapper.ChangeObserved(ctx, info, m.windowUID)
	if failed := change.Failed(); len(failed) > 0 {
		m.logger.Warn("Failed to resolve durable ids", zap.Any("windows", failed))
	}
	return change.Resolved(), nil
}

// UID returns the durable id of an observed window.
func (m *Manager) UID(id arrangement.WindowID) (UID, bool) {
	mapper, err := m.currentMapper()
	if err != nil {
		return "", false
	}
	return mapper.CustomID(id)
}

func (m *Manager) windowUID(ctx context.Context, id arrangement.WindowID) (UID, error) {
	value, ok, err := m.windows.WindowValue(ctx, id, UIDField)
	if err != nil {
		return "", fmt.Errorf("read uid of window %d: %w", id, err)
	}
	if ok {
		return UID(value), nil
	}

	m.mu.Lock()
	uid := UID(strconv.FormatInt(m.counter, 10))
	m.counter++
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.persistCounter(gctx) })
	g.Go(func() error { return m.windows.SetWindowValue(gctx, id, UIDField, string(uid)) })
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("mint uid for window %d: %w", id, err)
	}
	m.logger.Debug("Minted durable id", zap.Int64("window", int64(id)), zap.String("uid", string(uid)))
	return uid, nil
}

func (m *Manager) persistCounter(ctx context.Context) error {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()
	m.mu.Lock()
	n := m.counter
	m.mu.Unlock()
	return m.store.Set(ctx, CounterKey, []byte(strconv.FormatInt(n, 10)))
}

func slotKey(name string) string {
	return SlotPrefix + name
}

func (m *Manager) readSlot(ctx context.Context, name string) ([]json.RawMessage, bool, error) {
	raw, ok, err := m.store.Get(ctx, slotKey(name))
	if err != nil || !ok {
		return nil, ok, err
	}
	var records []json.RawMessage
	if err := sonic.Unmarshal(raw, &records); err != nil {
		return nil, true, fmt.Errorf("decode slot %q: %w", name, err)
	}
	return records, true, nil
}

func (m *Manager) writeSlot(ctx context.Context, name string, records []json.RawMessage) error {
	data, err := sonic.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode slot %q: %w", name, err)
	}
	return m.store.Set(ctx, slotKey(name), data)
}

func (m *Manager) prepend(ctx context.Context, name string, rec json.RawMessage, maxSize int) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	records, _, err := m.readSlot(ctx, name)
	if err != nil {
		return err
	}
	records = append([]json.RawMessage{rec}, records...)
	if len(records) > maxSize {
		records = records[:maxSize]
	}
	return m.writeSlot(ctx, name, records)
}

// Save serializes the snapshot through durable ids and prepends it to the
// slot's history, keeping at most maxSize entries.
func (m *Manager) Save(ctx context.Context, name string, store *arrangement.Store, maxSize int) error {
	mapper, err := m.currentMapper()
	if err != nil {
		return err
	}
	s, failures := arrangement.Serialize(store.Arrangement, UIDField, mapper.CustomID)
	if len(failures) > 0 {
		m.logger.Warn("Windows without durable id left out of snapshot",
			zap.String("slot", name), zap.Any("windows", failures.Keys()))
	}
	data, err := sonic.Marshal(record{Arrangement: *s, Date: store.Date})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.prepend(ctx, name, data, maxSize); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.IncSnapshotsSaved(name)
	}
	return nil
}

// Load reads the snapshot at index from a slot and maps it back to window ids.
func (m *Manager) Load(ctx context.Context, name string, index int) (*arrangement.Store, error) {
	mapper, err := m.currentMapper()
	if err != nil {
		return nil, err
	}
	raw, err := m.entry(ctx, name, index)
	if err != nil {
		return nil, err
	}
	rec := record{Arrangement: arrangement.Serializable[UID]{IDField: UIDField}}
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot %q[%d]: %w", name, index, err)
	}
	a, failures := arrangement.Deserialize(&rec.Arrangement, mapper.CommonID)
	if len(failures) > 0 {
		m.logger.Info("Stored windows not currently observed",
			zap.String("slot", name), zap.Any("uids", failures.Keys()))
	}
	return arrangement.NewStore(a, rec.Date), nil
}

func (m *Manager) entry(ctx context.Context, name string, index int) (json.RawMessage, error) {
	records, ok, err := m.readSlot(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchStore, name)
	}
	if index < 0 || index >= len(records) {
		return nil, fmt.Errorf("%w: %q[%d]", ErrNoSuchIndex, name, index)
	}
	return records[index], nil
}

// Copy prepends src's snapshot at index into dst.
func (m *Manager) Copy(ctx context.Context, src, dst string, index, maxSize int) error {
	raw, err := m.entry(ctx, src, index)
	if err != nil {
		return err
	}
	if err := m.prepend(ctx, dst, raw, maxSize); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.IncSnapshotsSaved(dst)
	}
	return nil
}

// CopyArray replaces dst's history with src's.
func (m *Manager) CopyArray(ctx context.Context, src, dst string) error {
	records, ok, err := m.readSlot(ctx, src)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchStore, src)
	}
	return m.writeSlot(ctx, dst, records)
}

// Delete removes one snapshot. A missing slot or index is not an error.
func (m *Manager) Delete(ctx context.Context, name string, index int) error {
	records, ok, err := m.readSlot(ctx, name)
	if err != nil || !ok {
		return err
	}
	if index < 0 || index >= len(records) {
		return nil
	}
	records = append(records[:index], records[index+1:]...)
	return m.writeSlot(ctx, name, records)
}

// DeleteArray removes a whole slot.
func (m *Manager) DeleteArray(ctx context.Context, name string) error {
	return m.store.Remove(ctx, slotKey(name))
}

// SlotInfo describes a stored slot.
type SlotInfo struct {
	Name  string      `json:"name"`
	Size  int         `json:"size"`
	Dates []time.Time `json:"dates"`
}

// Slots lists all stored slots with their snapshot dates, newest first.
func (m *Manager) Slots(ctx context.Context) ([]SlotInfo, error) {
	keys, err := kv.Keys(ctx, m.store, SlotPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]SlotInfo, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, SlotPrefix)
		records, _, err := m.readSlot(ctx, name)
		if err != nil {
			return nil, err
		}
		info := SlotInfo{Name: name, Size: len(records), Dates: make([]time.Time, 0, len(records))}
		for _, raw := range records {
			var head struct {
				Date time.Time `json:"date"`
			}
			if err := sonic.Unmarshal(raw, &head); err == nil {
				info.Dates = append(info.Dates, head.Date)
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Dump returns every stored key with its raw JSON value.
func (m *Manager) Dump(ctx context.Context) (map[string]json.RawMessage, error) {
	all, err := m.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(all))
	for k, v := range all {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// Clear removes the uid tag from the given windows and empties the store.
func (m *Manager) Clear(ctx context.Context, windows []arrangement.WindowID) error {
	if m.Started() {
		return fmt.Errorf("clear memory: %w", ErrInUse)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range windows {
		g.Go(func() error { return m.windows.RemoveWindowValue(gctx, id, UIDField) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("remove window uids: %w", err)
	}
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	m.logger.Info("Memory cleared", zap.Int("windows", len(windows)))
	return nil
}
