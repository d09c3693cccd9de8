package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/observe"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/kv"
)

type fakeWindows struct {
	mu     sync.Mutex
	values map[string]string
	fail   map[arrangement.WindowID]bool
}

func newFakeWindows() *fakeWindows {
	return &fakeWindows{values: map[string]string{}, fail: map[arrangement.WindowID]bool{}}
}

func (f *fakeWindows) key(id arrangement.WindowID, k string) string {
	return fmt.Sprintf("%d/%s", id, k)
}

func (f *fakeWindows) WindowValue(_ context.Context, id arrangement.WindowID, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return "", false, errors.New("no such window")
	}
	v, ok := f.values[f.key(id, key)]
	return v, ok, nil
}

func (f *fakeWindows) SetWindowValue(_ context.Context, id arrangement.WindowID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[f.key(id, key)] = value
	return nil
}

func (f *fakeWindows) RemoveWindowValue(_ context.Context, id arrangement.WindowID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, f.key(id, key))
	return nil
}

func newManager(t *testing.T) (*Manager, *kv.Memory, *fakeWindows) {
	t.Helper()
	store := kv.NewMemory()
	windows := newFakeWindows()
	m := NewManager(store, windows, zap.NewNop())
	require.NoError(t, m.Start(context.Background()))
	return m, store, windows
}

func snapshot(t *testing.T, ids ...arrangement.WindowID) *arrangement.Store {
	t.Helper()
	a := arrangement.New()
	g := arrangement.MustGroup("G")
	for i, id := range ids {
		require.NoError(t, a.AddWindow(id, arrangement.Position{Group: g, Index: i}, &arrangement.GroupPosition{Index: 0}))
	}
	return arrangement.NewStore(a, time.Date(2024, 1, 1, 0, 0, len(ids), 0, time.UTC))
}

func TestObserveMintsDurableIDs(t *testing.T) {
	m, store, windows := newManager(t)
	ctx := context.Background()
	require.NoError(t, windows.SetWindowValue(ctx, 9, UIDField, "42"))
	windows.fail[7] = true

	resolved, err := m.Observe(ctx, observe.Add[arrangement.WindowID](1, 2, 9, 7))
	require.NoError(t, err)
	assert.ElementsMatch(t, []UID{"1", "2", "42"}, resolved.AddToObserved)

	counter, err := m.WindowCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counter)

	raw, ok, err := store.Get(ctx, CounterKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", string(raw))

	uid, ok := m.UID(9)
	require.True(t, ok)
	assert.Equal(t, UID("42"), uid)

	first, ok := m.UID(1)
	require.True(t, ok)

	m.Stop()
	require.NoError(t, m.Start(ctx))
	resolved, err = m.Observe(ctx, observe.Add[arrangement.WindowID](1))
	require.NoError(t, err)
	assert.Equal(t, []UID{first}, resolved.AddToObserved, "tag survives a restart")
	counter, _ = m.WindowCounter(ctx)
	assert.Equal(t, int64(3), counter)
}

func TestSaveBoundedHistory(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	_, err := m.Observe(ctx, observe.Add[arrangement.WindowID](1, 2, 3))
	require.NoError(t, err)

	require.NoError(t, m.Save(ctx, "$current", snapshot(t, 1), 2))
	require.NoError(t, m.Save(ctx, "$current", snapshot(t, 1, 2), 2))
	require.NoError(t, m.Save(ctx, "$current", snapshot(t, 1, 2, 3), 2))

	slots, err := m.Slots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 2, slots[0].Size)

	newest, err := m.Load(ctx, "$current", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, newest.Arrangement.Len())
	assert.True(t, newest.Date.Equal(snapshot(t, 1, 2, 3).Date))

	older, err := m.Load(ctx, "$current", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, older.Arrangement.Len())

	_, err = m.Load(ctx, "$current", 2)
	assert.ErrorIs(t, err, ErrNoSuchIndex)
	_, err = m.Load(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrNoSuchStore)
}

func TestLoadRoundTrip(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	_, err := m.Observe(ctx, observe.Add[arrangement.WindowID](4, 5))
	require.NoError(t, err)

	want := snapshot(t, 4, 5)
	require.NoError(t, m.Save(ctx, "work", want, DefaultMaxSize))
	got, err := m.Load(ctx, "work", 0)
	require.NoError(t, err)
	assert.True(t, want.Arrangement.Equal(got.Arrangement))

	_, err = m.Observe(ctx, observe.Delete[arrangement.WindowID](5))
	require.NoError(t, err)
	got, err = m.Load(ctx, "work", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Arrangement.Len(), "unobserved window dropped on load")
}

func TestCopyAndDelete(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()
	_, err := m.Observe(ctx, observe.Add[arrangement.WindowID](1, 2))
	require.NoError(t, err)

	require.NoError(t, m.Save(ctx, "a", snapshot(t, 1), 0))
	require.NoError(t, m.Save(ctx, "a", snapshot(t, 1, 2), 0))

	assert.ErrorIs(t, m.Copy(ctx, "nope", "b", 0, 0), ErrNoSuchStore)
	assert.ErrorIs(t, m.Copy(ctx, "a", "b", 5, 0), ErrNoSuchIndex)

	require.NoError(t, m.Copy(ctx, "a", "b", 1, 1))
	got, err := m.Load(ctx, "b", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Arrangement.Len())

	assert.ErrorIs(t, m.CopyArray(ctx, "nope", "c"), ErrNoSuchStore)
	require.NoError(t, m.CopyArray(ctx, "a", "c"))

	require.NoError(t, m.Delete(ctx, "c", 0))
	require.NoError(t, m.Delete(ctx, "c", 9))
	require.NoError(t, m.Delete(ctx, "nope", 0))
	got, err = m.Load(ctx, "c", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Arrangement.Len())

	require.NoError(t, m.DeleteArray(ctx, "c"))
	_, err = m.Load(ctx, "c", 0)
	assert.ErrorIs(t, err, ErrNoSuchStore)
}

func TestNotStarted(t *testing.T) {
	m := NewManager(kv.NewMemory(), newFakeWindows(), nil)
	ctx := context.Background()

	_, err := m.Observe(ctx, observe.Add[arrangement.WindowID](1))
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, m.Save(ctx, "x", snapshot(t), 0), ErrNotStarted)

	n, err := m.WindowCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	m.Stop()
}

func TestClear(t *testing.T) {
	m, store, windows := newManager(t)
	ctx := context.Background()
	_, err := m.Observe(ctx, observe.Add[arrangement.WindowID](1))
	require.NoError(t, err)

	assert.ErrorIs(t, m.Clear(ctx, []arrangement.WindowID{1}), ErrInUse)

	m.Stop()
	require.NoError(t, m.Clear(ctx, []arrangement.WindowID{1}))
	_, ok, _ := windows.WindowValue(ctx, 1, UIDField)
	assert.False(t, ok)
	all, _ := store.All(ctx)
	assert.Empty(t, all)
}
