package arrangement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gp(i int) *GroupPosition {
	return &GroupPosition{Index: i}
}

func TestNewGroupCanonical(t *testing.T) {
	a := MustGroup(map[string]interface{}{"b": 2, "a": []int{1, 2}})
	b, err := NewGroup(map[string]interface{}{"a": []float64{1, 2}, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":[1,2],"b":2}`, a.String())

	var c Group
	require.NoError(t, c.UnmarshalJSON([]byte(`{ "b" : 2, "a" : [1, 2] }`)))
	assert.Equal(t, a, c)

	assert.NotEqual(t, MustGroup("G"), MustGroup("H"))
	assert.Equal(t, "null", Group("").String())
}

func TestAddWindow(t *testing.T) {
	g := MustGroup("G")

	t.Run("new group requires position", func(t *testing.T) {
		a := New()
		err := a.AddWindow(1, Position{Group: g}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingGroupPosition))

		var serr *StructuralError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, WindowID(1), serr.Window)
		assert.True(t, a.IsEmpty())
	})

	t.Run("duplicate window", func(t *testing.T) {
		a := New()
		require.NoError(t, a.AddWindow(1, Position{Group: g}, gp(0)))
		err := a.AddWindow(1, Position{Group: g, Index: 3}, gp(0))
		assert.True(t, errors.Is(err, ErrDuplicateWindow))
		pos, _ := a.Window(1)
		assert.Equal(t, 0, pos.Index)
	})

	t.Run("existing group ignores position", func(t *testing.T) {
		a := New()
		require.NoError(t, a.AddWindow(1, Position{Group: g}, gp(7)))
		require.NoError(t, a.AddWindow(2, Position{Group: g, Index: 1}, gp(99)))
		pos, ok := a.GroupPosition(g)
		require.True(t, ok)
		assert.Equal(t, 7, pos.Index)
		assert.Len(t, a.Groups(), 1)
	})
}

func TestDeleteWindowRestoresState(t *testing.T) {
	g, h := MustGroup("G"), MustGroup("H")
	a := New()
	require.NoError(t, a.AddWindow(1, Position{Group: g}, gp(0)))
	before := a.Clone()

	require.NoError(t, a.AddWindow(2, Position{Group: h, Index: 4}, gp(1)))
	assert.True(t, a.DeleteWindow(2))
	assert.True(t, a.Equal(before))
	assert.False(t, a.DeleteWindow(2))

	require.NoError(t, a.AddWindow(3, Position{Group: g, Index: 1}, nil))
	assert.True(t, a.DeleteWindow(1))
	_, ok := a.GroupPosition(g)
	assert.True(t, ok, "group still referenced by window 3")

	assert.True(t, a.DeleteWindow(3))
	assert.True(t, a.IsEmpty())
}

func TestNormalize(t *testing.T) {
	g, h := MustGroup("G"), MustGroup("H")

	tests := []struct {
		name   string
		toHigh bool
		want   map[WindowID]int
	}{
		{"ascending", false, map[WindowID]int{1: 0, 2: 1, 3: 2, 4: 0}},
		{"to high", true, map[WindowID]int{1: -3, 2: -2, 3: -1, 4: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New()
			require.NoError(t, a.AddWindow(1, Position{Group: g, Index: -4}, gp(0)))
			require.NoError(t, a.AddWindow(2, Position{Group: g, Index: 5}, nil))
			require.NoError(t, a.AddWindow(3, Position{Group: g, Index: 12}, nil))
			require.NoError(t, a.AddWindow(4, Position{Group: h, Index: 8}, gp(1)))

			a.Normalize(tt.toHigh)
			for id, want := range tt.want {
				pos, ok := a.Window(id)
				require.True(t, ok)
				assert.Equal(t, want, pos.Index, "window %d", id)
			}
			gpos, _ := a.GroupPosition(h)
			assert.Equal(t, 1, gpos.Index, "group positions untouched")
		})
	}
}

func TestNormalizeScenario(t *testing.T) {
	g := MustGroup("G")
	a := New()
	require.NoError(t, a.AddWindow(1, Position{Group: g, Index: 0}, gp(0)))
	require.NoError(t, a.AddWindow(2, Position{Group: g, Index: 5}, nil))
	a.Normalize(false)

	p1, _ := a.Window(1)
	p2, _ := a.Window(2)
	assert.Equal(t, 0, p1.Index)
	assert.Equal(t, 1, p2.Index)

	once := a.Clone()
	a.Normalize(false)
	assert.True(t, a.Equal(once))
}

func TestGroupsTable(t *testing.T) {
	g1, g2, g3 := MustGroup(1), MustGroup(2), MustGroup(3)
	gs := NewGroups()

	assert.True(t, gs.Insert(g1, GroupPosition{Index: 5}))
	assert.False(t, gs.Insert(g1, GroupPosition{Index: 0}))
	gs.Set(g2, GroupPosition{Index: 2})
	gs.Set(g3, GroupPosition{Index: 9})

	min, ok := gs.MinIndex()
	require.True(t, ok)
	assert.Equal(t, 2, min)

	gs.Set(g1, GroupPosition{Index: 1})
	entries := gs.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, g1, entries[2].Group, "set moves entry to the end")

	assert.True(t, gs.Delete(g2))
	assert.False(t, gs.Delete(g2))
	pos, ok := gs.Get(g3)
	require.True(t, ok)
	assert.Equal(t, 9, pos.Index)

	gs.Normalize(nil)
	entries = gs.Entries()
	assert.Equal(t, []GroupEntry{{g1, GroupPosition{1}}, {g3, GroupPosition{2}}}, entries)

	start := -10
	gs.Normalize(&start)
	pos, _ = gs.Get(g3)
	assert.Equal(t, -9, pos.Index)

	empty := NewGroups()
	_, ok = empty.MinIndex()
	assert.False(t, ok)
	empty.Normalize(&start)
	assert.Equal(t, 0, empty.Len())
}

func TestFromParts(t *testing.T) {
	g, h := MustGroup("G"), MustGroup("H")
	windows := map[WindowID]Position{1: {Group: g}}

	a, err := FromParts(windows, []GroupEntry{{Group: g}})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())

	_, err = FromParts(windows, nil)
	assert.True(t, errors.Is(err, ErrGroupInvariant))

	_, err = FromParts(windows, []GroupEntry{{Group: g}, {Group: h}})
	assert.True(t, errors.Is(err, ErrGroupInvariant))
}
