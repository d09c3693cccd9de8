package arrangement

import (
	"encoding/json"
	"sort"

	"github.com/bytedance/sonic"
)

// WindowID is the process-local identity of an observed window.
type WindowID int64

// Position places a window inside a group.
type Position struct {
	Group Group `json:"group"`
	Index int   `json:"index"`
}

// GroupPosition is a group's own ordering key.
type GroupPosition struct {
	Index int `json:"index"`
}

// GroupEntry pairs a group with its position. It encodes as a two-element
// JSON array: [group, {"index": n}].
type GroupEntry struct {
	Group    Group
	Position GroupPosition
}

// MarshalJSON encodes the entry as a pair.
func (e GroupEntry) MarshalJSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal([2]interface{}{e.Group, e.Position})
}

// UnmarshalJSON decodes a [group, position] pair.
func (e *GroupEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := sonic.ConfigStd.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := e.Group.UnmarshalJSON(pair[0]); err != nil {
		return err
	}
	return sonic.ConfigStd.Unmarshal(pair[1], &e.Position)
}

// Groups is an interned table of group entries. Entries keep insertion
// order; the index maps each canonical group to its slot.
type Groups struct {
	entries []GroupEntry
	index   map[Group]int
}

// NewGroups creates a table from entries. Later duplicates replace earlier ones.
func NewGroups(entries ...GroupEntry) *Groups {
	g := &Groups{index: make(map[Group]int, len(entries))}
	for _, e := range entries {
		g.Set(e.Group, e.Position)
	}
	return g
}

// Has reports whether the group is present.
func (g *Groups) Has(group Group) bool {
	_, ok := g.index[group]
	return ok
}

// Get returns the position of a group.
func (g *Groups) Get(group Group) (GroupPosition, bool) {
	i, ok := g.index[group]
	if !ok {
		return GroupPosition{}, false
	}
	return g.entries[i].Position, true
}

// Set removes any existing entry for the group and appends a new one.
func (g *Groups) Set(group Group, pos GroupPosition) {
	g.Delete(group)
	g.index[group] = len(g.entries)
	g.entries = append(g.entries, GroupEntry{Group: group, Position: pos})
}

// Insert appends the group unless it is already present.
func (g *Groups) Insert(group Group, pos GroupPosition) bool {
	if g.Has(group) {
		return false
	}
	g.index[group] = len(g.entries)
	g.entries = append(g.entries, GroupEntry{Group: group, Position: pos})
	return true
}

// Delete removes the group and reports whether it was present.
func (g *Groups) Delete(group Group) bool {
	i, ok := g.index[group]
	if !ok {
		return false
	}
	g.entries = append(g.entries[:i], g.entries[i+1:]...)
	delete(g.index, group)
	for j := i; j < len(g.entries); j++ {
		g.index[g.entries[j].Group] = j
	}
	return true
}

// Len returns the number of groups.
func (g *Groups) Len() int {
	return len(g.entries)
}

// Entries returns a copy of the entries in table order.
func (g *Groups) Entries() []GroupEntry {
	out := make([]GroupEntry, len(g.entries))
	copy(out, g.entries)
	return out
}

// MinIndex returns the smallest group index. ok is false for an empty table.
func (g *Groups) MinIndex() (min int, ok bool) {
	for i, e := range g.entries {
		if i == 0 || e.Position.Index < min {
			min = e.Position.Index
		}
	}
	return min, len(g.entries) > 0
}

// Normalize sorts groups by index and reassigns dense indices starting at
// minIndex, or at the current minimum when minIndex is nil.
func (g *Groups) Normalize(minIndex *int) {
	if len(g.entries) == 0 {
		return
	}
	sort.SliceStable(g.entries, func(i, j int) bool {
		return g.entries[i].Position.Index < g.entries[j].Position.Index
	})
	next := g.entries[0].Position.Index
	if minIndex != nil {
		next = *minIndex
	}
	for i := range g.entries {
		g.entries[i].Position.Index = next
		g.index[g.entries[i].Group] = i
		next++
	}
}
