package arrangement

import (
	"sort"
)

// Arrangement is a set of window positions plus the table of groups they
// reference.
type Arrangement struct {
	windows map[WindowID]Position
	groups  *Groups
}

// New returns an empty arrangement.
func New() *Arrangement {
	return &Arrangement{
		windows: make(map[WindowID]Position),
		groups:  NewGroups(),
	}
}

// FromParts builds an arrangement and verifies that the group table holds
// exactly the groups referenced by windows.
func FromParts(windows map[WindowID]Position, groups []GroupEntry) (*Arrangement, error) {
	a := assemble(windows, groups)
	if err := a.check(); err != nil {
		return nil, err
	}
	return a, nil
}

// assemble builds an arrangement without checking the group invariant.
func assemble(windows map[WindowID]Position, groups []GroupEntry) *Arrangement {
	a := &Arrangement{
		windows: make(map[WindowID]Position, len(windows)),
		groups:  NewGroups(groups...),
	}
	for id, pos := range windows {
		a.windows[id] = pos
	}
	return a
}

// rebuild assembles windows and keeps only referenced groups, in the order
// given. A referenced group with no entry gets a position after all others.
func rebuild(windows map[WindowID]Position, groups []GroupEntry) *Arrangement {
	referenced := make(map[Group]struct{}, len(groups))
	for _, pos := range windows {
		referenced[pos.Group] = struct{}{}
	}
	kept := make([]GroupEntry, 0, len(referenced))
	for _, e := range groups {
		if _, ok := referenced[e.Group]; ok {
			kept = append(kept, e)
		}
	}
	a := assemble(windows, kept)

	next := 0
	for _, e := range kept {
		if e.Position.Index >= next {
			next = e.Position.Index + 1
		}
	}
	for _, id := range a.WindowIDs() {
		g := a.windows[id].Group
		if a.groups.Insert(g, GroupPosition{Index: next}) {
			next++
		}
	}
	return a
}

func (a *Arrangement) check() error {
	referenced := make(map[Group]WindowID, len(a.windows))
	for _, id := range a.WindowIDs() {
		g := a.windows[id].Group
		if _, ok := referenced[g]; !ok {
			referenced[g] = id
		}
		if !a.groups.Has(g) {
			return &StructuralError{Op: "check", Window: id, Group: g, Err: ErrGroupInvariant}
		}
	}
	for _, e := range a.groups.entries {
		if _, ok := referenced[e.Group]; !ok {
			return &StructuralError{Op: "check", Group: e.Group, Err: ErrGroupInvariant}
		}
	}
	return nil
}

// AddWindow places a new window. The group position is required only when
// the window introduces a new group and is ignored otherwise.
func (a *Arrangement) AddWindow(id WindowID, pos Position, groupPos *GroupPosition) error {
	if _, ok := a.windows[id]; ok {
		return &StructuralError{Op: "add window", Window: id, Err: ErrDuplicateWindow}
	}
	if !a.groups.Has(pos.Group) {
		if groupPos == nil {
			return &StructuralError{Op: "add window", Window: id, Group: pos.Group, Err: ErrMissingGroupPosition}
		}
		a.groups.Insert(pos.Group, *groupPos)
	}
	a.windows[id] = pos
	return nil
}

// DeleteWindow removes a window and drops its group once unreferenced.
func (a *Arrangement) DeleteWindow(id WindowID) bool {
	pos, ok := a.windows[id]
	if !ok {
		return false
	}
	delete(a.windows, id)
	for _, other := range a.windows {
		if other.Group == pos.Group {
			return true
		}
	}
	a.groups.Delete(pos.Group)
	return true
}

// Normalize reassigns window indices per group. With toHigh false indices
// become 0, 1, 2 in ascending order. With toHigh true they become -1, -2, -3
// from the highest original index down, so the relative order is kept and
// every window sorts before any non-negative index.
func (a *Arrangement) Normalize(toHigh bool) {
	buckets := make(map[Group][]WindowID)
	for id, pos := range a.windows {
		buckets[pos.Group] = append(buckets[pos.Group], id)
	}
	for _, ids := range buckets {
		sort.Slice(ids, func(i, j int) bool {
			pi, pj := a.windows[ids[i]].Index, a.windows[ids[j]].Index
			if pi != pj {
				if toHigh {
					return pi > pj
				}
				return pi < pj
			}
			if toHigh {
				return ids[i] > ids[j]
			}
			return ids[i] < ids[j]
		})
		for n, id := range ids {
			pos := a.windows[id]
			if toHigh {
				pos.Index = -(n + 1)
			} else {
				pos.Index = n
			}
			a.windows[id] = pos
		}
	}
}

// NormalizeGroups normalizes the group table. See Groups.Normalize.
func (a *Arrangement) NormalizeGroups(minIndex *int) {
	a.groups.Normalize(minIndex)
}

// MinGroupIndex returns the smallest group index; ok is false with no groups.
func (a *Arrangement) MinGroupIndex() (int, bool) {
	return a.groups.MinIndex()
}

// IsEmpty reports whether there are no windows and no groups.
func (a *Arrangement) IsEmpty() bool {
	return len(a.windows) == 0 && a.groups.Len() == 0
}

// Len returns the number of windows.
func (a *Arrangement) Len() int {
	return len(a.windows)
}

// Window returns the position of a window.
func (a *Arrangement) Window(id WindowID) (Position, bool) {
	pos, ok := a.windows[id]
	return pos, ok
}

// Windows returns a copy of the window map.
func (a *Arrangement) Windows() map[WindowID]Position {
	out := make(map[WindowID]Position, len(a.windows))
	for id, pos := range a.windows {
		out[id] = pos
	}
	return out
}

// WindowIDs returns window ids in ascending order.
func (a *Arrangement) WindowIDs() []WindowID {
	ids := make([]WindowID, 0, len(a.windows))
	for id := range a.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GroupPosition returns the position of a group.
func (a *Arrangement) GroupPosition(g Group) (GroupPosition, bool) {
	return a.groups.Get(g)
}

// Groups returns a copy of the group entries.
func (a *Arrangement) Groups() []GroupEntry {
	return a.groups.Entries()
}

// Clone returns a deep copy.
func (a *Arrangement) Clone() *Arrangement {
	return assemble(a.windows, a.groups.entries)
}

// Equal reports whether both arrangements hold the same windows and the
// same group positions, ignoring group table order.
func (a *Arrangement) Equal(b *Arrangement) bool {
	if len(a.windows) != len(b.windows) || a.groups.Len() != b.groups.Len() {
		return false
	}
	for id, pos := range a.windows {
		if other, ok := b.windows[id]; !ok || other != pos {
			return false
		}
	}
	for _, e := range a.groups.entries {
		if pos, ok := b.groups.Get(e.Group); !ok || pos != e.Position {
			return false
		}
	}
	return true
}
