package arrangement

import "time"

// Merge combines two arrangements. Windows from b overwrite those from a.
// Group positions from b win for shared groups and a fills the gaps. Groups
// no longer referenced by any window are dropped.
func Merge(a, b *Arrangement) *Arrangement {
	windows := make(map[WindowID]Position, len(a.windows)+len(b.windows))
	for id, pos := range a.windows {
		windows[id] = pos
	}
	for id, pos := range b.windows {
		windows[id] = pos
	}

	groups := NewGroups(b.groups.entries...)
	for _, e := range a.groups.entries {
		groups.Insert(e.Group, e.Position)
	}
	return rebuild(windows, groups.entries)
}

// Store is a dated arrangement snapshot.
type Store struct {
	Arrangement *Arrangement
	Date        time.Time
}

// NewStore creates a snapshot. A zero date means now.
func NewStore(a *Arrangement, date time.Time) *Store {
	if a == nil {
		a = New()
	}
	if date.IsZero() {
		date = time.Now()
	}
	return &Store{Arrangement: a, Date: date}
}

// Clone returns a deep copy.
func (s *Store) Clone() *Store {
	return &Store{Arrangement: s.Arrangement.Clone(), Date: s.Date}
}

// MergeStores merges s2 into s1 and keeps the later date. Equal dates keep s1's.
func MergeStores(s1, s2 *Store) *Store {
	date := s1.Date
	if s2.Date.After(s1.Date) {
		date = s2.Date
	}
	return &Store{Arrangement: Merge(s1.Arrangement, s2.Arrangement), Date: date}
}
