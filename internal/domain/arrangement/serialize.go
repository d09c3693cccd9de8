package arrangement

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
)

const positionField = "position"

// Entry is one serialized window: a custom id and its position.
type Entry[C comparable] struct {
	ID       C
	Position Position
}

// Serializable is the wire and storage form of an arrangement keyed by a
// custom id type. IDField names the JSON field that carries the id.
type Serializable[C comparable] struct {
	IDField string
	Windows []Entry[C]
	Groups  []GroupEntry
}

type serializableJSON struct {
	Windows []map[string]json.RawMessage `json:"windows"`
	Groups  []GroupEntry                 `json:"groups"`
}

// MarshalJSON writes {"windows": [{<IDField>: id, "position": p}], "groups": [...]}.
func (s Serializable[C]) MarshalJSON() ([]byte, error) {
	windows := make([]map[string]interface{}, 0, len(s.Windows))
	for _, w := range s.Windows {
		windows = append(windows, map[string]interface{}{
			s.IDField:     w.ID,
			positionField: w.Position,
		})
	}
	groups := s.Groups
	if groups == nil {
		groups = []GroupEntry{}
	}
	return sonic.ConfigStd.Marshal(map[string]interface{}{
		"windows": windows,
		"groups":  groups,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON. When IDField is empty
// it is taken from the first window's non-position field.
func (s *Serializable[C]) UnmarshalJSON(data []byte) error {
	var raw serializableJSON
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Windows = make([]Entry[C], 0, len(raw.Windows))
	for i, w := range raw.Windows {
		if s.IDField == "" {
			for k := range w {
				if k != positionField {
					s.IDField = k
					break
				}
			}
		}
		idRaw, ok := w[s.IDField]
		if !ok {
			return fmt.Errorf("window %d: missing %q field", i, s.IDField)
		}
		var e Entry[C]
		if err := sonic.ConfigStd.Unmarshal(idRaw, &e.ID); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
		posRaw, ok := w[positionField]
		if !ok {
			return fmt.Errorf("window %d: missing position", i)
		}
		if err := sonic.ConfigStd.Unmarshal(posRaw, &e.Position); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
		s.Windows = append(s.Windows, e)
	}
	s.Groups = raw.Groups
	if s.Groups == nil {
		s.Groups = []GroupEntry{}
	}
	return nil
}

// Serialize converts an arrangement into its serializable form. Windows
// whose custom id cannot be found are returned as failures and left out.
func Serialize[C comparable](a *Arrangement, idField string, customID func(WindowID) (C, bool)) (*Serializable[C], ConversionFailures[WindowID]) {
	s := &Serializable[C]{
		IDField: idField,
		Windows: make([]Entry[C], 0, len(a.windows)),
		Groups:  a.groups.Entries(),
	}
	failures := make(ConversionFailures[WindowID])
	for _, id := range a.WindowIDs() {
		pos := a.windows[id]
		c, ok := customID(id)
		if !ok {
			failures[id] = pos
			continue
		}
		s.Windows = append(s.Windows, Entry[C]{ID: c, Position: pos})
	}
	return s, failures
}

// Deserialize converts a serializable form back into an arrangement keyed
// by window id. Groups are taken verbatim without checking the invariant.
func Deserialize[C comparable](s *Serializable[C], commonID func(C) (WindowID, bool)) (*Arrangement, ConversionFailures[C]) {
	windows := make(map[WindowID]Position, len(s.Windows))
	failures := make(ConversionFailures[C])
	for _, w := range s.Windows {
		id, ok := commonID(w.ID)
		if !ok {
			failures[w.ID] = w.Position
			continue
		}
		windows[id] = w.Position
	}
	return assemble(windows, s.Groups), failures
}

// Keys returns the failed ids, sorted by their formatted value.
func (f ConversionFailures[K]) Keys() []K {
	keys := make([]K, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}
