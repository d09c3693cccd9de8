package arrangement

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Group is an opaque group value held in canonical JSON form.
// Structurally equal values produce identical Groups.
type Group string

// NewGroup canonicalizes an arbitrary JSON-serializable value into a Group.
func NewGroup(v interface{}) (Group, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode group: %w", err)
	}
	return canonicalGroup(data)
}

// MustGroup is like NewGroup but panics on encoding failure.
func MustGroup(v interface{}) Group {
	g, err := NewGroup(v)
	if err != nil {
		panic(err)
	}
	return g
}

// canonicalGroup re-encodes raw JSON with sorted keys and no whitespace.
// JSON null maps to the zero Group.
func canonicalGroup(data []byte) (Group, error) {
	var v interface{}
	if err := sonic.ConfigStd.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("failed to decode group: %w", err)
	}
	if v == nil {
		return "", nil
	}
	out, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode group: %w", err)
	}
	return Group(out), nil
}

// Value decodes the group back into a generic JSON value.
func (g Group) Value() (interface{}, error) {
	var v interface{}
	if err := sonic.ConfigStd.UnmarshalFromString(g.raw(), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (g Group) raw() string {
	if g == "" {
		return "null"
	}
	return string(g)
}

// String returns the canonical JSON text.
func (g Group) String() string {
	return g.raw()
}

// MarshalJSON emits the canonical JSON text verbatim.
func (g Group) MarshalJSON() ([]byte, error) {
	return []byte(g.raw()), nil
}

// UnmarshalJSON canonicalizes incoming JSON.
func (g *Group) UnmarshalJSON(data []byte) error {
	c, err := canonicalGroup(data)
	if err != nil {
		return err
	}
	*g = c
	return nil
}
