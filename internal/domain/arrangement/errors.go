package arrangement

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateWindow      = errors.New("window already present")
	ErrMissingGroupPosition = errors.New("no group position for new group")
	ErrGroupInvariant       = errors.New("group table does not match window references")
)

// StructuralError reports an operation that would break the group invariant.
type StructuralError struct {
	Op     string
	Window WindowID
	Group  Group
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("%s: window %d, group %s: %v", e.Op, e.Window, e.Group, e.Err)
	}
	return fmt.Sprintf("%s: window %d: %v", e.Op, e.Window, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// ConversionFailures collects windows whose id could not be translated,
// keyed by the untranslated id.
type ConversionFailures[K comparable] map[K]Position
