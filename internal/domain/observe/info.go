package observe

// Info describes which ids should start and stop being observed.
type Info[T any] struct {
	AddToObserved      []T `json:"addToObserved"`
	DeleteFromObserved []T `json:"deleteFromObserved"`
}

// Add returns an Info that starts observing ids.
func Add[T any](ids ...T) Info[T] {
	return Info[T]{AddToObserved: append([]T{}, ids...), DeleteFromObserved: []T{}}
}

// Delete returns an Info that stops observing ids.
func Delete[T any](ids ...T) Info[T] {
	return Info[T]{AddToObserved: []T{}, DeleteFromObserved: append([]T{}, ids...)}
}

// IsEmpty reports whether the diff does nothing.
func (i Info[T]) IsEmpty() bool {
	return len(i.AddToObserved) == 0 && len(i.DeleteFromObserved) == 0
}

// Clone returns a copy with non-nil slices.
func (i Info[T]) Clone() Info[T] {
	return Info[T]{
		AddToObserved:      append([]T{}, i.AddToObserved...),
		DeleteFromObserved: append([]T{}, i.DeleteFromObserved...),
	}
}
