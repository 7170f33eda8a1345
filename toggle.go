package futurez

import "sync/atomic"

// Toggle switches context propagation on or off. The zero value is off.
type Toggle struct {
	on atomic.Bool
}

// Enabled reports whether propagation is on.
func (t *Toggle) Enabled() bool {
	if t == nil {
		return false
	}
	return t.on.Load()
}

// Enable turns propagation on for tasks wrapped from now on.
func (t *Toggle) Enable() {
	t.on.Store(true)
}

// Disable turns propagation off for tasks wrapped from now on.
func (t *Toggle) Disable() {
	t.on.Store(false)
}

// Set stores on and reports whether the value changed.
func (t *Toggle) Set(on bool) bool {
	return t.on.Swap(on) != on
}
