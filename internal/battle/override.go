package battle

// Overridable holds a value revealed by the host alongside an optional user
// override. An override set to the zero value (an intentionally empty item,
// for example) is distinct from no override at all.
type Overridable[T comparable] struct {
	Revealed   T    `json:"revealed"`
	Override   T    `json:"override"`
	Overridden bool `json:"overridden"`
}

// Value returns the override when one is set, else the revealed value.
func (o Overridable[T]) Value() T {
	if o.Overridden {
		return o.Override
	}
	return o.Revealed
}

// Set stores a user override.
func (o *Overridable[T]) Set(v T) {
	o.Override = v
	o.Overridden = true
}

// Clear drops the user override.
func (o *Overridable[T]) Clear() {
	var zero T
	o.Override = zero
	o.Overridden = false
}

// Reveal records a value observed from the host. A changed, non-zero reveal
// clears any override. It reports whether the revealed value changed.
func (o *Overridable[T]) Reveal(v T) bool {
	if v == o.Revealed {
		return false
	}
	o.Revealed = v
	var zero T
	if v != zero {
		o.Clear()
	}
	return true
}
