package core

// Opt is an optional register field. Fields left unset are preserved by the
// read-modify-write that applies a configuration.
type Opt[T any] struct {
	value T
	set   bool
}

// Some returns a set option.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, set: true}
}

// Get returns the value and whether it was set.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.set
}
