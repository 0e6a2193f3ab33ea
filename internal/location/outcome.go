package location

// Outcome is the result of a provider call: either Ok with a value or Failed
// with a human-readable message. Providers use pointer or slice types for T so
// that Ok(nil) can express "the call worked but there is no data".
type Outcome[T any] struct {
	value   T
	message string
	failed  bool
}

// Ok wraps a successful result.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{value: value}
}

// Failed wraps a failed call.
func Failed[T any](message string) Outcome[T] {
	return Outcome[T]{message: message, failed: true}
}

// IsOk reports whether the outcome is a success.
func (o Outcome[T]) IsOk() bool {
	return !o.failed
}

// IsFailed reports whether the outcome is a failure.
func (o Outcome[T]) IsFailed() bool {
	return o.failed
}

// Value returns the wrapped value and true for Ok; the zero value and false
// for Failed.
func (o Outcome[T]) Value() (T, bool) {
	if o.failed {
		var zero T
		return zero, false
	}
	return o.value, true
}

// Message returns the failure message, or "" for Ok.
func (o Outcome[T]) Message() string {
	return o.message
}
