// Package outcome models the result of a fallback chain: a value that was
// produced as intended, a value produced by a fallback, or nothing.
package outcome

// Status tags an Outcome.
type Status int

const (
	Empty Status = iota
	Success
	Degraded
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	default:
		return "empty"
	}
}

// Outcome carries a value together with how it was obtained.
// Reason is set for Degraded and Empty outcomes.
type Outcome[T any] struct {
	Status Status
	Value  T
	Reason string
}

func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Status: Success, Value: v}
}

func Degrade[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Status: Degraded, Value: v, Reason: reason}
}

func None[T any](reason string) Outcome[T] {
	return Outcome[T]{Status: Empty, Reason: reason}
}

// HasValue reports whether the outcome is Success or Degraded.
func (o Outcome[T]) HasValue() bool {
	return o.Status != Empty
}
