package delay

import (
	"time"
)

// Func is a delay policy. It returns the duration to wait after the action on the element at the index.
// If ok is false, there is no delay and the next element is processed immediately.
// A non-nil error stops the iteration.
type Func[T any] func(index int, elem T) (delay time.Duration, ok bool, err error)

// None never waits.
func None[T any]() Func[T] {
	return func(int, T) (time.Duration, bool, error) {
		return 0, false, nil
	}
}

// Constant waits the same duration after each element.
func Constant[T any](d time.Duration) Func[T] {
	return func(int, T) (time.Duration, bool, error) {
		return d, true, nil
	}
}

// Optional converts a policy which cannot fail.
// The duration of an absent delay is reported as zero.
func Optional[T any](fn func(index int, elem T) (time.Duration, bool)) Func[T] {
	return func(index int, elem T) (time.Duration, bool, error) {
		if d, ok := fn(index, elem); ok {
			return d, true, nil
		}
		return 0, false, nil
	}
}

// EveryNth waits after every n-th element, it means after the indexes n-1, 2n-1, ...
// For n <= 1 it waits after each element.
func EveryNth[T any](n int, d time.Duration) Func[T] {
	if n < 1 {
		n = 1
	}
	return func(index int, _ T) (time.Duration, bool, error) {
		if (index+1)%n == 0 {
			return d, true, nil
		}
		return 0, false, nil
	}
}

// Schedule waits the i-th duration after the i-th element.
// There is no delay after elements beyond the schedule.
func Schedule[T any](durations ...time.Duration) Func[T] {
	return func(index int, _ T) (time.Duration, bool, error) {
		if index < len(durations) {
			return durations[index], true, nil
		}
		return 0, false, nil
	}
}
