package transport

import "github.com/fpang/medassist/internal/apierr"

// Result is the outcome of one API call: exactly one of a decoded value or a
// classified failure. The zero Result is a failure with CodeUnknown.
type Result[T any] struct {
	value T
	err   *apierr.Error
	ok    bool
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Fail wraps a failure. A nil err is coerced to CodeUnknown so a Result can
// never be neither success nor failure.
func Fail[T any](err *apierr.Error) Result[T] {
	if err == nil {
		err = apierr.New(apierr.CodeUnknown, nil)
	}
	return Result[T]{err: err}
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool {
	return r.ok
}

// Value returns the decoded value and true on success.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.ok
}

// Err returns the failure, or nil on success.
func (r Result[T]) Err() *apierr.Error {
	if r.ok {
		return nil
	}
	if r.err == nil {
		return apierr.New(apierr.CodeUnknown, nil)
	}
	return r.err
}

// Unwrap converts the Result into Go's usual (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.ok {
		return r.value, nil
	}
	var zero T
	return zero, r.Err()
}

// Match calls exactly one of onOK or onErr.
func (r Result[T]) Match(onOK func(T), onErr func(*apierr.Error)) {
	if r.ok {
		onOK(r.value)
		return
	}
	onErr(r.Err())
}

// Map converts a successful value with fn; failures pass through unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if !r.ok {
		return Fail[U](r.Err())
	}
	return Ok(fn(r.value))
}
