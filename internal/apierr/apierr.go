// Package apierr defines the failure taxonomy shared by the transport client,
// the image reducer, and the diagnosis backend.
//
// Every failure that crosses the client boundary is an *Error carrying a Kind
// (the coarse classification callers switch on), a machine-readable Code (the
// wire value exchanged with the backend), and a user-facing Message. Retry
// advice for a failure is exposed through Policy; nothing in this package
// retries on its own.
package apierr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind int

const (
	// KindUnknown is any failure that could not be classified.
	KindUnknown Kind = iota
	// KindValidation indicates the request was rejected for bad input.
	KindValidation
	// KindAuthRequired indicates the call needs a session token.
	KindAuthRequired
	// KindNetwork indicates a connectivity problem or an unstructured HTTP failure.
	KindNetwork
	// KindTimeout indicates the call exceeded its time budget.
	KindTimeout
	// KindUpstreamRateLimit indicates the AI provider behind the backend throttled us.
	KindUpstreamRateLimit
	// KindUpstreamUnavailable indicates the AI provider is down.
	KindUpstreamUnavailable
	// KindUpstreamAuth indicates the backend's own provider credentials were rejected.
	KindUpstreamAuth
	// KindImageProcessing indicates a local image could not be read or transformed.
	KindImageProcessing
	// KindSave indicates a storage or upload failure on the backend.
	KindSave
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindValidation:          "validation",
	KindAuthRequired:        "auth_required",
	KindNetwork:             "network",
	KindTimeout:             "timeout",
	KindUpstreamRateLimit:   "upstream_rate_limit",
	KindUpstreamUnavailable: "upstream_unavailable",
	KindUpstreamAuth:        "upstream_auth",
	KindImageProcessing:     "image_processing",
	KindSave:                "save",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    Code
	Message string // user-facing
	Status  int    // HTTP status when the failure came from a response, else 0
	Err     error  // underlying cause, never shown to users
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Code. This lets
// callers write errors.Is(err, apierr.New(apierr.CodeTimeout, nil)).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Recoverable reports whether re-invoking the failed call may succeed.
func (e *Error) Recoverable() bool {
	return PolicyFor(e.Code).Recoverable
}

// New builds an Error for a known code using the code's default message.
func New(code Code, cause error) *Error {
	return &Error{
		Kind:    code.Kind(),
		Code:    code,
		Message: code.Message(""),
		Err:     cause,
	}
}

// Newf builds an Error for code with an explicit user-facing message.
func Newf(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    code.Kind(),
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// Validation is shorthand for a KindValidation error with a specific message.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
}

// ImageProcessing wraps cause as an image-processing failure.
func ImageProcessing(cause error) *Error {
	return New(CodeImageProcessing, cause)
}

// As extracts an *Error from err. Errors that are not already classified are
// coerced to CodeUnknown so callers only ever handle one failure type.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return New(CodeUnknown, err)
}
