package apierr

import "time"

// Code is the machine-readable error classification exchanged with the
// backend in structured error bodies ({"code": "...", "message": "..."}).
type Code string

// Codes sent by the backend. The OPENAI_ prefix is historical: the backend
// reports its AI provider's failures under these names regardless of vendor.
const (
	CodeUpstreamRateLimit   Code = "OPENAI_RATE_LIMIT"
	CodeUpstreamUnavailable Code = "OPENAI_SERVICE_UNAVAILABLE"
	CodeUpstreamAuth        Code = "OPENAI_AUTH_ERROR"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeStorage             Code = "STORAGE_ERROR"
	CodeUpload              Code = "UPLOAD_ERROR"
)

// Codes synthesized on the client side.
const (
	CodeAuthRequired    Code = "AUTH_REQUIRED"
	CodeNetwork         Code = "NETWORK_ERROR"
	CodeTimeout         Code = "TIMEOUT_ERROR"
	CodeImageProcessing Code = "IMAGE_PROCESSING_ERROR"
	CodeUnknown         Code = "UNKNOWN_ERROR"
)

// FallbackMessage is shown when neither the code nor the server supplies a message.
const FallbackMessage = "Something went wrong. Please try again."

type codeInfo struct {
	kind    Kind
	message string
	policy  RetryPolicy
}

var codeTable = map[Code]codeInfo{
	CodeUpstreamRateLimit: {
		kind:    KindUpstreamRateLimit,
		message: "Too many requests. Please wait a moment and try again.",
		policy:  RetryPolicy{Recoverable: true, Delay: 60 * time.Second},
	},
	CodeUpstreamUnavailable: {
		kind:    KindUpstreamUnavailable,
		message: "The analysis service is temporarily unavailable. Please try again later.",
		policy:  RetryPolicy{Recoverable: true, Delay: 30 * time.Second},
	},
	CodeUpstreamAuth: {
		kind:    KindUpstreamAuth,
		message: "The analysis service is misconfigured. Please contact support.",
	},
	// Validation has no fixed text: the server's message names the bad field.
	CodeValidation: {
		kind: KindValidation,
	},
	CodeStorage: {
		kind:    KindSave,
		message: "Failed to save your data. Please try again.",
		policy:  RetryPolicy{Recoverable: true, Delay: 5 * time.Second},
	},
	CodeUpload: {
		kind:    KindSave,
		message: "Failed to upload the image. Please try again.",
		policy:  RetryPolicy{Recoverable: true, Delay: 5 * time.Second},
	},
	CodeAuthRequired: {
		kind:    KindAuthRequired,
		message: "Please log in to continue.",
	},
	CodeNetwork: {
		kind:    KindNetwork,
		message: "Network error. Please check your connection and try again.",
		policy:  RetryPolicy{Recoverable: true, Delay: 5 * time.Second},
	},
	CodeTimeout: {
		kind:    KindTimeout,
		message: "The request timed out. Please try again.",
		policy:  RetryPolicy{Recoverable: true, Delay: 3 * time.Second},
	},
	CodeImageProcessing: {
		kind:    KindImageProcessing,
		message: "Failed to process the image. Please try another photo.",
	},
	CodeUnknown: {
		kind: KindUnknown,
	},
}

// Known reports whether c is part of the taxonomy.
func (c Code) Known() bool {
	_, ok := codeTable[c]
	return ok
}

// Kind returns the coarse classification for c. Unknown codes map to KindUnknown.
func (c Code) Kind() Kind {
	return codeTable[c].kind
}

// Message returns the user-facing message for c. Codes without a fixed
// message (validation, unknown, and codes outside the taxonomy) use
// serverMessage when it is non-empty, else a generic fallback.
func (c Code) Message(serverMessage string) string {
	if info, ok := codeTable[c]; ok && info.message != "" {
		return info.message
	}
	if serverMessage != "" {
		return serverMessage
	}
	if c == CodeValidation {
		return "Please check your input and try again."
	}
	return FallbackMessage
}
