package diagnosis

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/medassist/internal/apierr"
)

// Classify maps a model failure onto the backend's error codes. Errors that
// are already classified pass through unchanged.
func Classify(err error) *apierr.Error {
	if err == nil {
		return nil
	}
	var classified *apierr.Error
	if errors.As(err, &classified) {
		return classified
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyAPIError(apiErrPtr.Code, apiErrPtr.Message, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr.Code, apiErr.Message, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.New(apierr.CodeUpstreamUnavailable, err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "api_key_invalid") ||
		strings.Contains(lower, "permission denied"):
		return apierr.New(apierr.CodeUpstreamAuth, err)
	case strings.Contains(lower, "quota") ||
		strings.Contains(lower, "resource exhausted") ||
		strings.Contains(lower, "rate limit"):
		return apierr.New(apierr.CodeUpstreamRateLimit, err)
	case strings.Contains(lower, "connection") ||
		strings.Contains(lower, "dial") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "unavailable"):
		return apierr.New(apierr.CodeUpstreamUnavailable, err)
	}
	return apierr.New(apierr.CodeUnknown, err)
}

func classifyAPIError(code int, message string, err error) *apierr.Error {
	log.Debug().Int("code", code).Err(err).Msg("Gemini API error")
	switch {
	case code == 429:
		return apierr.New(apierr.CodeUpstreamRateLimit, err)
	case code == 401 || code == 403:
		return apierr.New(apierr.CodeUpstreamAuth, err)
	case code == 400 && strings.Contains(strings.ToLower(message), "api key"):
		return apierr.New(apierr.CodeUpstreamAuth, err)
	case code == 400:
		return apierr.Newf(apierr.CodeValidation, err, "The image could not be analysed. Please try another photo.")
	case code >= 500:
		return apierr.New(apierr.CodeUpstreamUnavailable, err)
	}
	return apierr.New(apierr.CodeUnknown, err)
}
