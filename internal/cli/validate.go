package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/apierr"
)

// Exit codes.
const (
	ExitOK = iota
	ExitFailure
	ExitUsage
	ExitAuth
	ExitRetryable
)

// ValidateImageFile checks that path is a readable regular file and returns
// its absolute path.
func ValidateImageFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", apierr.Validation(fmt.Sprintf("Image not found: %s", path))
		}
		return "", apierr.ImageProcessing(err)
	}
	if info.IsDir() {
		return "", apierr.Validation(fmt.Sprintf("%s is a directory, not an image.", path))
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// ExitCode picks the process exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	apiErr := apierr.As(err)
	switch {
	case apiErr.Kind == apierr.KindValidation:
		return ExitUsage
	case apiErr.Kind == apierr.KindAuthRequired:
		return ExitAuth
	case apiErr.Recoverable():
		return ExitRetryable
	default:
		return ExitFailure
	}
}

// HandleError prints the user-facing message for err, with a hint for
// session and retryable failures, and exits.
func HandleError(err error) {
	apiErr := apierr.As(err)
	log.Debug().Err(err).Str("code", string(apiErr.Code)).Msg("Command failed")

	fmt.Fprintln(os.Stderr, "Error:", apiErr.Message)
	switch {
	case apiErr.Kind == apierr.KindAuthRequired:
		fmt.Fprintln(os.Stderr, "Run `medassist login` first.")
	case apiErr.Recoverable():
		fmt.Fprintf(os.Stderr, "This may be temporary; try again in %s or pass --retries.\n", apierr.Policy(apiErr).Delay)
	}
	os.Exit(ExitCode(err))
}
