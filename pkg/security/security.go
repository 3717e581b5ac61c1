// Package security provides validation, sanitization, and limits for the batch engine.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/pass-batch/pkg/core"
)

// Limits
const (
	// MaxNameLength is the maximum length for job and step names
	MaxNameLength = 255

	// MaxParameters is the maximum number of parameters accepted per trigger
	MaxParameters = 64

	// MaxParameterValueLength is the maximum size in bytes of one parameter value
	MaxParameterValueLength = 4096

	// MaxChunkSize is the upper bound for a chunk step's commit interval
	MaxChunkSize = 100_000

	// MaxErrorMessageLength is the maximum length for stored exit messages
	MaxErrorMessageLength = 4096
)

// validName matches alphanumeric, hyphens, underscores, and dots
var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobName validates a job name
func ValidateJobName(name string) error {
	if name == "" {
		return core.ErrInvalidJobName
	}
	if len(name) > MaxNameLength {
		return core.ErrJobNameTooLong
	}
	if !validName.MatchString(name) {
		return core.ErrInvalidJobName
	}
	return nil
}

// ValidateStepName validates a step or flow name
func ValidateStepName(name string) error {
	if name == "" || len(name) > MaxNameLength || !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", core.ErrInvalidStepName, name)
	}
	return nil
}

// ValidateParameters enforces count and size limits on raw trigger parameters.
func ValidateParameters(raw map[string]string) error {
	if len(raw) > MaxParameters {
		return core.ErrTooManyParameters
	}
	for k, v := range raw {
		if !validName.MatchString(k) {
			return fmt.Errorf("%w: bad key %q", core.ErrInvalidParameters, k)
		}
		if len(v) > MaxParameterValueLength {
			return fmt.Errorf("%w: %s", core.ErrParameterTooLarge, k)
		}
	}
	return nil
}

// ValidateChunkSize ensures a chunk size is within [1, MaxChunkSize]
func ValidateChunkSize(n int) error {
	if n < 1 || n > MaxChunkSize {
		return fmt.Errorf("%w: got %d", core.ErrInvalidChunkSize, n)
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes exit messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}
