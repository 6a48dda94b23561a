package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks network or service failures worth retrying.
	ErrTransient = errors.New("transient failure")
	// ErrAuth marks missing or rejected credentials.
	ErrAuth = errors.New("authorization error")
	// ErrValidation marks payloads the remote service rejected outright.
	ErrValidation = errors.New("validation error")
	// ErrStorage marks local persistence failures.
	ErrStorage = errors.New("storage error")
	// ErrConfiguration marks unusable configuration discovered at startup.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsAuth reports whether err represents a credential failure.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }

// IsTransient reports whether err is a retryable delivery failure.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsStorage reports whether err came from local persistence.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }

// IsConfiguration reports whether err is a fatal configuration problem.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
