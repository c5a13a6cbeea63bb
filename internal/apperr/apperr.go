// Package apperr defines the error taxonomy shared across the reporting
// workflow. Callers classify failures with errors.Is against the sentinel kinds.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth covers a missing or rejected token or user identity.
	ErrAuth = errors.New("authentication required")
	// ErrNetwork covers transport failures and non-OK backend responses.
	ErrNetwork = errors.New("backend request failed")
	// ErrNotFound is returned when no assignment or record exists.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any network call was made.
	ErrValidation = errors.New("validation failed")
	// ErrUpload marks a failed photo upload.
	ErrUpload = errors.New("upload failed")
)

// ValidationError lists every rule an input violated.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Reasons, "; "))
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation builds a ValidationError, or returns nil when reasons is empty.
func Validation(reasons ...string) error {
	if len(reasons) == 0 {
		return nil
	}
	return &ValidationError{Reasons: reasons}
}

// Reasons extracts the validation reasons from err, if any.
func Reasons(err error) []string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Reasons
	}
	return nil
}

// RequestError describes a failed call to the backend API.
type RequestError struct {
	Kind    error
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RequestError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// UploadError describes a photo that could not be stored by the asset host.
type UploadError struct {
	Slot string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s photo: %v", e.Slot, e.Err)
}

func (e *UploadError) Unwrap() []error {
	return []error{ErrUpload, e.Err}
}

// Kind returns the sentinel that best classifies err, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrAuth, ErrNotFound, ErrUpload, ErrNetwork} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
