// Package apperr defines the error categories shared by the ingestion,
// storage and answering layers. Callers wrap a sentinel with context using
// fmt.Errorf("...: %w", ...) and classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input: empty question, bad filename, unknown role.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing staged file, processed file or user.
	ErrNotFound = errors.New("not found")
	// ErrNotConfigured marks a missing collaborator such as the embedder or LLM.
	ErrNotConfigured = errors.New("not configured")
	// ErrExtraction marks a document that could not be read.
	ErrExtraction = errors.New("extraction failed")
	// ErrInconsistent marks a divergence between the filesystem and the chunk index.
	ErrInconsistent = errors.New("storage inconsistency")
	// ErrUpstream marks a recoverable failure of an external model provider.
	ErrUpstream = errors.New("upstream provider failed")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
)

// Validation returns an ErrValidation carrying a formatted reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound carrying a formatted reason.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// NotConfigured returns an ErrNotConfigured naming the missing collaborator.
func NotConfigured(what string) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, what)
}

// Extraction wraps a loader failure for the named document.
func Extraction(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExtraction, name, err)
}

func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }
func IsExtraction(err error) bool    { return errors.Is(err, ErrExtraction) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConflict) }
