// Package errors provides structured error types for the Fableloom
// application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI, TUI, and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures during authoring
//   - CONTENT_INCOMPLETE: a reader selected an undeveloped choice
//   - *_NOT_FOUND: resource not found
//   - PERSISTENCE: a store call failed (recoverable, retried by the caller)
//   - INTERNAL_*: Unexpected internal errors
//
// Structural graph irregularities (duplicate page ids, cycles, orphans) are
// deliberately NOT errors; they are diagnostics carried on resolutions, and
// the engine degrades to defined fallback behavior instead of failing.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeContentIncomplete, "choice %q has no target page yet", id)
//	if errors.Is(err, errors.ErrCodeContentIncomplete) {
//	    // Surface as a validation message; do not transition state
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodePersistence, origErr, "save page %s", pageID)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidChoiceText Code = "INVALID_CHOICE_TEXT"
	ErrCodeInvalidStatus     Code = "INVALID_STATUS"
	ErrCodeInvalidFormat     Code = "INVALID_FORMAT"

	// Reader-facing content state errors
	ErrCodeContentIncomplete Code = "CONTENT_INCOMPLETE"
	ErrCodeSessionEnded      Code = "SESSION_ENDED"
	ErrCodeNothingToUndo     Code = "NOTHING_TO_UNDO"

	// Resource not found errors
	ErrCodeNotFound       Code = "NOT_FOUND"
	ErrCodeStoryNotFound  Code = "STORY_NOT_FOUND"
	ErrCodePageNotFound   Code = "PAGE_NOT_FOUND"
	ErrCodeChoiceNotFound Code = "CHOICE_NOT_FOUND"
	ErrCodePartyNotFound  Code = "PARTY_NOT_FOUND"

	// Persistence errors
	ErrCodePersistence Code = "PERSISTENCE"
	ErrCodeTimeout     Code = "TIMEOUT"

	// Session errors
	ErrCodeSessionExpired Code = "SESSION_EXPIRED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsNotFound reports whether err carries any of the not-found codes.
func IsNotFound(err error) bool {
	switch GetCode(err) {
	case ErrCodeNotFound, ErrCodeStoryNotFound, ErrCodePageNotFound,
		ErrCodeChoiceNotFound, ErrCodePartyNotFound:
		return true
	}
	return false
}
