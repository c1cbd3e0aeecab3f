package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies task failures so callers can branch on the broad
// category (retryable API trouble vs. bad input) without string matching.
type ErrorType int

const (
	ErrFileNotFound ErrorType = iota
	ErrFileRead
	ErrFileWrite
	ErrParse
	ErrAPI
	ErrValidation
	ErrConfig
	ErrTranscription
	ErrTranslation
	ErrUnknown
)

var errorTypeNames = map[ErrorType]string{
	ErrFileNotFound:  "FileNotFound",
	ErrFileRead:      "FileRead",
	ErrFileWrite:     "FileWrite",
	ErrParse:         "Parse",
	ErrAPI:           "API",
	ErrValidation:    "Validation",
	ErrConfig:        "Config",
	ErrTranscription: "Transcription",
	ErrTranslation:   "Translation",
	ErrUnknown:       "Unknown",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// TaskError carries the failure category plus free-form context values
// (paths, job ids) that end up in the log line.
type TaskError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *TaskError {
	return &TaskError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

// WrapError attaches a category and message to an underlying error.
func WrapError(err error, errorType ErrorType, message string) *TaskError {
	wrapped := NewError(errorType, message)
	wrapped.Cause = err
	return wrapped
}

func (e *TaskError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Type, e.Message)

	if len(e.Context) > 0 {
		pairs := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Fprintf(&b, " | context: %s", strings.Join(pairs, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " | cause: %v", e.Cause)
	}
	return b.String()
}

func (e *TaskError) Unwrap() error {
	return e.Cause
}

// WithContext records a key/value pair for the error message. Returns the
// receiver for chaining.
func (e *TaskError) WithContext(key string, value any) *TaskError {
	e.Context[key] = value
	return e
}

// IsErrorType reports whether any error in the chain is a TaskError of
// the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Type == errorType
	}
	return false
}
