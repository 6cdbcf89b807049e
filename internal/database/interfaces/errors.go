// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

import (
	"errors"
	"fmt"
	"time"
)

// Error codes shared by both backends.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidFilter     = "INVALID_FILTER"
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeReferenced        = "REFERENCED"
)

// Common errors. Compare with errors.Is; wrapped and newly built errors with the same code match.
var (
	ErrNotFound          = NewRepositoryError("record not found", CodeNotFound)
	ErrInvalidFilter     = NewRepositoryError("invalid filter", CodeInvalidFilter)
	ErrInvalidIdentifier = NewRepositoryError("invalid identifier", CodeInvalidIdentifier)
	ErrStoreUnavailable  = NewRepositoryError("store unavailable", CodeStoreUnavailable)
	ErrInvalidPayload    = NewRepositoryError("invalid payload", CodeInvalidPayload)
	ErrReferenced        = NewRepositoryError("record is still referenced", CodeReferenced)
)

// RepositoryError represents a repository specific error
type RepositoryError struct {
	Message string
	Code    string
	Time    time.Time
	cause   error
}

func (e *RepositoryError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *RepositoryError) Unwrap() error {
	return e.cause
}

// Is matches any RepositoryError carrying the same code.
func (e *RepositoryError) Is(target error) bool {
	var other *RepositoryError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewRepositoryError creates a new repository error
func NewRepositoryError(message, code string) *RepositoryError {
	return &RepositoryError{
		Message: message,
		Code:    code,
		Time:    time.Now(),
	}
}

func newError(code string, cause error, format string, args ...interface{}) *RepositoryError {
	e := NewRepositoryError(fmt.Sprintf(format, args...), code)
	e.cause = cause
	return e
}

// InvalidFilter reports an unknown field or a malformed operator/value pair.
func InvalidFilter(format string, args ...interface{}) error {
	return newError(CodeInvalidFilter, nil, format, args...)
}

// NotFound reports a missing record in table or collection.
func NotFound(source string, id interface{}) error {
	if id == nil {
		return newError(CodeNotFound, nil, "%s: no matching record", source)
	}
	return newError(CodeNotFound, nil, "%s: record %v not found", source, id)
}

// InvalidIdentifier reports an id string the document store cannot convert.
func InvalidIdentifier(value string, cause error) error {
	return newError(CodeInvalidIdentifier, cause, "invalid identifier %q", value)
}

// StoreUnavailable wraps a connection, authentication or timeout failure.
func StoreUnavailable(op string, cause error) error {
	return newError(CodeStoreUnavailable, cause, "%s: store unavailable", op)
}

// InvalidPayload reports payload keys outside an entity's known columns.
func InvalidPayload(format string, args ...interface{}) error {
	return newError(CodeInvalidPayload, nil, format, args...)
}

// Referenced reports a delete blocked by live references.
func Referenced(source string, by string) error {
	return newError(CodeReferenced, nil, "%s is referenced by %s", source, by)
}

// ErrorCode extracts the repository code from err, or "" when err is not a RepositoryError.
func ErrorCode(err error) string {
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.Code
	}
	return ""
}
