// Package errors provides the structured error type returned by the backlog
// services and mapped to HTTP statuses at the API boundary.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

// Code represents a unique error code.
type Code string

// Error codes.
const (
	CodeSprintNotFound   Code = "SPRINT_NOT_FOUND"
	CodeStoryNotFound    Code = "STORY_NOT_FOUND"
	CodeProjectNotFound  Code = "PROJECT_NOT_FOUND"
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeSprintNotFound:   CategoryNotFound,
	CodeStoryNotFound:    CategoryNotFound,
	CodeProjectNotFound:  CategoryNotFound,
	CodeInvalidRequest:   CategoryBadRequest,
	CodeStoreUnavailable: CategoryUnavailable,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// Error is the structured error type of the backlog services.
type Error struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the error category for HTTP status mapping.
func (e *Error) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// --- Error constructors ---

// ErrSprintNotFound returns an error for a sprint that does not exist.
func ErrSprintNotFound(id string) *Error {
	return &Error{
		Code:  CodeSprintNotFound,
		What:  fmt.Sprintf("sprint %s not found", id),
		Cause: types.ErrNotFound,
	}
}

// ErrStoryNotFound returns an error for a story that does not exist.
func ErrStoryNotFound(id string) *Error {
	return &Error{
		Code:  CodeStoryNotFound,
		What:  fmt.Sprintf("story %s not found", id),
		Cause: types.ErrNotFound,
	}
}

// ErrProjectNotFound returns an error for a project that does not exist.
func ErrProjectNotFound(id string) *Error {
	return &Error{
		Code:  CodeProjectNotFound,
		What:  fmt.Sprintf("project %s not found", id),
		Cause: types.ErrNotFound,
	}
}

// ErrInvalidRequest returns a validation error. cause may be nil.
func ErrInvalidRequest(what string, cause error) *Error {
	return &Error{
		Code:  CodeInvalidRequest,
		What:  what,
		Cause: cause,
	}
}

// ErrStoreUnavailable wraps an underlying store failure. It is not retried.
func ErrStoreUnavailable(cause error) *Error {
	return &Error{
		Code:  CodeStoreUnavailable,
		What:  "backlog store unavailable",
		Cause: cause,
	}
}

// FromStore classifies an error returned by the store. Errors that are
// already structured pass through; ErrNotFound is left to the caller, which
// knows what was being looked up; everything else is a store failure.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return err
	}
	switch {
	case stderrors.Is(err, types.ErrInvalidData),
		stderrors.Is(err, types.ErrInvalidID),
		stderrors.Is(err, types.ErrDuplicate),
		stderrors.Is(err, types.ErrInvalidName),
		stderrors.Is(err, types.ErrInvalidDates),
		stderrors.Is(err, types.ErrInvalidState),
		stderrors.Is(err, types.ErrInvalidTransition),
		stderrors.Is(err, types.ErrInvalidPriority):
		return ErrInvalidRequest("invalid data", err)
	}
	return ErrStoreUnavailable(err)
}

// IsNotFound reports whether err carries a not-found category.
func IsNotFound(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category() == CategoryNotFound
	}
	return stderrors.Is(err, types.ErrNotFound)
}

// IsInvalid reports whether err is a validation failure.
func IsInvalid(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Category() == CategoryBadRequest
}

// HTTPStatus returns the HTTP status for any error: the category status for
// structured errors, 500 otherwise.
func HTTPStatus(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.HTTPStatus()
	}
	return 500
}
