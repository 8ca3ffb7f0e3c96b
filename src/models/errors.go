package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the engine. Use errors.Is to classify.
var (
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrUnknownField      = errors.New("unknown field")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownIndex      = errors.New("unknown index")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDivisionByZero    = errors.New("division by zero")
)

// QueryError carries the context of a failed evaluation.
type QueryError struct {
	Kind   error  // one of the Err* sentinels
	Op     string // operator or stage, e.g. "$size", "$group"
	Path   string // field path involved (may be empty)
	Value  any    // offending value (may be nil)
	Detail string
}

func (e *QueryError) Error() string {
	var parts []string
	parts = append(parts, e.Kind.Error())
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Op))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("at %q", e.Path))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, " - ")
}

func (e *QueryError) Unwrap() error { return e.Kind }

func NewTypeMismatch(op, path string, got Value, expected string) *QueryError {
	return &QueryError{
		Kind:   ErrTypeMismatch,
		Op:     op,
		Path:   path,
		Value:  got,
		Detail: fmt.Sprintf("expected %s, got %s", expected, got.Kind()),
	}
}

func NewInvalidArgument(op, format string, args ...any) *QueryError {
	return &QueryError{
		Kind:   ErrInvalidArgument,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
	}
}

func NewDivisionByZero(op string) *QueryError {
	return &QueryError{Kind: ErrDivisionByZero, Op: op}
}

func NewUnknownCollection(name string) *QueryError {
	return &QueryError{Kind: ErrUnknownCollection, Detail: fmt.Sprintf("collection %q", name)}
}

func NewUnknownIndex(collection, name string) *QueryError {
	return &QueryError{Kind: ErrUnknownIndex, Detail: fmt.Sprintf("index %q on collection %q", name, collection)}
}

func NewUnknownField(op, name string) *QueryError {
	return &QueryError{Kind: ErrUnknownField, Op: op, Path: name}
}
