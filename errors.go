package lf

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies engine errors.
type Code int

const (
	CodeNone Code = iota
	CodeNotSupported
	CodeUninitialized
	CodeConstraintViolation
	CodeSyntax
	CodeNotFound
	CodeTransaction
	CodeBackStore
	CodeTaskCancelled
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "NONE"
	case CodeNotSupported:
		return "NOT_SUPPORTED"
	case CodeUninitialized:
		return "UNINITIALIZED"
	case CodeConstraintViolation:
		return "CONSTRAINT_VIOLATION"
	case CodeSyntax:
		return "SYNTAX"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeTransaction:
		return "TRANSACTION"
	case CodeBackStore:
		return "BACKSTORE"
	case CodeTaskCancelled:
		return "TASK_CANCELLED"
	default:
		return fmt.Sprintf("invalid code %d", int(c))
	}
}

// Error is the tagged error type all engine operations surface.
type Error struct {
	Code   Code
	Table  string
	Column string
	Msg    string
	Err    error
}

func errf(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

func tableErrf(code Code, tbl, col string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Table: tbl, Column: col, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Code.String())
	if e.Table != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Table)
		if e.Column != "" {
			buf.WriteByte('.')
			buf.WriteString(e.Column)
		}
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// Is makes errors.Is match any *Error carrying the same code, so
// callers can compare against e.g. &Error{Code: CodeSyntax}.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Code == e.Code
	}
	return false
}

// CodeOf extracts the engine error code, or CodeNone for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}
