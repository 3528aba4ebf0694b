package syncerr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrorCode standardizes sync failure semantics across components.
type ErrorCode string

const (
	CodePermissionDenied    ErrorCode = "permission_denied"
	CodeTransient           ErrorCode = "transient"
	CodeValidation          ErrorCode = "validation"
	CodeSubmissionIntegrity ErrorCode = "submission_integrity"
	CodeNotFound            ErrorCode = "not_found"
	CodeInternal            ErrorCode = "internal"
)

// Error is the canonical sync error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with a code; nil stays nil.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func PermissionDenied(op, message string) error {
	return NewError(CodePermissionDenied, op, message, nil)
}

func Validation(op, message string) error {
	return NewError(CodeValidation, op, message, nil)
}

func Integrity(op, message string) error {
	return NewError(CodeSubmissionIntegrity, op, message, nil)
}

// IsCode checks whether err (or a wrapped err) carries code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func CodeOf(err error) ErrorCode {
	var syncErr *Error
	if !errors.As(err, &syncErr) {
		return ""
	}
	return syncErr.Code
}

func IsPermissionDenied(err error) bool { return IsCode(err, CodePermissionDenied) }

// Classify maps an arbitrary remote error onto the taxonomy. Anything the remote
// path cannot attribute to authorization or a missing record is transient.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTransient, op, err)
	case looksLikePermission(err):
		return Wrap(CodePermissionDenied, op, err)
	default:
		return Wrap(CodeTransient, op, err)
	}
}

func looksLikePermission(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission") || strings.Contains(msg, "forbidden")
}
