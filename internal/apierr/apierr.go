// Package apierr defines the closed set of error kinds the asset registry
// distinguishes, plus a single wrapped error type so every layer (store, service,
// HTTP) can propagate with %w and let the HTTP layer map to a status code and
// machine-readable code in one place.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy from SPEC_FULL.md §7.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindOwnership  Kind = "OWNERSHIP"
	KindConflict   Kind = "CONFLICT"
	KindDependency Kind = "DEPENDENCY"
	KindTransient  Kind = "TRANSIENT"
	KindInternal   Kind = "INTERNAL"
)

// Code is the machine-readable enumeration from spec.md §6.
type Code string

const (
	CodeInvalidHash        Code = "INVALID_HASH"
	CodeInvalidQuery       Code = "INVALID_QUERY"
	CodeInvalidBody        Code = "INVALID_BODY"
	CodeInvalidJSON        Code = "INVALID_JSON"
	CodeAssetNotFound      Code = "ASSET_NOT_FOUND"
	CodeFileNotFound       Code = "FILE_NOT_FOUND"
	CodeHashMismatch       Code = "HASH_MISMATCH"
	CodeDependencyMissing  Code = "DEPENDENCY_MISSING"
	CodeBackendUnsupported Code = "BACKEND_UNSUPPORTED"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeInternal           Code = "INTERNAL"
)

// Error is the wrapped error type threaded from store/service code up to the HTTP
// layer. Ownership errors are reported with KindNotFound's status (404) by callers
// that want to avoid leaking existence, per spec §7 — Kind is kept distinct from
// the HTTP mapping so logs can still tell the two apart.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code Code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithDetails attaches machine-readable details to the {error:{code,message,details}}
// envelope.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// As reports whether err is (or wraps) an *Error, per the errors.As contract.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func NotFound(message string) *Error {
	return New(KindNotFound, CodeAssetNotFound, message)
}

func Validation(code Code, message string) *Error {
	return New(KindValidation, code, message)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, CodeInternal, message, err)
}

func Dependency(message string, err error) *Error {
	return Wrap(KindDependency, CodeDependencyMissing, message, err)
}

func Conflict(message string) *Error {
	return New(KindConflict, CodeBadRequest, message)
}
