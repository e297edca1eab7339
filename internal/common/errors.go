package common

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Attestation failure taxonomy. Every adapter error wraps exactly one of these.
var (
	ErrEncoding              = errors.New("encoding error")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrPrecondition          = errors.New("precondition failed")
	ErrUserRejected          = errors.New("user rejected")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrDuplicateRecord       = errors.New("duplicate record")
	ErrNetwork               = errors.New("network error")
	ErrUnknown               = errors.New("unknown error")
)

// ErrorKind names a taxonomy member; it is what the workflow reports on failure.
type ErrorKind string

const (
	KindEncoding              ErrorKind = "EncodingError"
	KindMalformedResponse     ErrorKind = "MalformedResponseError"
	KindPrecondition          ErrorKind = "PreconditionError"
	KindUserRejected          ErrorKind = "UserRejected"
	KindInsufficientResources ErrorKind = "InsufficientResources"
	KindDuplicateRecord       ErrorKind = "DuplicateRecord"
	KindNetwork               ErrorKind = "NetworkError"
	KindUnknown               ErrorKind = "UnknownError"
)

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindEncoding, ErrEncoding},
	{KindMalformedResponse, ErrMalformedResponse},
	{KindPrecondition, ErrPrecondition},
	{KindUserRejected, ErrUserRejected},
	{KindInsufficientResources, ErrInsufficientResources},
	{KindDuplicateRecord, ErrDuplicateRecord},
	{KindNetwork, ErrNetwork},
	{KindUnknown, ErrUnknown},
}

// Sentinel returns the sentinel error for kind (ErrUnknown for anything unrecognised).
func (k ErrorKind) Sentinel() error {
	for _, ks := range kindSentinels {
		if ks.kind == k {
			return ks.err
		}
	}
	return ErrUnknown
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewKindError builds an AppError whose chain matches both the kind's sentinel and cause.
func NewKindError(kind ErrorKind, message string, cause error) *AppError {
	wrapped := kind.Sentinel()
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", wrapped, cause)
	}
	return &AppError{Code: string(kind), Message: message, Cause: wrapped}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Classify maps any error onto the taxonomy. Unmatched errors are UnknownError;
// deadlines and net errors count as NetworkError.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}
	return KindUnknown
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}
