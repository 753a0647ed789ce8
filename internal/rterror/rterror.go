// Package rterror carries the error taxonomy of the hardware module
// runtime. Errors are classified with gRPC codes so that callers on the
// control path can branch on the kind without string matching, and so
// that transports can map failures onto the wire without translation
// tables of their own.
//
// Constructors take plain strings. Code on the real-time path must build
// its errors from constant messages; formatting belongs to the caller
// that logs the error, not to the cycle that produced it.
package rterror

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a classified runtime error.
type Error struct {
	Kind codes.Code
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// InvalidArgument reports a caller-supplied value that fails validation.
func InvalidArgument(msg string) error {
	return &Error{Kind: codes.InvalidArgument, Msg: msg}
}

// FailedPrecondition reports an operation invoked out of sequence.
func FailedPrecondition(msg string) error {
	return &Error{Kind: codes.FailedPrecondition, Msg: msg}
}

// NotFound reports a missing named resource, such as an absent
// shared-memory segment.
func NotFound(msg string) error {
	return &Error{Kind: codes.NotFound, Msg: msg}
}

// AlreadyExists reports a name collision when allocating a resource.
func AlreadyExists(msg string) error {
	return &Error{Kind: codes.AlreadyExists, Msg: msg}
}

// Unavailable reports a resource that exists but cannot currently serve.
func Unavailable(msg string) error {
	return &Error{Kind: codes.Unavailable, Msg: msg}
}

// Internal reports a failure that has no more precise classification.
func Internal(msg string) error {
	return &Error{Kind: codes.Internal, Msg: msg}
}

// Code extracts the classification of err. Unclassified errors report
// codes.Unknown; nil reports codes.OK.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var rte *Error
	if errors.As(err, &rte) {
		return rte.Kind
	}
	return codes.Unknown
}

// ToGRPC converts err into a gRPC status error, preserving the
// classification when err carries one. Errors without a classification
// are wrapped as codes.Unknown so that no failure is silently promoted
// to OK on the wire.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	var rte *Error
	if !errors.As(err, &rte) {
		return status.Error(codes.Unknown, err.Error())
	}
	return status.Error(rte.Kind, rte.Msg)
}
