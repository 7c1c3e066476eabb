// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-affinity.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrNotSupported     = fmt.Errorf("operation not supported")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrNotInitialized   = fmt.Errorf("runtime not initialized")
	ErrDiscoveryFailed  = fmt.Errorf("topology discovery failed")
	ErrMalformedData    = fmt.Errorf("malformed topology data")
	ErrAffinityMissing  = fmt.Errorf("affinity not supported on this system")
	ErrPlaceOutOfRange  = fmt.Errorf("place index out of range")
	ErrAlreadyFinalized = fmt.Errorf("runtime already finalized")
)

// ErrorCode represents specific failure conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeNotSupported
	ErrCodeNoLeaf4Support
	ErrCodeNoLeaf11Support
	ErrCodeNoLeaf31Support
	ErrCodeApicNotPresent
	ErrCodeApicIDsNotUnique
	ErrCodeInconsistentCpuidInfo
	ErrCodeInvalidCpuidInfo
	ErrCodeCpuinfoMissingField
	ErrCodeCpuinfoDuplicateField
	ErrCodeCpuinfoParse
	ErrCodeAffinitySyscall
	ErrCodeTopologyInvalid
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal when err
// is not a structured Error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	if se, ok := err.(*Error); ok {
		return se.Code
	}
	return ErrCodeInternal
}
