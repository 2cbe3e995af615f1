package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	// Generic codes
	CodeUnknown Code = "unknown"

	// Update pipeline errors
	CodeConfiguration       Code = "configuration_error"
	CodeNetwork             Code = "network_error"
	CodeParse               Code = "parse_error"
	CodeSequencing          Code = "sequencing_error"
	CodeSizeMismatch        Code = "size_mismatch"
	CodeDigestMismatch      Code = "digest_mismatch"
	CodeInstallDispatch     Code = "install_dispatch_failed"
	CodeUnsupportedPlatform Code = "unsupported_platform"

	// Local storage errors
	CodeStorage Code = "storage_error"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Recoverable reports whether a failure with this code leaves the caller free
// to retry from where it stands. Size and digest mismatches condemn the
// downloaded artifact and need a fresh check.
func Recoverable(code Code) bool {
	switch code {
	case CodeSizeMismatch, CodeDigestMismatch:
		return false
	default:
		return true
	}
}
