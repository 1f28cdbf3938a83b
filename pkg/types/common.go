package types

// Status represents the operational status of components
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Error represents an error with additional context
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new error with code and message
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with code and message
func WrapError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsErrCode checks if an error has a specific error code
func IsErrCode(err error, code string) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error
func GetErrorCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// Common error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeInternal           = "INTERNAL"
	ErrCodeUnavailable        = "UNAVAILABLE"
	ErrCodeCanceled           = "CANCELED"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeFailedPrecondition = "FAILED_PRECONDITION"
)

// Proxy protocol error codes
//
// These mirror the errno conventions of the wire protocol: an
// UnsupportedCommand is an ENOTSUP/EINVAL analogue, NoProtocols is the
// ENXIO "nothing available" startup outcome.
const (
	ErrCodeUnsupportedCommand = "UNSUPPORTED_COMMAND"
	ErrCodeNoRoute            = "NO_ROUTE"
	ErrCodeSpawnFailure       = "SPAWN_FAILURE"
	ErrCodeCapability         = "CAPABILITY_RESTRICTION"
	ErrCodeSocketOpen         = "SOCKET_OPEN"
	ErrCodeNoProtocols        = "NO_PROTOCOLS"
)
