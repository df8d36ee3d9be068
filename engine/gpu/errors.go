package gpu

import (
	"errors"
	"fmt"
)

// Result is the status returned by device calls that can partially succeed (acquire, present,
// fence waits). Other calls report failures as *Error values.
type Result int

const (
	Success Result = iota
	NotReady
	Timeout
	Suboptimal
	ErrorOutOfHostMemory
	ErrorOutOfDeviceMemory
	ErrorDeviceLost
	ErrorOutOfDate
	ErrorFeatureNotPresent
	ErrorExtensionNotPresent
	ErrorInitializationFailed
	ErrorValidationFailed
	ErrorUnknown
)

var resultNames = [...]string{
	"SUCCESS",
	"NOT_READY",
	"TIMEOUT",
	"SUBOPTIMAL",
	"ERROR_OUT_OF_HOST_MEMORY",
	"ERROR_OUT_OF_DEVICE_MEMORY",
	"ERROR_DEVICE_LOST",
	"ERROR_OUT_OF_DATE",
	"ERROR_FEATURE_NOT_PRESENT",
	"ERROR_EXTENSION_NOT_PRESENT",
	"ERROR_INITIALIZATION_FAILED",
	"ERROR_VALIDATION_FAILED",
	"ERROR_UNKNOWN",
}

func (r Result) String() string {
	if int(r) >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("RESULT(%d)", int(r))
}

// ErrorKind classifies failures for the top-level handler.
type ErrorKind int

const (
	// ErrorKindNone is reported by KindOf for a nil error.
	ErrorKindNone ErrorKind = iota
	// ErrorKindUnsupported is a missing feature or extension.
	ErrorKindUnsupported
	// ErrorKindZeroSize is an acceleration-structure size query that returned zero.
	ErrorKindZeroSize
	// ErrorKindOutOfMemory is a failed host or device allocation.
	ErrorKindOutOfMemory
	// ErrorKindDeviceLost is an unrecoverable device failure.
	ErrorKindDeviceLost
	// ErrorKindOutOfDate is a swapchain that no longer matches its surface.
	ErrorKindOutOfDate
	// ErrorKindInvalidUsage is API misuse detected by the caller or by validation.
	ErrorKindInvalidUsage
	// ErrorKindTimeout is a wait that expired.
	ErrorKindTimeout
	// ErrorKindUnknown is any other failure.
	ErrorKindUnknown
)

var kindNames = [...]string{
	"none",
	"unsupported",
	"zero-size",
	"out-of-memory",
	"device-lost",
	"out-of-date",
	"invalid-usage",
	"timeout",
	"unknown",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Error is a classified device failure.
type Error struct {
	// Op is the operation that failed, e.g. "vkQueueSubmit" or "buildBottomLevel".
	Op string
	// Kind classifies the failure.
	Kind ErrorKind
	// Result is the raw result code, ErrorUnknown when the failure did not come from a result.
	Result Result
	// Err is an optional wrapped cause.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed (%s", e.Op, e.Kind)
	if e.Result != ErrorUnknown && e.Result != Success {
		msg += ", " + e.Result.String()
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error with a formatted cause.
//
// Parameters:
//   - op: the failing operation
//   - kind: the failure classification
//   - format: fmt format for the cause
//   - args: format arguments
//
// Returns:
//   - *Error: the classified error
func NewError(op string, kind ErrorKind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Result: ErrorUnknown, Err: fmt.Errorf(format, args...)}
}

// KindFromResult maps a result code to an error kind.
func KindFromResult(r Result) ErrorKind {
	switch r {
	case Success, Suboptimal:
		return ErrorKindNone
	case Timeout, NotReady:
		return ErrorKindTimeout
	case ErrorOutOfHostMemory, ErrorOutOfDeviceMemory:
		return ErrorKindOutOfMemory
	case ErrorDeviceLost:
		return ErrorKindDeviceLost
	case ErrorOutOfDate:
		return ErrorKindOutOfDate
	case ErrorFeatureNotPresent, ErrorExtensionNotPresent, ErrorInitializationFailed:
		return ErrorKindUnsupported
	case ErrorValidationFailed:
		return ErrorKindInvalidUsage
	}
	return ErrorKindUnknown
}

// CheckResult converts a result code into an error. Success and Suboptimal return nil;
// a suboptimal swapchain keeps rendering rather than forcing a resize stall.
//
// Parameters:
//   - op: the operation that produced r
//   - r: the result code
//
// Returns:
//   - error: nil for Success or Suboptimal, otherwise an *Error
func CheckResult(op string, r Result) error {
	if r == Success || r == Suboptimal {
		return nil
	}
	return &Error{Op: op, Kind: KindFromResult(r), Result: r}
}

// KindOf returns the ErrorKind of err, unwrapping as needed. Errors that are not *Error are
// ErrorKindUnknown; nil is ErrorKindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ErrorKindUnknown
}

// ResultOf returns the Result carried by err, Success for nil and ErrorUnknown otherwise.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Result
	}
	return ErrorUnknown
}

// IsFatal reports whether err terminates the session. Timeouts and out-of-date swapchains are the
// only kinds a caller can retry; everything else is fatal.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case ErrorKindNone, ErrorKindTimeout, ErrorKindOutOfDate:
		return false
	}
	return true
}
