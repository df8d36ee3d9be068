package engine

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// Process exit codes returned by HandleError.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitUnsupported = 3
	ExitZeroSize    = 4
	ExitOutOfMemory = 5
	ExitDeviceLost  = 6
	ExitInvalid     = 7
	ExitTimeout     = 8
	ExitOutOfDate   = 9
)

var exitCodes = map[gpu.ErrorKind]int{
	gpu.ErrorKindNone:         ExitOK,
	gpu.ErrorKindUnsupported:  ExitUnsupported,
	gpu.ErrorKindZeroSize:     ExitZeroSize,
	gpu.ErrorKindOutOfMemory:  ExitOutOfMemory,
	gpu.ErrorKindDeviceLost:   ExitDeviceLost,
	gpu.ErrorKindInvalidUsage: ExitInvalid,
	gpu.ErrorKindTimeout:      ExitTimeout,
	gpu.ErrorKindOutOfDate:    ExitOutOfDate,
	gpu.ErrorKindUnknown:      ExitFailure,
}

// UsageError marks a bad command line or configuration file.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// HandleError is the single top-level error handler: it logs err and maps it to a process exit
// code. Classified device errors map by kind, usage errors to ExitUsage and anything else to
// ExitFailure.
//
// Parameters:
//   - err: the error that ended the run, or nil
//
// Returns:
//   - int: the exit code
func HandleError(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		logger.Errorf("usage: %v", err)
		return ExitUsage
	}
	var gerr *gpu.Error
	if !errors.As(err, &gerr) {
		logger.Errorf("%v", err)
		return ExitFailure
	}
	code, ok := exitCodes[gerr.Kind]
	if !ok {
		code = ExitFailure
	}
	logger.Errorf("%s error (exit %d): %v", gerr.Kind, code, err)
	return code
}
