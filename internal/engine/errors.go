package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/stockpro/internal/queue"
)

// ReplayErrorCode categorizes why an operation failed to replay.
type ReplayErrorCode string

const (
	// ErrCodeTerminal: the remote store rejected the operation for good.
	ErrCodeTerminal ReplayErrorCode = "TERMINAL"

	// ErrCodeAttemptsExhausted: retryable failures reached MaxAttempts.
	ErrCodeAttemptsExhausted ReplayErrorCode = "ATTEMPTS_EXHAUSTED"

	// ErrCodeRetryable: the operation stays queued for the next pass.
	ErrCodeRetryable ReplayErrorCode = "RETRYABLE"

	// ErrCodeAborted: the pass stopped before the operation could run.
	ErrCodeAborted ReplayErrorCode = "ABORTED"
)

// ReplayError describes a failed replay of one operation.
type ReplayError struct {
	Code        ReplayErrorCode
	OperationID string
	Kind        queue.Kind
	Attempts    int
	Err         error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("%s: %s %s (attempts=%d): %v", e.Code, e.Kind, e.OperationID, e.Attempts, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

func newReplayError(code ReplayErrorCode, op queue.Operation, attempts int, err error) *ReplayError {
	return &ReplayError{Code: code, OperationID: op.ID, Kind: op.Kind, Attempts: attempts, Err: err}
}

// IsEvicted returns true if the error removed an operation from the queue.
// Uses errors.As to handle wrapped errors.
func IsEvicted(err error) bool {
	var re *ReplayError
	if errors.As(err, &re) {
		return re.Code == ErrCodeTerminal || re.Code == ErrCodeAttemptsExhausted
	}
	return false
}

// IsRetryable returns true if the operation stays queued.
func IsRetryable(err error) bool {
	var re *ReplayError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRetryable || re.Code == ErrCodeAborted
	}
	return false
}
