package session

import (
	"errors"
	"fmt"
)

// Precondition violations. None of them changes controller state.
var (
	ErrEmptyInput     = errors.New("message is empty")
	ErrTurnInFlight   = errors.New("a turn is already being processed")
	ErrRecording      = errors.New("audio capture is active")
	ErrNotRecording   = errors.New("audio capture is not active")
	ErrCaptureBusy    = errors.New("capture device is being opened")
	ErrEmptyRecording = errors.New("recording contained no audio")
)

// ErrCaptureCancelled is returned by BeginCapture when Close ran while the
// device was being opened. The device has already been released.
var ErrCaptureCancelled = errors.New("capture was cancelled by close")

var (
	// ErrCaptureUnavailable matches every *CaptureError.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrSubmissionFailure marks the Failure of an Exchange.
	ErrSubmissionFailure = errors.New("turn submission failed")
)

// CaptureError reports that audio could not be captured.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%v: %v", ErrCaptureUnavailable, e.Err)
}

func (e *CaptureError) Unwrap() []error {
	return []error{ErrCaptureUnavailable, e.Err}
}

type submissionError struct {
	err error
}

func (e *submissionError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSubmissionFailure, e.err)
}

func (e *submissionError) Unwrap() []error {
	return []error{ErrSubmissionFailure, e.err}
}
