package capture

import "fmt"

// CaptureErrorKind identifies specific types of errors that can occur during
// a capture session. This enables callers to choose the right user-facing
// remediation without string matching.
type CaptureErrorKind int

// Error kinds for capture session operations.
const (
	// ErrKindInvalidStageTransition indicates an attempt to move the session
	// to a stage that is not reachable from the current one.
	ErrKindInvalidStageTransition CaptureErrorKind = iota

	// ErrKindQuotaExceeded indicates an attempt to add media beyond the
	// limits granted by the authorization.
	ErrKindQuotaExceeded

	// ErrKindEmptySubmission indicates an attempt to advance past the capture
	// stage with no media and no description.
	ErrKindEmptySubmission

	// ErrKindMissingAuthorization indicates an operation that requires a
	// verified authorization before it can proceed.
	ErrKindMissingAuthorization

	// ErrKindNoMediaSelected indicates an upload attempt with zero files.
	// A description alone advances the capture stage but is not sufficient
	// evidence to submit.
	ErrKindNoMediaSelected

	// ErrKindMediaMismatch indicates media content whose sniffed type does
	// not match the declared kind. This is the camera-only policy gate.
	ErrKindMediaMismatch

	// ErrKindSessionBusy indicates an operation attempted while a camera
	// stream or upload is already in flight.
	ErrKindSessionBusy
)

// CaptureError represents domain-specific errors that occur while driving a
// capture session. It carries a kind so error handling code can map the
// failure to a specific remediation message.
type CaptureError struct {
	msg  string
	kind CaptureErrorKind
}

// Error returns the error message. This implements the error interface.
func (e *CaptureError) Error() string { return e.msg }

// Kind returns the classification of this error.
func (e *CaptureError) Kind() CaptureErrorKind { return e.kind }

// Is enables error matching by comparing error kinds with errors.Is.
func (e *CaptureError) Is(target error) bool {
	t, ok := target.(*CaptureError)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// ErrKind returns a CaptureError usable as an errors.Is target for the
// given kind.
func ErrKind(kind CaptureErrorKind) error {
	return &CaptureError{kind: kind}
}

func newInvalidStageTransitionError(from, to Stage) error {
	return &CaptureError{
		msg:  fmt.Sprintf("cannot transition from %s to %s", from, to),
		kind: ErrKindInvalidStageTransition,
	}
}

func newQuotaExceededError(kind MediaKind, limit int) error {
	return &CaptureError{
		msg:  fmt.Sprintf("%s limit reached: at most %d allowed for this code", kind, limit),
		kind: ErrKindQuotaExceeded,
	}
}

func newEmptySubmissionError() error {
	return &CaptureError{
		msg:  "add at least one photo or video, or describe the issue, before continuing",
		kind: ErrKindEmptySubmission,
	}
}

func newMissingAuthorizationError(msg string) error {
	return &CaptureError{
		msg:  msg,
		kind: ErrKindMissingAuthorization,
	}
}

func newNoMediaSelectedError() error {
	return &CaptureError{
		msg:  "at least one photo or video is required to upload",
		kind: ErrKindNoMediaSelected,
	}
}

func newMediaMismatchError(kind MediaKind, detected string) error {
	return &CaptureError{
		msg:  fmt.Sprintf("captured file is %s, not a %s: only live camera capture is accepted", detected, kind),
		kind: ErrKindMediaMismatch,
	}
}

func newSessionBusyError(msg string) error {
	return &CaptureError{
		msg:  msg,
		kind: ErrKindSessionBusy,
	}
}
