package camera

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// ErrorClass buckets camera acquisition failures so each one can be surfaced
// with a specific remediation. This flow runs in uncontrolled field
// conditions where self-service recovery is the only support channel, so a
// generic failure string is not acceptable.
type ErrorClass string

const (
	ClassPermissionDenied ErrorClass = "permission-denied"
	ClassNotFound         ErrorClass = "not-found"
	ClassBusy             ErrorClass = "busy"
	ClassGeneric          ErrorClass = "generic"
)

// remediations maps each class to the user-facing recovery instruction.
var remediations = map[ErrorClass]string{
	ClassPermissionDenied: "camera access is blocked: enable camera permission for this app in settings and try again",
	ClassNotFound:         "no camera was found on this device: scanning requires a device with a working camera",
	ClassBusy:             "the camera is in use by another app: close it and try again",
	ClassGeneric:          "the camera could not be started: restart the app and try again",
}

// AcquireError is a classified camera acquisition failure. It wraps the last
// error from the negotiation sequence.
type AcquireError struct {
	class ErrorClass
	err   error
}

// Error returns the underlying error message.
func (e *AcquireError) Error() string { return e.err.Error() }

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *AcquireError) Unwrap() error { return e.err }

// Class returns which failure bucket this error falls into.
func (e *AcquireError) Class() ErrorClass { return e.class }

// Remediation returns the user-facing recovery instruction for this class.
func (e *AcquireError) Remediation() string { return remediations[e.class] }

// ErrNoCamera is returned by adapters when no camera device exists at all.
var ErrNoCamera = errors.New("no camera device present")

// ErrCameraBusy is returned by adapters when the device is held by another
// process.
var ErrCameraBusy = errors.New("camera device busy")

// classify buckets an acquisition error into exactly one class.
func classify(err error) *AcquireError {
	switch {
	case errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES):
		return &AcquireError{class: ClassPermissionDenied, err: err}
	case errors.Is(err, os.ErrNotExist) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrNoCamera) || errors.Is(err, syscall.ENODEV):
		return &AcquireError{class: ClassNotFound, err: err}
	case errors.Is(err, ErrCameraBusy) || errors.Is(err, syscall.EBUSY):
		return &AcquireError{class: ClassBusy, err: err}
	default:
		return &AcquireError{class: ClassGeneric, err: err}
	}
}
