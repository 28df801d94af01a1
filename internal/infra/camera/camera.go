// Package camera owns the lifecycle of a live camera stream used for QR
// scanning. Camera selection is unreliable across devices, so acquisition
// walks an ordered fallback list of configurations instead of issuing a
// single rigid request. Frames from the winning configuration are decoded at
// a fixed rate until a QR code is found or the session is stopped; the
// hardware handle is released on every exit path.
package camera

import (
	"context"
	"image"
)

// Facing identifies which camera a configuration asks for.
type Facing string

const (
	// FacingRear prefers the environment-facing camera, the one pointed at
	// the property when the device is held normally.
	FacingRear Facing = "rear"

	// FacingFront falls back to the user-facing camera.
	FacingFront Facing = "front"

	// FacingAny accepts whatever camera the device will grant.
	FacingAny Facing = "any"
)

// Config describes one camera acquisition attempt.
type Config struct {
	Facing     Facing
	DevicePath string
	Width      int
	Height     int
}

// DefaultFallback returns the standard negotiation order: rear camera,
// front camera, then any available camera.
func DefaultFallback() []Config {
	return []Config{
		{Facing: FacingRear},
		{Facing: FacingFront},
		{Facing: FacingAny},
	}
}

// Stream is a live sequence of frames from an acquired camera. Close always
// releases the underlying hardware handle and must be safe to call more
// than once.
type Stream interface {
	// NextFrame blocks until the next frame is available or the context is
	// canceled.
	NextFrame(ctx context.Context) (image.Image, error)

	// Close releases the camera.
	Close() error
}

// Device acquires camera streams. The V4L2 adapter implements it for Linux
// handhelds; tests substitute fakes.
type Device interface {
	Open(ctx context.Context, cfg Config) (Stream, error)
}
