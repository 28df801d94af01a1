//go:build linux

package main

import (
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/app/capture/probe"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/camera"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/camera/v4l2"
)

// newCameraDevice returns the production V4L2 acquisition path.
func newCameraDevice() (camera.Device, probe.CaptureAPI) {
	return &v4l2.Device{}, v4l2.API{}
}
