//go:build !linux

package main

import (
	"context"
	"errors"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/app/capture/probe"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/camera"
)

// unsupportedDevice stands in on platforms without a capture adapter. The
// capability probe reports no capture API, so the flow never reaches it.
type unsupportedDevice struct{}

func (unsupportedDevice) Open(context.Context, camera.Config) (camera.Stream, error) {
	return nil, errors.New("no camera adapter for this platform")
}

type unsupportedAPI struct{}

func (unsupportedAPI) Available() bool { return false }

func newCameraDevice() (camera.Device, probe.CaptureAPI) {
	return unsupportedDevice{}, unsupportedAPI{}
}
