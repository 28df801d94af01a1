//go:build linux

// Package v4l2 adapts Video4Linux capture devices to the camera ports. It is
// the production acquisition path on the handheld field devices, which run
// Linux and expose their cameras as /dev/video* nodes.
package v4l2

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/blackjack/webcam"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/camera"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720

	// frameWaitTimeout is the per-frame wait in seconds handed to the
	// driver. Longer waits just delay cancellation handling.
	frameWaitTimeout = 1
)

// Device opens V4L2 capture nodes. Facing is mapped to device paths through
// the configured table; FacingAny walks every present node.
type Device struct {
	// Paths maps a facing to its configured device node, e.g. rear to
	// /dev/video0. Unset facings fall back to enumeration.
	Paths map[camera.Facing]string
}

// Open acquires the device node for the requested configuration and starts
// streaming MJPEG frames from it.
func (d *Device) Open(ctx context.Context, cfg camera.Config) (camera.Stream, error) {
	paths, err := d.candidatePaths(cfg)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, path := range paths {
		stream, err := openStream(path, cfg)
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (d *Device) candidatePaths(cfg camera.Config) ([]string, error) {
	if cfg.DevicePath != "" {
		return []string{cfg.DevicePath}, nil
	}
	if path, ok := d.Paths[cfg.Facing]; ok && path != "" {
		return []string{path}, nil
	}

	nodes, err := listVideoNodes()
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, camera.ErrNoCamera
	}

	if cfg.Facing != camera.FacingAny {
		// No mapping for this facing; only the terminal "any" attempt may
		// take whatever node exists.
		return nil, fmt.Errorf("no device configured for %s camera: %w", cfg.Facing, camera.ErrNoCamera)
	}
	return nodes, nil
}

func listVideoNodes() ([]string, error) {
	return filepath.Glob("/dev/video*")
}

// openStream acquires one node and negotiates an MJPEG format on it.
func openStream(path string, cfg camera.Config) (camera.Stream, error) {
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	format, found := mjpegFormat(cam.GetSupportedFormats())
	if !found {
		cam.Close()
		return nil, fmt.Errorf("device %s offers no MJPEG format", path)
	}

	w, h := uint32(cfg.Width), uint32(cfg.Height)
	if w == 0 || h == 0 {
		w, h = defaultWidth, defaultHeight
	}
	if _, _, _, err := cam.SetImageFormat(format, w, h); err != nil {
		cam.Close()
		return nil, fmt.Errorf("setting format on %s: %w", path, err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("starting stream on %s: %w", path, err)
	}

	return &stream{cam: cam}, nil
}

// mjpegFormat finds the motion-JPEG pixel format among the supported set so
// frames can be decoded with the standard library.
func mjpegFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	for f, desc := range formats {
		d := strings.ToUpper(desc)
		if strings.Contains(d, "MJPG") || strings.Contains(d, "JPEG") {
			return f, true
		}
	}
	return 0, false
}

// stream wraps a streaming webcam handle.
type stream struct {
	cam    *webcam.Webcam
	closed bool
}

// NextFrame blocks for the next MJPEG frame and decodes it.
func (s *stream) NextFrame(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := s.cam.WaitForFrame(frameWaitTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, fmt.Errorf("waiting for frame: %w", err)
		}

		raw, err := s.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("reading frame: %w", err)
		}
		if len(raw) == 0 {
			continue
		}

		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			// A torn frame from the driver; skip it.
			continue
		}
		return img, nil
	}
}

// Close releases the device node. Safe to call twice.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cam.StopStreaming()
	return s.cam.Close()
}

// API reports V4L2 capture availability for the capability probe.
type API struct{}

// Available reports whether any video capture node exists.
func (API) Available() bool {
	nodes, err := listVideoNodes()
	return err == nil && len(nodes) > 0
}
