// Package capture orchestrates the secure capture workflow: capability
// gating, QR scanning, verification, media accumulation, and the final
// upload. The Coordinator is the only component that drives the session
// aggregate; everything else is a port it calls out through.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/app/capture/probe"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/domain/capture"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/backend"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/timeutil"
)

// Scanner is the camera port: acquire a stream, report the first decoded
// payload, release the hardware.
type Scanner interface {
	OnDecode(fn func(text string))
	Start(ctx context.Context) error
	Stop() error
	Active() bool
}

// Verifier exchanges a decoded QR payload for an upload authorization.
type Verifier interface {
	Verify(ctx context.Context, payload string, device backend.DeviceInfo) (capture.Authorization, error)
}

// Uploader submits an accumulated session as one multipart upload.
type Uploader interface {
	Upload(ctx context.Context, session *capture.Session, device backend.DeviceInfo) (backend.Receipt, error)
}

// Navigator is told where the user lands when the flow ends.
type Navigator interface {
	NavigateTo(path string)
}

// Callbacks is the host contract. OnClose fires exactly once per flow when
// it ends, whether by accepted upload or by cancellation; OnSuccess fires
// exactly once, before OnClose, only when an upload was accepted.
type Callbacks struct {
	OnSuccess func(receipt backend.Receipt)
	OnClose   func()
}

// UnsupportedError is a failed capability probe. There is no retry path on
// the same device and context.
type UnsupportedError struct {
	Reason string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("capture not supported: %s", e.Reason)
}

var (
	// ErrFlowActive is returned by Begin while a previous flow is still open.
	ErrFlowActive = errors.New("a capture flow is already active")
	// ErrNoFlow is returned by operations that need an open flow.
	ErrNoFlow = errors.New("no capture flow active")
)

// Coordinator drives one capture flow at a time from probe to terminal
// callback. All session access goes through its mutex; the camera decode
// callback is the only entry point not initiated by the host.
type Coordinator struct {
	prober    *probe.Prober
	scanner   Scanner
	verifier  Verifier
	uploader  Uploader
	navigator Navigator
	callbacks Callbacks
	metrics   CaptureMetrics

	returnPath   string
	device       backend.DeviceInfo
	log          *logger.Logger
	tracer       trace.Tracer
	timeProvider timeutil.Provider

	mu       sync.Mutex
	session  *capture.Session
	finished bool
}

// Config carries the Coordinator's collaborators. ReturnPath is captured
// here once; later changes to the host's location do not move the flow's
// exit destination.
type Config struct {
	Prober     *probe.Prober
	Scanner    Scanner
	Verifier   Verifier
	Uploader   Uploader
	Navigator  Navigator
	Callbacks  Callbacks
	Metrics    CaptureMetrics
	ReturnPath string
	Device     backend.DeviceInfo
	Log        *logger.Logger
	Tracer     trace.Tracer
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTimeProvider overrides the clock stamped onto captured media.
func WithTimeProvider(tp timeutil.Provider) CoordinatorOption {
	return func(c *Coordinator) { c.timeProvider = tp }
}

// NewCoordinator creates a Coordinator and registers itself as the scanner's
// decode consumer.
func NewCoordinator(cfg Config, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		prober:       cfg.Prober,
		scanner:      cfg.Scanner,
		verifier:     cfg.Verifier,
		uploader:     cfg.Uploader,
		navigator:    cfg.Navigator,
		callbacks:    cfg.Callbacks,
		metrics:      cfg.Metrics,
		returnPath:   cfg.ReturnPath,
		device:       cfg.Device,
		log:          cfg.Log,
		tracer:       cfg.Tracer,
		timeProvider: timeutil.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin runs the capability probe against the origin and the flow's device
// fingerprint, then opens a new flow with a fresh session. The probe failing
// is terminal: the host should render the reason and never retry on the same
// device.
func (c *Coordinator) Begin(ctx context.Context, origin string) (*capture.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && !c.finished {
		return nil, ErrFlowActive
	}

	if result := c.prober.CheckCameraSupport(origin, c.device.UserAgent); !result.Supported {
		c.log.Warn(ctx, "capture flow rejected by capability probe", "reason", result.Reason)
		return nil, &UnsupportedError{Reason: result.Reason}
	}

	c.session = capture.NewSession(capture.WithSessionTimeProvider(c.timeProvider))
	c.finished = false
	c.scanner.OnDecode(func(text string) { c.handleDecode(ctx, text) })

	c.log.Info(ctx, "capture flow opened", "session_id", c.session.ID().String())
	return c.session, nil
}

// Session returns the current flow's session, or nil when no flow is open.
func (c *Coordinator) Session() *capture.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// StartScanning opens the camera and begins hunting for a QR code. It can be
// called again after a rejected verification; the session stays in the scan
// stage until a payload verifies.
func (c *Coordinator) StartScanning(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil || c.finished {
		c.mu.Unlock()
		return ErrNoFlow
	}
	if err := c.session.BeginScanning(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncScansStarted(ctx)
	}

	if err := c.scanner.Start(ctx); err != nil {
		c.mu.Lock()
		c.session.EndScanning()
		c.mu.Unlock()
		return err
	}
	return nil
}

// StopScanning releases the camera without ending the flow. The session
// drops back to an idle scan stage; StartScanning may be called again.
func (c *Coordinator) StopScanning() error {
	if err := c.scanner.Stop(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.EndScanning()
	}
	return nil
}

// handleDecode runs on the camera's goroutine with the stream already
// released. It verifies the payload and, on success, advances the session
// into the capture stage.
func (c *Coordinator) handleDecode(ctx context.Context, text string) {
	ctx, span := c.tracer.Start(ctx, "capture.handle_decode")
	defer span.End()

	c.mu.Lock()
	if c.session == nil || c.finished {
		c.mu.Unlock()
		return
	}
	session := c.session
	session.EndScanning()
	if err := session.RecordScan(text); err != nil {
		c.mu.Unlock()
		c.log.Warn(ctx, "decoded payload arrived in wrong stage", "error", err)
		return
	}
	c.mu.Unlock()

	auth, err := c.verifier.Verify(ctx, text, c.device)
	if err != nil {
		span.RecordError(err)
		if c.metrics != nil {
			c.metrics.IncVerificationFailures(ctx)
		}
		// The session stays in the scan stage. The host surfaces the
		// rejection and the user rescans.
		c.log.Warn(ctx, "qr verification failed", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := session.BeginCapture(auth); err != nil {
		c.log.Error(ctx, "entering capture stage failed", "error", err)
		return
	}
	span.SetAttributes(attribute.String("entity_type", auth.EntityType()))
	c.log.Info(ctx, "capture stage entered",
		"entity_type", auth.EntityType(), "entity_id", auth.EntityID(),
		"max_images", auth.Limits().MaxImages, "max_videos", auth.Limits().MaxVideos)
}

// AttachImage validates raw camera output and adds it to the session.
func (c *Coordinator) AttachImage(name string, content []byte) error {
	return c.attach(name, capture.MediaKindImage, content)
}

// AttachVideo validates a recorded clip and adds it to the session.
func (c *Coordinator) AttachVideo(name string, content []byte) error {
	return c.attach(name, capture.MediaKindVideo, content)
}

func (c *Coordinator) attach(name string, kind capture.MediaKind, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.finished {
		return ErrNoFlow
	}

	m, err := capture.NewMediaFile(name, kind, content, c.timeProvider.Now())
	if err != nil {
		return err
	}

	if kind == capture.MediaKindImage {
		return c.session.AddImage(m)
	}
	return c.session.AddVideo(m)
}

// RemoveImage discards a previously attached image by position.
func (c *Coordinator) RemoveImage(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.finished {
		return ErrNoFlow
	}
	return c.session.RemoveImage(i)
}

// RemoveVideo discards a previously attached video by position.
func (c *Coordinator) RemoveVideo(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.finished {
		return ErrNoFlow
	}
	return c.session.RemoveVideo(i)
}

// SetDescription replaces the session's free-text description.
func (c *Coordinator) SetDescription(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.finished {
		return ErrNoFlow
	}
	return c.session.SetDescription(text)
}

// Submit uploads the accumulated session. On acceptance the flow ends: the
// session is cleared, OnSuccess and then OnClose each fire once, and the
// navigator is pointed at the entity's detail page when the authorization
// names one, else the return path. On rejection the session reverts to the
// capture stage with all media intact and the error is returned for the host
// to render.
func (c *Coordinator) Submit(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "capture.submit")
	defer span.End()

	c.mu.Lock()
	if c.session == nil || c.finished {
		c.mu.Unlock()
		return ErrNoFlow
	}
	session := c.session
	if err := session.BeginUpload(); err != nil {
		c.mu.Unlock()
		return err
	}
	var bodyBytes int64
	for _, m := range session.Images() {
		bodyBytes += m.Size()
	}
	for _, m := range session.Videos() {
		bodyBytes += m.Size()
	}
	c.mu.Unlock()

	receipt, err := c.uploader.Upload(ctx, session, c.device)

	c.mu.Lock()

	if err != nil {
		span.RecordError(err)
		if c.metrics != nil {
			c.metrics.IncUploads(ctx, false)
		}
		if failErr := session.FailUpload(err.Error()); failErr != nil {
			c.log.Error(ctx, "reverting failed upload", "error", failErr)
		}
		c.log.Warn(ctx, "upload rejected, session preserved for retry",
			"media_count", session.MediaCount(), "error", err)
		c.mu.Unlock()
		return err
	}

	if err := session.CompleteUpload(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.metrics != nil {
		c.metrics.IncUploads(ctx, true)
		c.metrics.ObserveUploadBytes(ctx, bodyBytes)
	}

	c.finished = true

	// The destination must be read before the reset wipes the authorization.
	dest := c.returnPath
	if auth := session.Authorization(); auth.Addressable() {
		dest = auth.DetailPath()
	}
	session.Reset()
	c.mu.Unlock()

	c.log.Info(ctx, "capture flow completed",
		"uploaded_images", receipt.UploadedImages, "uploaded_videos", receipt.UploadedVideos)

	if c.callbacks.OnSuccess != nil {
		c.callbacks.OnSuccess(receipt)
	}
	if c.callbacks.OnClose != nil {
		c.callbacks.OnClose()
	}
	if c.navigator != nil {
		c.navigator.NavigateTo(dest)
	}
	return nil
}

// Cancel abandons the flow at whatever stage it is in: the camera is
// released, the session is reset, OnClose fires once, and the navigator is
// pointed back at the return path. Nothing is sent to the backend.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil || c.finished {
		c.mu.Unlock()
		return ErrNoFlow
	}
	session := c.session
	c.finished = true
	c.mu.Unlock()

	if err := c.scanner.Stop(); err != nil {
		c.log.Error(ctx, "stopping camera on cancel", "error", err)
	}

	c.mu.Lock()
	session.Reset()
	c.mu.Unlock()

	c.log.Info(ctx, "capture flow cancelled", "session_id", session.ID().String())

	if c.callbacks.OnClose != nil {
		c.callbacks.OnClose()
	}
	if c.navigator != nil {
		c.navigator.NavigateTo(c.returnPath)
	}
	return nil
}
