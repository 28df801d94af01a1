package capture

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CaptureMetrics defines the metrics operations the capture flow records.
// It also satisfies the camera package's Stats interface so one collector
// covers the whole pipeline.
type CaptureMetrics interface {
	// Scan metrics
	IncScansStarted(ctx context.Context)
	IncDecodeAttempt(ctx context.Context)
	IncCameraFallback(ctx context.Context)

	// Verification metrics
	IncVerificationFailures(ctx context.Context)

	// Upload metrics
	IncUploads(ctx context.Context, succeeded bool)
	ObserveUploadBytes(ctx context.Context, bytes int64)
}

// captureMetrics implements CaptureMetrics over otel instruments.
type captureMetrics struct {
	scansStarted   metric.Int64Counter
	decodeAttempts metric.Int64Counter
	cameraFallback metric.Int64Counter

	verificationFailures metric.Int64Counter

	uploads     metric.Int64Counter
	uploadBytes metric.Int64Histogram
}

const namespace = "capture"

// NewCaptureMetrics creates a capture metrics instance.
func NewCaptureMetrics(mp metric.MeterProvider) (*captureMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	c := new(captureMetrics)
	var err error

	if c.scansStarted, err = meter.Int64Counter(
		"scans_started_total",
		metric.WithDescription("Total number of QR scan sessions started"),
	); err != nil {
		return nil, err
	}

	if c.decodeAttempts, err = meter.Int64Counter(
		"decode_attempts_total",
		metric.WithDescription("Total number of frames submitted to the QR decoder"),
	); err != nil {
		return nil, err
	}

	if c.cameraFallback, err = meter.Int64Counter(
		"camera_fallbacks_total",
		metric.WithDescription("Total number of camera configurations that failed before one started"),
	); err != nil {
		return nil, err
	}

	if c.verificationFailures, err = meter.Int64Counter(
		"verification_failures_total",
		metric.WithDescription("Total number of QR payloads the backend rejected"),
	); err != nil {
		return nil, err
	}

	if c.uploads, err = meter.Int64Counter(
		"uploads_total",
		metric.WithDescription("Total number of upload submissions attempted"),
	); err != nil {
		return nil, err
	}

	if c.uploadBytes, err = meter.Int64Histogram(
		"upload_body_bytes",
		metric.WithDescription("Size of each submitted multipart upload body"),
	); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *captureMetrics) IncScansStarted(ctx context.Context) {
	c.scansStarted.Add(ctx, 1)
}

func (c *captureMetrics) IncDecodeAttempt(ctx context.Context) {
	c.decodeAttempts.Add(ctx, 1)
}

func (c *captureMetrics) IncCameraFallback(ctx context.Context) {
	c.cameraFallback.Add(ctx, 1)
}

func (c *captureMetrics) IncVerificationFailures(ctx context.Context) {
	c.verificationFailures.Add(ctx, 1)
}

func (c *captureMetrics) IncUploads(ctx context.Context, succeeded bool) {
	c.uploads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("succeeded", succeeded)))
}

func (c *captureMetrics) ObserveUploadBytes(ctx context.Context, bytes int64) {
	c.uploadBytes.Record(ctx, bytes)
}
