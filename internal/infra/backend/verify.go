package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/domain/capture"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
)

// VerifyClient exchanges a decoded QR payload for an upload authorization.
// There are no retries: a scan is either valid now or the user rescans.
type VerifyClient struct {
	httpClient *http.Client
	baseURL    string
	verifyPath string
	log        *logger.Logger
	tracer     trace.Tracer
}

// NewVerifyClient creates a client for the verification endpoint.
func NewVerifyClient(httpClient *http.Client, baseURL, verifyPath string, log *logger.Logger, tracer trace.Tracer) *VerifyClient {
	return &VerifyClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		verifyPath: verifyPath,
		log:        log,
		tracer:     tracer,
	}
}

// verifyRequest is the wire shape of a verification call.
type verifyRequest struct {
	QRData     string     `json:"qr_data"`
	DeviceInfo DeviceInfo `json:"device_info"`
}

// verifyResponse is the wire shape of a granted authorization.
type verifyResponse struct {
	UploadToken    string `json:"upload_token"`
	UploadEndpoint string `json:"upload_endpoint"`
	EntityType     string `json:"entity_type"`
	EntityID       string `json:"entity_id"`
	Title          string `json:"title"`
	Limits         struct {
		MaxImages int `json:"max_images"`
		MaxVideos int `json:"max_videos"`
	} `json:"limits"`
}

// Verify submits the decoded payload with the device fingerprint and returns
// the authorization context on success. Non-2xx responses become a
// VerificationError carrying the backend's reason.
func (c *VerifyClient) Verify(ctx context.Context, payload string, device DeviceInfo) (capture.Authorization, error) {
	ctx, span := c.tracer.Start(ctx, "backend.verify_qr",
		trace.WithAttributes(attribute.Bool("device.is_mobile", device.IsMobile)))
	defer span.End()

	body, err := json.Marshal(verifyRequest{QRData: payload, DeviceInfo: device})
	if err != nil {
		return capture.Authorization{}, fmt.Errorf("encoding verification request: %w", err)
	}

	endpoint, err := joinURL(c.baseURL, c.verifyPath)
	if err != nil {
		return capture.Authorization{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return capture.Authorization{}, fmt.Errorf("creating verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return capture.Authorization{}, fmt.Errorf("calling verification endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		vErr := &VerificationError{StatusCode: resp.StatusCode, Reason: readDetail(resp.Body)}
		span.RecordError(vErr)
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		c.log.Warn(ctx, "qr verification rejected", "status", resp.StatusCode, "reason", vErr.Reason)
		return capture.Authorization{}, vErr
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return capture.Authorization{}, fmt.Errorf("decoding verification response: %w", err)
	}

	auth, err := capture.NewAuthorization(
		vr.UploadToken,
		vr.UploadEndpoint,
		vr.EntityType,
		vr.EntityID,
		vr.Title,
		capture.Limits{MaxImages: vr.Limits.MaxImages, MaxVideos: vr.Limits.MaxVideos},
	)
	if err != nil {
		return capture.Authorization{}, fmt.Errorf("invalid authorization from backend: %w", err)
	}

	c.log.Info(ctx, "qr verified",
		"entity_type", auth.EntityType(), "entity_id", auth.EntityID(),
		"max_images", auth.Limits().MaxImages, "max_videos", auth.Limits().MaxVideos)

	return auth, nil
}
