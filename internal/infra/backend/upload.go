package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/domain/capture"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/timeutil"
)

// Receipt reports how many files of each kind the backend accepted.
type Receipt struct {
	UploadedImages int `json:"uploaded_images"`
	UploadedVideos int `json:"uploaded_videos"`
}

// captureMetadata is the provenance block attached to every submission.
type captureMetadata struct {
	CameraCaptured bool      `json:"camera_captured"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Uploader packages an accumulated session into one multipart submission and
// posts it to the endpoint named by the session's authorization. The upload
// token is attached as-is on every attempt; invalidating a consumed token is
// the backend's responsibility, not the client's.
type Uploader struct {
	httpClient   *http.Client
	baseURL      string
	log          *logger.Logger
	tracer       trace.Tracer
	timeProvider timeutil.Provider
}

// NewUploader creates an Uploader posting against the given backend base URL.
func NewUploader(httpClient *http.Client, baseURL string, log *logger.Logger, tracer trace.Tracer) *Uploader {
	return &Uploader{
		httpClient:   httpClient,
		baseURL:      baseURL,
		log:          log,
		tracer:       tracer,
		timeProvider: timeutil.Default(),
	}
}

// WithTimeProvider overrides the clock stamped into capture metadata.
func (u *Uploader) WithTimeProvider(tp timeutil.Provider) *Uploader {
	u.timeProvider = tp
	return u
}

// Upload submits the session's accumulated media and description. It
// enforces the uploader preconditions (authorization present, at least one
// file) locally before any network call; advancing past capture on text
// alone is allowed, but submitting without evidence is not.
func (u *Uploader) Upload(ctx context.Context, session *capture.Session, device DeviceInfo) (Receipt, error) {
	ctx, span := u.tracer.Start(ctx, "backend.upload_media",
		trace.WithAttributes(
			attribute.String("session_id", session.ID().String()),
			attribute.Int("image_count", len(session.Images())),
			attribute.Int("video_count", len(session.Videos())),
		))
	defer span.End()

	if err := session.RequireUploadable(); err != nil {
		span.RecordError(err)
		return Receipt{}, err
	}

	auth := session.Authorization()

	body, contentType, err := u.buildMultipart(session, device)
	if err != nil {
		return Receipt{}, fmt.Errorf("building upload body: %w", err)
	}
	span.SetAttributes(attribute.Int("body_bytes", body.Len()))

	endpoint, err := joinURL(u.baseURL, auth.UploadEndpointPath())
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Receipt{}, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return Receipt{}, &UploadError{StatusCode: 0, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upErr := &UploadError{StatusCode: resp.StatusCode, Reason: readDetail(resp.Body)}
		span.RecordError(upErr)
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		u.log.Warn(ctx, "upload rejected", "status", resp.StatusCode, "reason", upErr.Reason)
		return Receipt{}, upErr
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, fmt.Errorf("decoding upload response: %w", err)
	}

	u.log.Info(ctx, "upload accepted",
		"uploaded_images", receipt.UploadedImages, "uploaded_videos", receipt.UploadedVideos)

	return receipt, nil
}

// buildMultipart assembles the single multipart submission: token, device
// fingerprint, capture provenance, optional description, then every file.
func (u *Uploader) buildMultipart(session *capture.Session, device DeviceInfo) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if err := w.WriteField("upload_token", session.Authorization().UploadToken()); err != nil {
		return nil, "", err
	}

	deviceJSON, err := json.Marshal(device)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("device_info", string(deviceJSON)); err != nil {
		return nil, "", err
	}

	metaJSON, err := json.Marshal(captureMetadata{
		CameraCaptured: true,
		CapturedAt:     u.timeProvider.Now().UTC(),
	})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("capture_metadata", string(metaJSON)); err != nil {
		return nil, "", err
	}

	if desc := session.Description(); desc != "" {
		if err := w.WriteField("description", desc); err != nil {
			return nil, "", err
		}
	}

	for _, m := range session.Images() {
		if err := writeFilePart(w, "images", m); err != nil {
			return nil, "", err
		}
	}
	for _, m := range session.Videos() {
		if err := writeFilePart(w, "videos", m); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// writeFilePart adds one file with its sniffed content type, which the
// default form-file helper would discard.
func writeFilePart(w *multipart.Writer, field string, m capture.MediaFile) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, m.Name()))
	h.Set("Content-Type", m.MimeType())

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(m.Content())
	return err
}
