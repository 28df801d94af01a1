// Package backend holds the HTTP clients for the two marketplace endpoints
// the capture workflow consumes: QR verification and media upload. The
// backend itself is an external collaborator; these clients own only the
// wire contracts and error surfacing.
package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// DeviceInfo is the best-effort device fingerprint attached to both the
// verification request and the upload submission.
type DeviceInfo struct {
	IsMobile  bool   `json:"is_mobile"`
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
	DeviceID  string `json:"device_id,omitempty"`
}

// VerificationError is a rejected scan: expired, already used, or unknown.
// The reason is the backend-supplied detail so the user knows whether to
// rescan or give up.
type VerificationError struct {
	StatusCode int
	Reason     string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification rejected (%d): %s", e.StatusCode, e.Reason)
}

// UploadError is a failed submission. The session stays in the capture stage
// so the user can retry the same submission.
type UploadError struct {
	StatusCode int
	Reason     string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%d): %s", e.StatusCode, e.Reason)
}

// errorDetail is the error body shape shared by both endpoints.
type errorDetail struct {
	Detail string `json:"detail"`
}

// readDetail extracts the backend's detail message from an error response
// body, falling back to the raw body when it is not the expected shape.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no error detail provided"
	}

	var detail errorDetail
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	return string(raw)
}

// joinURL resolves an endpoint path against the backend base URL.
func joinURL(baseURL, path string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
