package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// MediaKind distinguishes the two kinds of media a session can hold.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) String() string { return string(k) }

// MediaFile is a value object holding one camera-captured file: its content,
// the MIME type detected from that content, and the moment it was captured.
// Construction sniffs the actual bytes rather than trusting a declared
// content type, so a file that did not come out of the capture pipeline as
// the declared kind is rejected up front.
type MediaFile struct {
	name       string
	mimeType   string
	content    []byte
	kind       MediaKind
	capturedAt time.Time
}

// NewMediaFile validates and builds a MediaFile of the given kind. It returns
// a MediaMismatch error when the sniffed content type does not belong to the
// declared kind.
func NewMediaFile(name string, kind MediaKind, content []byte, capturedAt time.Time) (MediaFile, error) {
	if len(content) == 0 {
		return MediaFile{}, fmt.Errorf("media file %q has no content", name)
	}

	detected := mimetype.Detect(content)
	if !strings.HasPrefix(detected.String(), string(kind)+"/") {
		return MediaFile{}, newMediaMismatchError(kind, detected.String())
	}

	return MediaFile{
		name:       name,
		mimeType:   detected.String(),
		content:    content,
		kind:       kind,
		capturedAt: capturedAt,
	}, nil
}

// ReconstructMediaFile builds a MediaFile from already-validated parts.
// This should only be used when rehydrating a session, never for new input.
func ReconstructMediaFile(name, mimeType string, kind MediaKind, content []byte, capturedAt time.Time) MediaFile {
	return MediaFile{
		name:       name,
		mimeType:   mimeType,
		content:    content,
		kind:       kind,
		capturedAt: capturedAt,
	}
}

// Name returns the file name the capture surface assigned.
func (m MediaFile) Name() string { return m.name }

// MimeType returns the MIME type detected from the file content.
func (m MediaFile) MimeType() string { return m.mimeType }

// Content returns the raw file bytes.
func (m MediaFile) Content() []byte { return m.content }

// Kind returns whether this file is an image or a video.
func (m MediaFile) Kind() MediaKind { return m.kind }

// CapturedAt returns the capture timestamp.
func (m MediaFile) CapturedAt() time.Time { return m.capturedAt }

// Size returns the content length in bytes.
func (m MediaFile) Size() int64 { return int64(len(m.content)) }
