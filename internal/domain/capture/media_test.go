package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNewMediaFileSniffsContent checks the MIME type comes from the bytes,
// not from the file name.
func TestNewMediaFileSniffsContent(t *testing.T) {
	captured := time.Date(2025, time.March, 1, 10, 30, 0, 0, time.UTC)

	m, err := NewMediaFile("capture_001.png", MediaKindImage, pngBytes(), captured)
	require.NoError(t, err)
	require.Equal(t, "image/png", m.MimeType())
	require.Equal(t, MediaKindImage, m.Kind())
	require.Equal(t, captured, m.CapturedAt())
	require.Equal(t, int64(len(pngBytes())), m.Size())
}

// TestNewMediaFileRejectsKindMismatch verifies a video buffer declared as an
// image is rejected. This is the camera-only gate: content that did not come
// out of the capture pipeline as the declared kind never enters a session.
func TestNewMediaFileRejectsKindMismatch(t *testing.T) {
	_, err := NewMediaFile("sneaky.png", MediaKindImage, mp4Bytes(), time.Now())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrKind(ErrKindMediaMismatch))

	_, err = NewMediaFile("not-a-video.mp4", MediaKindVideo, pngBytes(), time.Now())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrKind(ErrKindMediaMismatch))
}

// TestNewMediaFileRejectsEmptyContent ensures zero-byte files never enter
// the selection.
func TestNewMediaFileRejectsEmptyContent(t *testing.T) {
	_, err := NewMediaFile("empty.png", MediaKindImage, nil, time.Now())
	require.Error(t, err)
}
