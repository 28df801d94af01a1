package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
)

// qrFrame renders a frame containing a QR code for the given payload.
func qrFrame(t *testing.T, payload string) image.Image {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 256, 256, nil)
	require.NoError(t, err)
	return matrix
}

// blankFrame renders a frame with no code in it.
func blankFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

// fakeStream yields a fixed sequence of frames, then blocks until closed.
type fakeStream struct {
	mu     sync.Mutex
	frames []image.Image
	closed int
	done   chan struct{}
}

func newFakeStream(frames ...image.Image) *fakeStream {
	return &fakeStream{frames: frames, done: make(chan struct{})}
}

func (f *fakeStream) NextFrame(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	if len(f.frames) > 0 {
		frame := f.frames[0]
		f.frames = f.frames[1:]
		f.mu.Unlock()
		return frame, nil
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return nil, errors.New("stream closed")
	}
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	if f.closed == 1 {
		close(f.done)
	}
	return nil
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDevice fails a configured number of attempts before succeeding, or
// fails every attempt with the configured errors.
type fakeDevice struct {
	mu       sync.Mutex
	outcomes []func() (Stream, error)
	opened   []Config
}

func (d *fakeDevice) Open(ctx context.Context, cfg Config) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, cfg)
	if len(d.outcomes) == 0 {
		return nil, errors.New("no outcome configured")
	}
	next := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	return next()
}

func succeedWith(s Stream) func() (Stream, error) {
	return func() (Stream, error) { return s, nil }
}

func failWith(err error) func() (Stream, error) {
	return func() (Stream, error) { return nil, err }
}

func newTestManager(t *testing.T, device Device, opts ...ManagerOption) *Manager {
	t.Helper()
	base := []ManagerOption{
		// Fast cadence keeps the tests quick; the nominal rate is 10 fps.
		WithDecodeRate(1000),
		WithDecoder(NewDecoder(1)),
	}
	return NewManager(device, logger.Noop(), noop.NewTracerProvider().Tracer("test"), append(base, opts...)...)
}

// TestManagerDecodesAndStops verifies the decode loop skips blank frames,
// fires the callback with the decoded payload, and releases the stream
// exactly once before the callback runs.
func TestManagerDecodesAndStops(t *testing.T) {
	stream := newFakeStream(blankFrame(), blankFrame(), qrFrame(t, "APG-QR-00042"))
	device := &fakeDevice{outcomes: []func() (Stream, error){succeedWith(stream)}}
	m := newTestManager(t, device)

	decoded := make(chan string, 1)
	m.OnDecode(func(text string) {
		// The hardware must already be released here.
		assert.Equal(t, 1, stream.closeCount())
		decoded <- text
	})

	require.NoError(t, m.Start(context.Background()))

	select {
	case text := <-decoded:
		require.Equal(t, "APG-QR-00042", text)
	case <-time.After(5 * time.Second):
		t.Fatal("decode callback never fired")
	}

	require.Eventually(t, func() bool { return !m.Active() }, time.Second, 10*time.Millisecond)
	require.Equal(t, 1, stream.closeCount())
}

// TestManagerFallbackOrder verifies configurations are attempted in order,
// negotiation stops at the first success, and later configurations are never
// tried.
func TestManagerFallbackOrder(t *testing.T) {
	stream := newFakeStream()
	device := &fakeDevice{outcomes: []func() (Stream, error){
		failWith(errors.New("rear camera absent")),
		failWith(errors.New("front camera absent")),
		succeedWith(stream),
	}}
	m := newTestManager(t, device)

	require.NoError(t, m.Start(context.Background()))
	require.True(t, m.Active())

	require.Len(t, device.opened, 3)
	require.Equal(t, FacingRear, device.opened[0].Facing)
	require.Equal(t, FacingFront, device.opened[1].Facing)
	require.Equal(t, FacingAny, device.opened[2].Facing)

	require.NoError(t, m.Stop())
	require.False(t, m.Active())
	require.Equal(t, 1, stream.closeCount())
}

// TestManagerAllConfigurationsFail verifies the surfaced error is the last
// attempt's error, classified into one of the defined categories.
func TestManagerAllConfigurationsFail(t *testing.T) {
	tests := []struct {
		name      string
		lastErr   error
		wantClass ErrorClass
	}{
		{name: "permission denied", lastErr: os.ErrPermission, wantClass: ClassPermissionDenied},
		{name: "no camera", lastErr: ErrNoCamera, wantClass: ClassNotFound},
		{name: "busy", lastErr: ErrCameraBusy, wantClass: ClassBusy},
		{name: "generic", lastErr: errors.New("ioctl failed"), wantClass: ClassGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &fakeDevice{outcomes: []func() (Stream, error){
				failWith(errors.New("first failure")),
				failWith(errors.New("second failure")),
				failWith(tt.lastErr),
			}}
			m := newTestManager(t, device)

			err := m.Start(context.Background())
			require.Error(t, err)
			require.False(t, m.Active())

			var acqErr *AcquireError
			require.ErrorAs(t, err, &acqErr)
			require.Equal(t, tt.wantClass, acqErr.Class())
			require.NotEmpty(t, acqErr.Remediation())
			// The last attempt's error is the one surfaced.
			require.ErrorIs(t, err, tt.lastErr)
		})
	}
}

// TestManagerStopIdempotent verifies Stop is safe to call twice and safe to
// call when no session was ever started.
func TestManagerStopIdempotent(t *testing.T) {
	device := &fakeDevice{}
	m := newTestManager(t, device)

	require.NoError(t, m.Stop())

	stream := newFakeStream()
	device.outcomes = []func() (Stream, error){succeedWith(stream)}
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	require.Equal(t, 1, stream.closeCount())
	require.False(t, m.Active())
}

// TestManagerStartWhileActive verifies double-start is rejected without
// disturbing the running session.
func TestManagerStartWhileActive(t *testing.T) {
	stream := newFakeStream()
	device := &fakeDevice{outcomes: []func() (Stream, error){succeedWith(stream)}}
	m := newTestManager(t, device)

	require.NoError(t, m.Start(context.Background()))
	require.ErrorIs(t, m.Start(context.Background()), ErrAlreadyActive)
	require.True(t, m.Active())
	require.NoError(t, m.Stop())
}

// TestManagerConcurrentStartRejected verifies a second Start issued while the
// first is still negotiating is rejected, so only one stream is ever acquired.
func TestManagerConcurrentStartRejected(t *testing.T) {
	stream := newFakeStream()
	opened := make(chan struct{})
	release := make(chan struct{})
	device := &fakeDevice{outcomes: []func() (Stream, error){
		func() (Stream, error) {
			close(opened)
			<-release
			return stream, nil
		},
	}}
	m := newTestManager(t, device)

	firstDone := make(chan error, 1)
	go func() { firstDone <- m.Start(context.Background()) }()

	<-opened
	require.ErrorIs(t, m.Start(context.Background()), ErrAlreadyActive)

	close(release)
	require.NoError(t, <-firstDone)
	require.True(t, m.Active())
	require.Len(t, device.opened, 1)

	require.NoError(t, m.Stop())
	require.Equal(t, 1, stream.closeCount())
}

// TestManagerContextCancelReleases verifies cancellation of the caller's
// context releases the hardware.
func TestManagerContextCancelReleases(t *testing.T) {
	stream := newFakeStream()
	device := &fakeDevice{outcomes: []func() (Stream, error){succeedWith(stream)}}
	m := newTestManager(t, device)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	require.Eventually(t, func() bool { return !m.Active() }, time.Second, 10*time.Millisecond)
	require.Equal(t, 1, stream.closeCount())
}
