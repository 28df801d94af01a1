package capture

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/app/capture/probe"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/domain/capture"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/backend"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
)

func pngBytes() []byte {
	return []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}
}

type fakeScanner struct {
	mu       sync.Mutex
	onDecode func(string)
	startErr error
	starts   int
	stops    int
	active   bool
}

func (s *fakeScanner) OnDecode(fn func(string)) { s.onDecode = fn }

func (s *fakeScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	s.active = true
	return nil
}

func (s *fakeScanner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.active = false
	return nil
}

func (s *fakeScanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// fire simulates the first decode hit: the stream is released before the
// payload is handed over.
func (s *fakeScanner) fire(text string) {
	s.mu.Lock()
	s.active = false
	fn := s.onDecode
	s.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

type fakeVerifier struct {
	auth     capture.Authorization
	err      error
	payloads []string
}

func (v *fakeVerifier) Verify(_ context.Context, payload string, _ backend.DeviceInfo) (capture.Authorization, error) {
	v.payloads = append(v.payloads, payload)
	if v.err != nil {
		return capture.Authorization{}, v.err
	}
	return v.auth, nil
}

type fakeUploader struct {
	receipt backend.Receipt
	errs    []error
	calls   int
}

func (u *fakeUploader) Upload(_ context.Context, session *capture.Session, _ backend.DeviceInfo) (backend.Receipt, error) {
	if err := session.RequireUploadable(); err != nil {
		return backend.Receipt{}, err
	}
	u.calls++
	if len(u.errs) > 0 {
		err := u.errs[0]
		u.errs = u.errs[1:]
		if err != nil {
			return backend.Receipt{}, err
		}
	}
	return u.receipt, nil
}

type fakeNavigator struct {
	paths []string
}

func (n *fakeNavigator) NavigateTo(path string) { n.paths = append(n.paths, path) }

type fakeAPI struct{ available bool }

func (a fakeAPI) Available() bool { return a.available }

type countingMetrics struct {
	scans, decodes, fallbacks, verifyFailures int
	uploadOK, uploadFail                      int
	bytes                                     int64
}

func (m *countingMetrics) IncScansStarted(context.Context)         { m.scans++ }
func (m *countingMetrics) IncDecodeAttempt(context.Context)        { m.decodes++ }
func (m *countingMetrics) IncCameraFallback(context.Context)       { m.fallbacks++ }
func (m *countingMetrics) IncVerificationFailures(context.Context) { m.verifyFailures++ }
func (m *countingMetrics) IncUploads(_ context.Context, ok bool) {
	if ok {
		m.uploadOK++
	} else {
		m.uploadFail++
	}
}
func (m *countingMetrics) ObserveUploadBytes(_ context.Context, b int64) { m.bytes += b }

type harness struct {
	coordinator *Coordinator
	scanner     *fakeScanner
	verifier    *fakeVerifier
	uploader    *fakeUploader
	navigator   *fakeNavigator
	metrics     *countingMetrics
	successes   []backend.Receipt
	closes      int
}

func grantedAuth(t *testing.T) capture.Authorization {
	t.Helper()
	auth, err := capture.NewAuthorization(
		"tok-9b1", "/api/properties/42/media", "properties", "42", "Lakeview Villa",
		capture.Limits{MaxImages: 5, MaxVideos: 2},
	)
	require.NoError(t, err)
	return auth
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		scanner:   &fakeScanner{},
		verifier:  &fakeVerifier{auth: grantedAuth(t)},
		uploader:  &fakeUploader{receipt: backend.Receipt{UploadedImages: 1}},
		navigator: &fakeNavigator{},
		metrics:   &countingMetrics{},
	}

	h.coordinator = NewCoordinator(Config{
		Prober:    probe.New(fakeAPI{available: true}),
		Scanner:   h.scanner,
		Verifier:  h.verifier,
		Uploader:  h.uploader,
		Navigator: h.navigator,
		Callbacks: Callbacks{
			OnSuccess: func(r backend.Receipt) { h.successes = append(h.successes, r) },
			OnClose:   func() { h.closes++ },
		},
		Metrics:    h.metrics,
		ReturnPath: "/dashboard",
		Device: backend.DeviceInfo{
			IsMobile:  true,
			Platform:  "linux/arm64",
			UserAgent: "ApnaGhar-CaptureAgent/1.0 (Mobile; Android 14)",
		},
		Log:        logger.Noop(),
		Tracer:     noop.NewTracerProvider().Tracer("test"),
	})
	return h
}

// scanThrough drives the flow from Begin into the capture stage.
func (h *harness) scanThrough(t *testing.T, ctx context.Context) *capture.Session {
	t.Helper()
	session, err := h.coordinator.Begin(ctx, "https://apnaghar.example")
	require.NoError(t, err)
	require.NoError(t, h.coordinator.StartScanning(ctx))
	h.scanner.fire("APG-QR-00042")
	require.Equal(t, capture.StageCapture, session.Stage())
	return session
}

func TestBeginRejectsUnsupportedContext(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		userAgent  string
		api        fakeAPI
		wantReason string
	}{
		{
			name:       "insecure origin",
			origin:     "http://apnaghar.example",
			api:        fakeAPI{available: true},
			wantReason: probe.ReasonInsecureOrigin,
		},
		{
			name:       "no capture api",
			origin:     "https://apnaghar.example",
			api:        fakeAPI{available: false},
			wantReason: probe.ReasonAPIUnavailable,
		},
		{
			name:       "desktop device",
			origin:     "https://apnaghar.example",
			userAgent:  "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
			api:        fakeAPI{available: true},
			wantReason: probe.ReasonNonMobileDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.coordinator.prober = probe.New(tt.api)
			if tt.userAgent != "" {
				h.coordinator.device.UserAgent = tt.userAgent
			}

			_, err := h.coordinator.Begin(context.Background(), tt.origin)
			require.Error(t, err)

			var unsup *UnsupportedError
			require.ErrorAs(t, err, &unsup)
			assert.Equal(t, tt.wantReason, unsup.Reason)
			assert.Nil(t, h.coordinator.Session())
		})
	}
}

func TestBeginWhileFlowActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coordinator.Begin(ctx, "https://apnaghar.example")
	require.NoError(t, err)

	_, err = h.coordinator.Begin(ctx, "https://apnaghar.example")
	require.ErrorIs(t, err, ErrFlowActive)
}

func TestFullFlowSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.uploader.receipt = backend.Receipt{UploadedImages: 2}

	session := h.scanThrough(t, ctx)
	assert.Equal(t, []string{"APG-QR-00042"}, h.verifier.payloads)
	assert.Equal(t, "Lakeview Villa", session.Authorization().Title())
	assert.Equal(t, 1, h.metrics.scans)

	require.NoError(t, h.coordinator.AttachImage("kitchen.png", pngBytes()))
	require.NoError(t, h.coordinator.AttachImage("bedroom.png", pngBytes()))
	require.NoError(t, h.coordinator.SetDescription("two of three rooms done"))

	require.NoError(t, h.coordinator.Submit(ctx))

	require.Equal(t, []backend.Receipt{{UploadedImages: 2}}, h.successes)
	assert.Equal(t, 1, h.closes)
	assert.Equal(t, []string{"/properties/42"}, h.navigator.paths)
	assert.Equal(t, 1, h.metrics.uploadOK)
	assert.Equal(t, int64(len(pngBytes())*2), h.metrics.bytes)

	// The accepted upload resets the session to a clean slate.
	assert.Equal(t, capture.StageScan, session.Stage())
	assert.Zero(t, session.MediaCount())
	assert.Empty(t, session.Description())
	assert.True(t, session.Authorization().IsZero())
}

func TestVerificationFailureAllowsRescan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifier.err = &backend.VerificationError{StatusCode: http.StatusGone, Reason: "code expired"}

	session, err := h.coordinator.Begin(ctx, "https://apnaghar.example")
	require.NoError(t, err)
	require.NoError(t, h.coordinator.StartScanning(ctx))

	h.scanner.fire("APG-QR-expired")

	// Still in the scan stage; the user points the camera at a fresh code.
	assert.Equal(t, capture.StageScan, session.Stage())
	assert.Equal(t, 1, h.metrics.verifyFailures)

	h.verifier.err = nil
	require.NoError(t, h.coordinator.StartScanning(ctx))
	h.scanner.fire("APG-QR-00042")

	assert.Equal(t, capture.StageCapture, session.Stage())
	assert.Equal(t, 2, h.metrics.scans)
}

func TestSubmitFailurePreservesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.uploader.errs = []error{&backend.UploadError{StatusCode: http.StatusInternalServerError, Reason: "storage unavailable"}}
	h.uploader.receipt = backend.Receipt{UploadedImages: 1}

	session := h.scanThrough(t, ctx)
	require.NoError(t, h.coordinator.AttachImage("kitchen.png", pngBytes()))
	require.NoError(t, h.coordinator.SetDescription("kitchen only"))

	err := h.coordinator.Submit(ctx)
	var upErr *backend.UploadError
	require.ErrorAs(t, err, &upErr)

	// Everything captured survives the rejection.
	assert.Equal(t, capture.StageCapture, session.Stage())
	assert.Equal(t, 1, session.MediaCount())
	assert.Equal(t, "kitchen only", session.Description())
	assert.Empty(t, h.successes)
	assert.Zero(t, h.closes)
	assert.Equal(t, 1, h.metrics.uploadFail)

	// The retry reuses the same session and token.
	require.NoError(t, h.coordinator.Submit(ctx))
	require.Len(t, h.successes, 1)
	assert.Equal(t, 1, h.closes)
	assert.Equal(t, 2, h.uploader.calls)
}

func TestSubmitWithoutMediaRejectedLocally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.scanThrough(t, ctx)
	require.NoError(t, h.coordinator.SetDescription("text alone"))

	err := h.coordinator.Submit(ctx)
	require.ErrorIs(t, err, capture.ErrKind(capture.ErrKindNoMediaSelected))
	assert.Zero(t, h.uploader.calls)
	assert.Equal(t, capture.StageCapture, session.Stage())
	assert.Equal(t, "text alone", session.Description())
}

func TestCancelAtAnyStage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness, ctx context.Context)
	}{
		{
			name: "while scanning",
			setup: func(t *testing.T, h *harness, ctx context.Context) {
				_, err := h.coordinator.Begin(ctx, "https://apnaghar.example")
				require.NoError(t, err)
				require.NoError(t, h.coordinator.StartScanning(ctx))
			},
		},
		{
			name: "while capturing",
			setup: func(t *testing.T, h *harness, ctx context.Context) {
				h.scanThrough(t, ctx)
				require.NoError(t, h.coordinator.AttachImage("kitchen.png", pngBytes()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			tt.setup(t, h, ctx)

			require.NoError(t, h.coordinator.Cancel(ctx))

			assert.Equal(t, 1, h.closes)
			assert.Empty(t, h.successes)
			assert.Equal(t, []string{"/dashboard"}, h.navigator.paths)
			assert.False(t, h.scanner.Active())
			assert.Zero(t, h.uploader.calls)

			// The flow is over; terminal callbacks never fire twice.
			require.ErrorIs(t, h.coordinator.Cancel(ctx), ErrNoFlow)
			assert.Equal(t, 1, h.closes)
		})
	}
}

func TestTerminalCallbacksExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.scanThrough(t, ctx)
	require.NoError(t, h.coordinator.AttachImage("kitchen.png", pngBytes()))
	require.NoError(t, h.coordinator.Submit(ctx))

	require.Len(t, h.successes, 1)
	require.Equal(t, 1, h.closes)

	// Cancelling after success is a no-op on the callbacks.
	require.ErrorIs(t, h.coordinator.Cancel(ctx), ErrNoFlow)
	require.ErrorIs(t, h.coordinator.Submit(ctx), ErrNoFlow)
	assert.Equal(t, 1, h.closes)
	require.Len(t, h.successes, 1)
}

func TestOperationsRequireOpenFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.ErrorIs(t, h.coordinator.StartScanning(ctx), ErrNoFlow)
	require.ErrorIs(t, h.coordinator.AttachImage("x.png", pngBytes()), ErrNoFlow)
	require.ErrorIs(t, h.coordinator.SetDescription("x"), ErrNoFlow)
	require.ErrorIs(t, h.coordinator.Submit(ctx), ErrNoFlow)
	require.ErrorIs(t, h.coordinator.Cancel(ctx), ErrNoFlow)
}

func TestScannerStartFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.scanner.startErr = errors.New("camera busy")

	session, err := h.coordinator.Begin(ctx, "https://apnaghar.example")
	require.NoError(t, err)

	require.Error(t, h.coordinator.StartScanning(ctx))
	assert.False(t, session.IsScanningActive())

	h.scanner.startErr = nil
	require.NoError(t, h.coordinator.StartScanning(ctx))
}

// TestStartScanningWhileScanning verifies a duplicate scan command is
// rejected before it reaches the camera, leaving the running scan intact.
func TestStartScanningWhileScanning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session, err := h.coordinator.Begin(ctx, "https://apnaghar.example")
	require.NoError(t, err)
	require.NoError(t, h.coordinator.StartScanning(ctx))

	err = h.coordinator.StartScanning(ctx)
	require.ErrorIs(t, err, capture.ErrKind(capture.ErrKindSessionBusy))
	assert.Equal(t, 1, h.scanner.starts)
	assert.True(t, session.IsScanningActive())

	// The scan that was already running still completes normally.
	h.scanner.fire("APG-QR-00042")
	assert.Equal(t, capture.StageCapture, session.Stage())
	assert.Equal(t, 1, h.metrics.scans)
}

func TestNewFlowAfterSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.scanThrough(t, ctx)
	require.NoError(t, h.coordinator.AttachImage("kitchen.png", pngBytes()))
	require.NoError(t, h.coordinator.Submit(ctx))

	next, err := h.coordinator.Begin(ctx, "https://apnaghar.example")
	require.NoError(t, err)
	assert.Equal(t, capture.StageScan, next.Stage())
	assert.Zero(t, next.MediaCount())
}
