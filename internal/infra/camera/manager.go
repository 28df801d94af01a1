package camera

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
)

// defaultDecodeRate is the nominal frame decode cadence in frames/second.
const defaultDecodeRate = 10

// Stats receives counters from the capture loop. Implementations must be
// safe for concurrent use; the decode loop calls them from its own goroutine.
type Stats interface {
	IncDecodeAttempt(ctx context.Context)
	IncCameraFallback(ctx context.Context)
}

// noopStats is the default when no collector is wired.
type noopStats struct{}

func (noopStats) IncDecodeAttempt(context.Context)  {}
func (noopStats) IncCameraFallback(context.Context) {}

// Manager owns at most one live camera session at a time. Start negotiates a
// stream through the fallback list and runs the decode loop; Stop is
// idempotent and always releases the hardware. Every exit path, first decode
// hit, explicit stop, context cancellation, negotiation failure, routes
// through the same release function, so no path can leave the camera
// acquired without an active consumer.
type Manager struct {
	device  Device
	configs []Config
	decoder *Decoder
	limiter *common.RateLimiter
	log     *logger.Logger
	tracer  trace.Tracer
	stats   Stats

	onDecode func(text string)

	mu       sync.Mutex
	session  *activeSession
	starting bool
}

// activeSession is the state of one running stream.
type activeSession struct {
	stream   Stream
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// release tears the session down exactly once: cancel the loop, close the
// stream, release the hardware.
func (as *activeSession) release() {
	as.stopOnce.Do(func() {
		as.cancel()
		as.stream.Close()
		close(as.done)
	})
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFallbackConfigs overrides the negotiation order.
func WithFallbackConfigs(configs []Config) ManagerOption {
	return func(m *Manager) { m.configs = configs }
}

// WithDecodeRate overrides the decode cadence in frames/second.
func WithDecodeRate(fps float64) ManagerOption {
	return func(m *Manager) { m.limiter = common.NewRateLimiter(fps, 1) }
}

// WithDecoder overrides the frame decoder.
func WithDecoder(d *Decoder) ManagerOption {
	return func(m *Manager) { m.decoder = d }
}

// WithStats wires a stats collector into the negotiation and decode paths.
func WithStats(s Stats) ManagerOption {
	return func(m *Manager) { m.stats = s }
}

// NewManager creates a Manager over the given device.
func NewManager(device Device, log *logger.Logger, tracer trace.Tracer, opts ...ManagerOption) *Manager {
	m := &Manager{
		device:  device,
		configs: DefaultFallback(),
		decoder: NewDecoder(0.8),
		limiter: common.NewRateLimiter(defaultDecodeRate, 1),
		log:     log,
		tracer:  tracer,
		stats:   noopStats{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnDecode registers the callback fired once per session with the first
// successfully decoded payload. The stream is already stopped when the
// callback runs.
func (m *Manager) OnDecode(fn func(text string)) { m.onDecode = fn }

// Active reports whether a camera session is currently running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// ErrAlreadyActive is returned by Start when a session is already running.
var ErrAlreadyActive = errors.New("camera session already active")

// Start negotiates a camera and begins the decode loop. On total negotiation
// failure it returns the classified last error; the manager stays inactive
// and the user may retry after remediation.
func (m *Manager) Start(ctx context.Context) error {
	// The starting flag covers the negotiation window so two concurrent
	// Starts can never both acquire hardware.
	m.mu.Lock()
	if m.session != nil || m.starting {
		m.mu.Unlock()
		return ErrAlreadyActive
	}
	m.starting = true
	m.mu.Unlock()

	stream, cfg, attempts, err := negotiate(ctx, m.tracer, m.device, m.configs)
	for _, a := range attempts {
		m.stats.IncCameraFallback(ctx)
		m.log.Debug(ctx, "camera configuration failed, trying next",
			"facing", string(a.Config.Facing), "error", a.Err)
	}
	if err != nil {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
		var acqErr *AcquireError
		if errors.As(err, &acqErr) {
			m.log.Error(ctx, "camera negotiation exhausted",
				"class", string(acqErr.Class()), "error", err)
		}
		return err
	}

	m.log.Info(ctx, "camera session started", "facing", string(cfg.Facing), "device", cfg.DevicePath)

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session := &activeSession{
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.session = session
	m.starting = false
	m.mu.Unlock()

	go m.decodeLoop(loopCtx, session)

	// Stop the session if the caller's context dies first.
	go func() {
		select {
		case <-ctx.Done():
			m.stopSession(session)
		case <-session.done:
		}
	}()

	return nil
}

// Stop tears down the active session, if any. It is idempotent and safe to
// call when no session was ever started.
func (m *Manager) Stop() error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil {
		return nil
	}
	m.stopSession(session)
	return nil
}

func (m *Manager) stopSession(session *activeSession) {
	session.release()

	m.mu.Lock()
	if m.session == session {
		m.session = nil
	}
	m.mu.Unlock()
}

// decodeLoop pulls frames at the configured cadence and tries to decode a QR
// code from each. Decode misses are not failures; only the first hit matters
// and it ends the session.
func (m *Manager) decodeLoop(ctx context.Context, session *activeSession) {
	ctx, span := m.tracer.Start(ctx, "camera.decode_loop")
	defer span.End()

	frames := 0
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}

		frame, err := session.stream.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient frame errors are skipped the same way decode
			// misses are.
			continue
		}
		frames++
		m.stats.IncDecodeAttempt(ctx)

		text, err := m.decoder.Decode(frame)
		if err != nil {
			continue
		}

		span.SetAttributes(attribute.Int("frames_seen", frames))
		m.log.Info(ctx, "qr code decoded", "frames_seen", frames)

		// Release the camera before handing the payload over: the consumer
		// will start network work and must not hold the hardware.
		m.stopSession(session)

		if m.onDecode != nil {
			m.onDecode(text)
		}
		return
	}
}
