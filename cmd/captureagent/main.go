// The captureagent binary runs the secure capture workflow on a handheld
// field device: scan the property's QR code, gather camera media plus a
// description, and submit everything as one upload. An operator drives the
// flow over a line-based console; health and debug endpoints serve field
// diagnostics.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	appcapture "github.com/Floyd-Pinto/ApnaGhar-sub000/internal/app/capture"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/app/capture/probe"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/config"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/debug"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/backend"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/internal/infra/camera"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/logger"
	"github.com/Floyd-Pinto/ApnaGhar-sub000/pkg/common/otel"
)

var build = "develop"

const serviceType = "capture-agent"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get hostname: %v\n", err)
		os.Exit(1)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("CAPTURE-AGENT-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
		"build":    build,
	}

	minLevel := logger.LevelInfo
	if strings.EqualFold(os.Getenv("CAPTURE_LOG_LEVEL"), "debug") {
		minLevel = logger.LevelDebug
	}
	log := logger.NewWithMetadata(os.Stdout, minLevel, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// Configuration

	cfg, err := config.NewViperLoader(os.Getenv("CAPTURE_CONFIG")).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	log.Info(ctx, "startup", "status", "configuration loaded", "backend", cfg.Backend.BaseURL)

	// -------------------------------------------------------------------------
	// Health Service

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(context.Background()); err != nil {
			log.Error(ctx, "shutdown", "status", "health server close", "err", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Telemetry

	var tracer trace.Tracer
	var meterProvider metric.MeterProvider
	if cfg.Telemetry.Enabled {
		traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      serviceType,
			ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
			ExcludedRoutes: map[string]struct{}{
				"/v1/readiness": {},
				"/v1/liveness":  {},
				"/debug":        {},
			},
			Probability: cfg.Telemetry.SampleProbability,
			ResourceAttributes: map[string]string{
				"library.language": "go",
				"host.name":        hostname,
			},
			InsecureExporter: cfg.Telemetry.Insecure,
		})
		if err != nil {
			return fmt.Errorf("starting telemetry: %w", err)
		}
		defer teardown(context.Background())
		tracer = traceProvider.Tracer(serviceType)
		meterProvider = otelglobal.GetMeterProvider()
	} else {
		tracer = tracenoop.NewTracerProvider().Tracer(serviceType)
		meterProvider = metricnoop.NewMeterProvider()
	}

	// -------------------------------------------------------------------------
	// Debug Service

	go func() {
		debugHost := os.Getenv("CAPTURE_DEBUG_HOST")
		if debugHost == "" {
			debugHost = "localhost:6060"
		}
		log.Info(ctx, "startup", "status", "debug router started", "host", debugHost)

		if err := http.ListenAndServe(debugHost, debug.Mux()); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", debugHost, "err", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Backend Reachability

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Backend.RequestTimeout,
	}
	if err := common.WaitForBackend(ctx, log, httpClient, cfg.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}

	// -------------------------------------------------------------------------
	// Capture Flow Wiring

	metrics, err := appcapture.NewCaptureMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	device, captureAPI := newCameraDevice()
	manager := camera.NewManager(device, log, tracer,
		camera.WithFallbackConfigs(cameraConfigs(cfg.Camera)),
		camera.WithDecodeRate(cfg.Camera.DecodeRate),
		camera.WithDecoder(camera.NewDecoder(cfg.Camera.RegionFraction)),
		camera.WithStats(metrics),
	)

	// The agent ships on handheld field devices only, so its user agent
	// carries the Mobile token the capability probe gates on.
	userAgent := fmt.Sprintf("ApnaGhar-CaptureAgent/%s (Mobile; %s/%s)", build, runtime.GOOS, runtime.GOARCH)
	deviceID := cfg.Flow.DeviceID
	if deviceID == "" {
		deviceID = hostname
	}
	deviceInfo := backend.DeviceInfo{
		IsMobile:  probe.IsLikelyMobile(userAgent),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		UserAgent: userAgent,
		DeviceID:  deviceID,
	}

	uploadClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Backend.UploadTimeout,
	}

	coordinator := appcapture.NewCoordinator(appcapture.Config{
		Prober:   probe.New(captureAPI),
		Scanner:  manager,
		Verifier: backend.NewVerifyClient(httpClient, cfg.Backend.BaseURL, cfg.Backend.VerifyPath, log, tracer),
		Uploader: backend.NewUploader(uploadClient, cfg.Backend.BaseURL, log, tracer),
		Navigator: logNavigator{log: log},
		Callbacks: appcapture.Callbacks{
			OnSuccess: func(r backend.Receipt) {
				log.Info(ctx, "submission accepted",
					"uploaded_images", r.UploadedImages, "uploaded_videos", r.UploadedVideos)
			},
			OnClose: func() {
				log.Info(ctx, "capture flow closed without submission")
			},
		},
		Metrics:    metrics,
		ReturnPath: cfg.Flow.ReturnPath,
		Device:     deviceInfo,
		Log:        log,
		Tracer:     tracer,
	})

	ready.Store(true)
	log.Info(ctx, "startup", "status", "capture agent ready", "hostname", hostname)

	return console(ctx, log, coordinator, cfg.Flow.Origin)
}

// cameraConfigs derives the negotiation order from configuration. A pinned
// device path collapses the fallback list to that single node.
func cameraConfigs(cfg config.CameraConfig) []camera.Config {
	if cfg.DevicePath != "" {
		return []camera.Config{{DevicePath: cfg.DevicePath, Width: cfg.Width, Height: cfg.Height}}
	}

	configs := camera.DefaultFallback()
	for i := range configs {
		configs[i].Width = cfg.Width
		configs[i].Height = cfg.Height
	}
	return configs
}

// logNavigator records where the flow would send the user. On a headless
// agent there is no page to move; the destination goes to the operator log.
type logNavigator struct {
	log *logger.Logger
}

func (n logNavigator) NavigateTo(path string) {
	n.log.Info(context.Background(), "navigation", "destination", path)
}

// console runs the operator loop. One command per line; the flow ends on
// submit, cancel, or signal.
func console(ctx context.Context, log *logger.Logger, c *appcapture.Coordinator, origin string) error {
	session, err := c.Begin(ctx, origin)
	if err != nil {
		return fmt.Errorf("opening capture flow: %w", err)
	}
	log.Info(ctx, "capture flow opened", "session_id", session.ID().String())

	fmt.Println("commands: scan | stop | photo <path> | video <path> | desc <text> | remove-photo <n> | remove-video <n> | status | submit | cancel")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.Cancel(context.Background()); err != nil && !errors.Is(err, appcapture.ErrNoFlow) {
				return err
			}
			return nil

		case line, ok := <-lines:
			if !ok {
				return c.Cancel(context.Background())
			}

			done, err := dispatch(ctx, c, line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			if done {
				return nil
			}
		}
	}
}

// dispatch executes one console command. It reports done=true when the flow
// reached a terminal state.
func dispatch(ctx context.Context, c *appcapture.Coordinator, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "scan":
		return false, c.StartScanning(ctx)

	case "stop":
		return false, c.StopScanning()

	case "photo", "video":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s <path>", cmd)
		}
		content, err := os.ReadFile(args[0])
		if err != nil {
			return false, err
		}
		if cmd == "photo" {
			return false, c.AttachImage(args[0], content)
		}
		return false, c.AttachVideo(args[0], content)

	case "desc":
		return false, c.SetDescription(strings.Join(args, " "))

	case "remove-photo", "remove-video":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s <n>", cmd)
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("not an index: %s", args[0])
		}
		if cmd == "remove-photo" {
			return false, c.RemoveImage(i)
		}
		return false, c.RemoveVideo(i)

	case "status":
		s := c.Session()
		fmt.Printf("stage=%s images=%d videos=%d description=%q\n",
			s.Stage(), len(s.Images()), len(s.Videos()), s.Description())
		return false, nil

	case "submit":
		if err := c.Submit(ctx); err != nil {
			return false, err
		}
		return true, nil

	case "cancel":
		return true, c.Cancel(ctx)

	default:
		return false, fmt.Errorf("unknown command: %s", cmd)
	}
}
