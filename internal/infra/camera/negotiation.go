package camera

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attempt records the outcome of one configuration in the fallback sequence.
// The accumulated attempts exist only for diagnostics and user-facing error
// classification; they are discarded once a camera starts or the list is
// exhausted.
type Attempt struct {
	Config Config
	Err    error
}

// negotiate walks the configurations in order and returns the first stream
// that starts, the configuration that produced it, and the record of failed
// attempts so far. When every configuration fails, the error surfaced is the
// classified LAST error: by the time the terminal "any camera" attempt has
// failed, its error is the most truthful account of the device's state.
//
// A partially acquired stream from a failed attempt is closed before the
// next configuration is tried, so negotiation itself never leaks a handle.
func negotiate(ctx context.Context, tracer trace.Tracer, device Device, configs []Config) (Stream, Config, []Attempt, error) {
	ctx, span := tracer.Start(ctx, "camera.negotiate",
		trace.WithAttributes(attribute.Int("config_count", len(configs))))
	defer span.End()

	if len(configs) == 0 {
		err := classify(ErrNoCamera)
		span.RecordError(err)
		return nil, Config{}, nil, err
	}

	attempts := make([]Attempt, 0, len(configs))

	for _, cfg := range configs {
		stream, err := device.Open(ctx, cfg)
		if err == nil {
			span.SetAttributes(
				attribute.String("selected_facing", string(cfg.Facing)),
				attribute.Int("failed_attempts", len(attempts)),
			)
			return stream, cfg, attempts, nil
		}

		if stream != nil {
			stream.Close()
		}
		attempts = append(attempts, Attempt{Config: cfg, Err: err})
	}

	last := attempts[len(attempts)-1].Err
	acqErr := classify(last)

	span.RecordError(acqErr)
	span.SetAttributes(attribute.String("error_class", string(acqErr.Class())))

	return nil, Config{}, attempts, acqErr
}
