package telemetry

import (
	"context"

	"github.com/rs/zerolog"
)

// Telemetry bundles the observability components built from one Config.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Cycles  *CycleLog
}

// New builds the full telemetry stack from configuration.
func New(cfg Config) (*Telemetry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger = logger.With().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger()

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: NewMetrics(cfg.Metrics),
		Cycles:  NewCycleLog(defaultCycleLogSize),
	}, nil
}

// Shutdown flushes telemetry buffers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}
