package application

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

const tracerName = "github.com/johnson-oragui/multi-tenant-license-service/internal/application"

// Config carries the business defaults the service applies when callers
// leave a value unset.
type Config struct {
	// DefaultSeatLimit applies when provisioning omits a seat limit. Zero
	// provisions unlimited licenses.
	DefaultSeatLimit      int
	DefaultPageSize       int
	MaxPageSize           int
	KeyGenerationAttempts int
}

type Service struct {
	cfg      Config
	store    ports.Store
	hasher   ports.SecretHasher
	metrics  ports.LifecycleMetrics
	logger   *zap.Logger
	tracer   trace.Tracer
	validate *validator.Validate
	nowFn    func() time.Time
}

type Dependencies struct {
	Config  Config
	Store   ports.Store
	Hasher  ports.SecretHasher
	Metrics ports.LifecycleMetrics
	Logger  *zap.Logger
	// Clock is optional; it defaults to UTC wall time.
	Clock func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	if cfg.KeyGenerationAttempts <= 0 {
		cfg.KeyGenerationAttempts = 5
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NoopMetrics
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:     cfg,
		store:   deps.Store,
		hasher:  deps.Hasher,
		metrics: metrics,
		logger: logger.With(
			zap.String("module", "application"),
			zap.String("layer", "service"),
		),
		tracer:   otel.Tracer(tracerName),
		validate: validator.New(),
		nowFn:    nowFn,
	}
}

// Ready reports whether the backing store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "license."+operation)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) logFailure(operation string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("operation", operation),
		zap.String("outcome", "failure"),
		zap.Error(err),
	)
	s.logger.Warn("license operation failed", fields...)
}

func (s *Service) logSuccess(msg, operation string, fields ...zap.Field) {
	fields = append(fields,
		zap.String("operation", operation),
		zap.String("outcome", "success"),
	)
	s.logger.Info(msg, fields...)
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
