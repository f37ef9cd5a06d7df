package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/cache"
	eventadapter "github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/events"
	httpadapter "github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/http"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/memory"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/postgres"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/security"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/application"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/platform/logger"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/platform/metrics"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/platform/tracing"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

// Runtime holds the wired process: store, service, servers and relay.
type Runtime struct {
	cfg        Config
	logger     *zap.Logger
	service    *application.Service
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	outbox     *eventadapter.OutboxWorker
	closers    []func() error
}

// NewRuntime loads configuration from path and wires every dependency.
func NewRuntime(ctx context.Context, path string) (*Runtime, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{
		Service:     cfg.Service.Name,
		Environment: cfg.Service.Environment,
		Level:       cfg.Observability.LogLevel,
	})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return newRuntime(ctx, cfg, log)
}

func newRuntime(ctx context.Context, cfg Config, log *zap.Logger) (_ *Runtime, err error) {
	rt := &Runtime{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			rt.cleanup()
		}
	}()

	shutdownTracing, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(ctx)
	})

	store, relay, err := rt.openStore(ctx)
	if err != nil {
		return nil, err
	}

	limiter, err := rt.openRateLimiter(ctx)
	if err != nil {
		return nil, err
	}

	publisher, err := rt.openPublisher()
	if err != nil {
		return nil, err
	}

	registry := metrics.New(cfg.Observability.MetricsNamespace)
	rt.service = application.NewService(application.Dependencies{
		Config: application.Config{
			DefaultSeatLimit: cfg.Licensing.DefaultSeatLimit,
			DefaultPageSize:  cfg.Licensing.DefaultPageSize,
			MaxPageSize:      cfg.Licensing.MaxPageSize,
		},
		Store:   store,
		Hasher:  security.NewBcryptHasher(cfg.Security.BcryptCost),
		Metrics: registry,
		Logger:  log,
	})

	ipKey, err := rt.clientIPKey()
	if err != nil {
		return nil, err
	}
	handler := httpadapter.NewHandler(rt.service, log)
	router := httpadapter.NewRouter(handler, httpadapter.RouterOptions{
		Metrics:           registry,
		MetricsHandler:    registry.Handler(),
		TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		RateLimits: httpadapter.RateLimits{
			Limiter:     limiter,
			BrandLimit:  cfg.RateLimit.BrandLimit,
			AnonLimit:   cfg.RateLimit.AnonLimit,
			Window:      cfg.RateLimit.Window,
			ClientIPKey: ipKey,
		},
	})
	rt.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rt.grpcServer = grpc.NewServer()
	rt.health = health.NewServer()
	healthpb.RegisterHealthServer(rt.grpcServer, rt.health)
	rt.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	rt.outbox = eventadapter.NewOutboxWorker(
		log,
		relay,
		publisher,
		cfg.Outbox.PollInterval,
		cfg.Outbox.BatchSize,
		cfg.Outbox.ClaimTTL,
		cfg.Outbox.MaxRetries,
	).WithObserver(registry)

	return rt, nil
}

func (r *Runtime) openStore(ctx context.Context) (ports.Store, ports.OutboxRelay, error) {
	if r.cfg.Store.Driver == DriverMemory {
		r.logger.Warn("using in-memory store; data is lost on restart",
			zap.String("module", "bootstrap"),
			zap.String("operation", "open_store"),
		)
		store := memory.NewStore()
		return store, store, nil
	}

	db, err := postgres.Connect(ctx, r.cfg.Store.Driver, r.cfg.Store.DSN, r.cfg.Store.MaxConns, r.logger)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.NewStore(db, r.cfg.Store.TxRetries, r.logger)
	r.closers = append(r.closers, store.Close)
	if r.cfg.Store.AutoMigrate {
		if err := postgres.RunMigrations(ctx, db, r.logger); err != nil {
			return nil, nil, err
		}
	}
	return store, store, nil
}

func (r *Runtime) openRateLimiter(ctx context.Context) (ports.RateLimiter, error) {
	if r.cfg.Redis.URL == "" {
		return cacheadapter.NewLocalRateLimiter(), nil
	}
	client, err := cacheadapter.Connect(ctx, r.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, client.Close)
	return cacheadapter.NewRedisRateLimiter(client), nil
}

func (r *Runtime) openPublisher() (ports.EventPublisher, error) {
	if len(r.cfg.Kafka.Brokers) == 0 {
		return eventadapter.NewLoggingPublisher(r.logger), nil
	}
	publisher, err := eventadapter.NewKafkaPublisher(r.cfg.Kafka.Brokers, r.cfg.Kafka.Topic, nil)
	if err != nil {
		return nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	r.closers = append(r.closers, publisher.Close)
	return publisher, nil
}

// clientIPKey returns the configured address-hashing secret, or a random one
// for local runs. A random key only keeps windows consistent within one process.
func (r *Runtime) clientIPKey() ([]byte, error) {
	if r.cfg.Security.ClientIPSecret != "" {
		return []byte(r.cfg.Security.ClientIPSecret), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate client ip key: %w", err)
	}
	r.logger.Warn("security.client_ip_secret not set; using a per-process key",
		zap.String("module", "bootstrap"),
		zap.String("operation", "client_ip_key"),
	)
	return key, nil
}

// Handler exposes the HTTP router.
func (r *Runtime) Handler() http.Handler {
	return r.httpServer.Handler
}

// RunAPI serves HTTP and gRPC health until ctx ends or SIGINT/SIGTERM arrives.
// The memory store lives inside this process, so with that driver the outbox
// relay runs here too.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.cleanup()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.Service.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("http server started", zap.String("addr", r.httpServer.Addr))
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.logger.Info("grpc server started", zap.String("addr", lis.Addr().String()))
		if err := r.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	if r.cfg.Store.Driver == DriverMemory {
		g.Go(func() error {
			r.logger.Info("outbox relay started in api process", zap.String("module", "bootstrap"))
			return r.runOutbox(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("shutdown signal received")
		r.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Service.ShutdownTimeout)
		defer cancel()
		err := r.httpServer.Shutdown(shutdownCtx)
		r.grpcServer.GracefulStop()
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		r.logger.Error("server failure", zap.Error(err))
		return err
	}
	return nil
}

// ErrWorkerNeedsSharedStore is returned by RunWorker for the memory driver,
// whose outbox is only visible to the api process that owns it.
var ErrWorkerNeedsSharedStore = errors.New("outbox worker needs a shared store; the memory driver relays inside the api process")

// RunWorker runs the outbox relay until ctx ends or SIGINT/SIGTERM arrives.
func (r *Runtime) RunWorker(ctx context.Context) error {
	defer r.cleanup()
	if r.cfg.Store.Driver == DriverMemory {
		return ErrWorkerNeedsSharedStore
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started", zap.String("module", "bootstrap"))
	return r.runOutbox(ctx)
}

func (r *Runtime) runOutbox(ctx context.Context) error {
	if err := r.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("outbox relay: %w", err)
	}
	return nil
}

func (r *Runtime) cleanup() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("cleanup failed", zap.String("module", "bootstrap"), zap.Error(err))
		}
	}
	r.closers = nil
	_ = r.logger.Sync()
}
