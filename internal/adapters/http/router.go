package http

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/application"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

// Handler is the HTTP adapter entrypoint for license use-cases.
type Handler struct {
	service  *application.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		service:  service,
		validate: v,
		logger:   logger.With(zap.String("module", "http"), zap.String("layer", "adapter")),
	}
}

// RequestObserver records per-route request metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, statusCode int, duration time.Duration)
}

// RateLimits configures the per-scope fixed windows. A zero limit disables
// the scope.
type RateLimits struct {
	Limiter     ports.RateLimiter
	BrandLimit  int
	AnonLimit   int
	Window      time.Duration
	ClientIPKey []byte
}

type RouterOptions struct {
	Metrics        RequestObserver
	MetricsHandler http.Handler
	RateLimits     RateLimits
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// friends. Enable it only when every request passes a proxy that sets them.
	TrustProxyHeaders bool
}

// NewRouter registers the HTTP routes and middleware stack.
func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestIDMiddleware)
	r.Use(handler.recoverMiddleware)
	r.Use(handler.loggingMiddleware)
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
	}

	limits := opts.RateLimits
	anonLimit := handler.rateLimitMiddleware(limits, scopeAnon)
	brandLimit := handler.rateLimitMiddleware(limits, scopeBrand)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(anonLimit)
			r.Post("/brands/signup", handler.signup)
			r.Post("/licenses/validate", handler.validateLicense)
			r.Post("/licenses/deactivate", handler.deactivate)
			r.Post("/licenses/status", handler.licenseStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(handler.brandAuthMiddleware)
			r.Use(brandLimit)
			r.Post("/products", handler.createProduct)
			r.Get("/products", handler.listProducts)
			r.Post("/licenses", handler.provision)
			r.Post("/licenses/email-listing", handler.listByEmail)
			r.Post("/licenses/{license_id}/suspend", handler.suspend)
			r.Post("/licenses/{license_id}/reinstate", handler.reinstate)
			r.Post("/licenses/{license_id}/revoke", handler.revoke)
			r.Get("/licenses/{license_id}/audit", handler.auditTrail)
		})
	})

	return r
}
