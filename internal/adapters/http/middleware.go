package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyBrand     ctxKey = "brand"
)

const apiKeyHeader = "X-API-KEY"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					zap.String("operation", "http_panic_recovery"),
					zap.String("outcome", "failure"),
					zap.String("request_id", requestIDFromContext(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
				)
				writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) status() int {
	if r.statusCode == 0 {
		return http.StatusOK
	}
	return r.statusCode
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if ce := h.logger.Check(zap.DebugLevel, "http request received"); ce != nil {
			ce.Write(
				zap.String("operation", "http_request"),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Any("body", peekRedactedBody(r)),
			)
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.status()
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}
		fields := []zap.Field{
			zap.String("operation", "http_request"),
			zap.String("outcome", outcome),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", statusCode),
			zap.Int("bytes", recorder.bytes),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", requestIDFromContext(r.Context())),
		}
		switch {
		case statusCode >= 500:
			h.logger.Error("http request completed", fields...)
		case statusCode >= 400:
			h.logger.Warn("http request completed", fields...)
		default:
			h.logger.Info("http request completed", fields...)
		}
	})
}

func metricsMiddleware(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			observer.ObserveRequest(r.Method, route, recorder.status(), time.Since(start))
		})
	}
}

// brandAuthMiddleware resolves the X-API-KEY header to a brand.
func (h *Handler) brandAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(apiKeyHeader))
		if raw == "" {
			h.writeMappedError(w, r, "brand_auth", domain.ErrUnauthorized)
			return
		}
		brand, err := h.service.AuthenticateBrand(r.Context(), raw)
		if err != nil {
			h.writeMappedError(w, r, "brand_auth", err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyBrand, brand)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type rateScope string

const (
	scopeBrand rateScope = "brand"
	scopeAnon  rateScope = "anon"
)

// rateLimitMiddleware applies one fixed window per caller. Brands are keyed
// by id; anonymous callers by a keyed hash of their address so raw IPs never
// reach the limiter backend. Limiter failures let the request through.
func (h *Handler) rateLimitMiddleware(cfg RateLimits, scope rateScope) func(http.Handler) http.Handler {
	limit := cfg.AnonLimit
	if scope == scopeBrand {
		limit = cfg.BrandLimit
	}
	if cfg.Limiter == nil || limit <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	retryAfter := strconv.Itoa(int(cfg.Window.Round(time.Second).Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := string(scope) + ":"
			if brand, ok := brandFromContext(r.Context()); ok && scope == scopeBrand {
				key += brand.ID.String()
			} else {
				key += hashClientIP(cfg.ClientIPKey, readIP(r))
			}

			allowed, err := cfg.Limiter.Allow(r.Context(), key, limit, cfg.Window)
			if err != nil {
				h.logger.Warn("rate limiter unavailable",
					zap.String("operation", "rate_limit"),
					zap.String("outcome", "bypass"),
					zap.String("scope", string(scope)),
					zap.String("request_id", requestIDFromContext(r.Context())),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				h.writeMappedError(w, r, "rate_limit", domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hashClientIP(secret []byte, ip string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func brandFromContext(ctx context.Context) (domain.Brand, bool) {
	brand, ok := ctx.Value(ctxKeyBrand).(domain.Brand)
	return brand, ok
}
