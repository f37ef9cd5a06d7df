package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// decodeAndValidate reads a JSON body into dst and applies its validate tags.
// An empty body decodes as an empty object.
func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	if r.Body != nil {
		body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := render.DecodeJSON(body, dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("invalid json body: %w", err)
		}
	}
	return h.validate.Struct(dst)
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "email":
			parts = append(parts, fe.Field()+" must be a valid email address")
		case "uuid":
			parts = append(parts, fe.Field()+" must be a uuid")
		case "min", "max":
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

func licenseIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "license_id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: license_id must be a uuid", domain.ErrInvalidInput)
	}
	return id, nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// readIP returns the peer address. Forwarding headers are only honoured when
// the router rewrites RemoteAddr behind a trusted proxy.
func readIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

var redactedKeys = map[string]bool{
	"access_token":  true,
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"pass":          true,
	"password":      true,
	"refresh_token": true,
	"secret":        true,
	"token":         true,
}

// peekRedactedBody returns the JSON request body with credentials removed
// and license keys masked, leaving r.Body readable for the handler.
func peekRedactedBody(r *http.Request) any {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	if err != nil || len(raw) == 0 {
		return nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "<non-json body>"
	}
	return redactValue(payload)
}

// redactValue walks decoded JSON in place, at any depth.
func redactValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			switch {
			case redactedKeys[strings.ToLower(k)]:
				x[k] = "[REDACTED]"
			case strings.EqualFold(k, "license_key"):
				if s, ok := item.(string); ok {
					x[k] = domain.MaskKey(s)
				} else {
					x[k] = redactValue(item)
				}
			default:
				x[k] = redactValue(item)
			}
		}
	case []any:
		for i, item := range x {
			x[i] = redactValue(item)
		}
	}
	return v
}
