package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekRedactedBodyWalksNestedValues(t *testing.T) {
	t.Parallel()

	raw := `{
		"name": "acme",
		"Password": "hunter2",
		"license_key": "LIC-AAAA-BBBB-CCCC-DDDD",
		"auth": {"Authorization": "Bearer abc", "refresh_token": "r1", "scope": "read"},
		"items": [{"apikey": "k1", "license_key": "LIC-1111-2222-3333-4444"}, "plain"],
		"creds": {"nested": {"pass": "p", "access_token": "a"}}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses", strings.NewReader(raw))

	got := peekRedactedBody(req)
	assert.Equal(t, map[string]any{
		"name":        "acme",
		"Password":    "[REDACTED]",
		"license_key": "****DDDD",
		"auth":        map[string]any{"Authorization": "[REDACTED]", "refresh_token": "[REDACTED]", "scope": "read"},
		"items":       []any{map[string]any{"apikey": "[REDACTED]", "license_key": "****4444"}, "plain"},
		"creds":       map[string]any{"nested": map[string]any{"pass": "[REDACTED]", "access_token": "[REDACTED]"}},
	}, got)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(body), "the handler still sees the original body")
}

func TestPeekRedactedBodyNonObject(t *testing.T) {
	t.Parallel()

	arr := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[{"secret":"s"}]`))
	assert.Equal(t, []any{map[string]any{"secret": "[REDACTED]"}}, peekRedactedBody(arr))

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	assert.Equal(t, "<non-json body>", peekRedactedBody(bad))

	empty := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, peekRedactedBody(empty))
}
