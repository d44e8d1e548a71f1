package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"imageloop/internal/gallery"
	"imageloop/internal/http/handlers"
	"imageloop/internal/imagegen"
	"imageloop/internal/infra"
	"imageloop/internal/scheduler"
)

type stubGenerator struct{}

func (stubGenerator) Attempt(ctx context.Context, req imagegen.GenerateRequest) (*imagegen.Result, error) {
	return &imagegen.Result{MIMEType: "image/png", Data: []byte("png"), ProviderUsed: imagegen.ProviderPrimary}, nil
}

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	ctrl, err := scheduler.NewController(stubGenerator{}, scheduler.Options{})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	app := handlers.NewApp(&infra.Config{}, zerolog.Nop(), stubGenerator{}, ctrl, gallery.New(0))
	return NewRouter(app, opts)
}

func TestRouterRoutes(t *testing.T) {
	router := newTestRouter(t, Options{RateLimitPerMinute: 10})

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{method: http.MethodGet, path: "/v1/health", want: http.StatusOK},
		{method: http.MethodGet, path: "/v1/openapi.json", want: http.StatusOK},
		{method: http.MethodGet, path: "/v1/docs", want: http.StatusOK},
		{method: http.MethodGet, path: "/v1/schedule", want: http.StatusOK},
		{method: http.MethodPatch, path: "/v1/schedule", body: `{"intervalMs":120000}`, want: http.StatusOK},
		{method: http.MethodPost, path: "/v1/schedule/reset", want: http.StatusOK},
		{method: http.MethodGet, path: "/v1/context", want: http.StatusOK},
		{method: http.MethodPut, path: "/v1/context", body: `{"journal":"hi"}`, want: http.StatusOK},
		{method: http.MethodPost, path: "/v1/generate", body: `{"textContext":"hi"}`, want: http.StatusOK},
		{method: http.MethodGet, path: "/v1/previews", want: http.StatusOK},
		{method: http.MethodGet, path: "/v1/previews/missing/image", want: http.StatusNotFound},
		{method: http.MethodDelete, path: "/v1/previews/missing", want: http.StatusNotFound},
		{method: http.MethodGet, path: "/v1/nope", want: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d; body=%s", rr.Code, tc.want, rr.Body.String())
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Fatalf("missing X-Request-ID header")
			}
		})
	}
}

func TestRouterRateLimitsGenerate(t *testing.T) {
	router := newTestRouter(t, Options{RateLimitPerMinute: 1})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"textContext":"hi"}`))
		req.RemoteAddr = "203.0.113.9:5000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 429]", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/schedule", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("read endpoints are not rate limited, got %d", rr.Code)
	}
}
