package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はメトリクスがテキスト形式で返ることを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthResult(AuthResultSuccess)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pantryman_auth_results_total") {
		t.Error("response should contain pantryman_auth_results_total metric")
	}
}

// TestHTTPMiddleware_UsesRoutePattern はルートラベルにIDではなくパターンが使われることを検証する。
func TestHTTPMiddleware_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(c))
	r.Get("/api/pantry-items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/pantry-items/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	m := findMetric(t, reg, "pantryman_http_requests_total", map[string]string{
		"method": "GET", "route": "/api/pantry-items/{id}", "status_code": "404",
	})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("count = %v, want 2", m)
	}
}

// TestHTTPMiddleware_UnmatchedRoute は未登録パスがunmatchedとして記録されることを検証する。
func TestHTTPMiddleware_UnmatchedRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	h := NewHTTPMiddleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	m := findMetric(t, reg, "pantryman_http_requests_total", map[string]string{"route": unmatchedRoute})
	if m == nil {
		t.Error("expected unmatched route to be recorded")
	}
}
