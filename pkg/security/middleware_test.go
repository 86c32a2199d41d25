package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_OpenModeWithoutKeys(t *testing.T) {
	h := Middleware(SecConfig{})(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectsWithoutKey(t *testing.T) {
	cfg := SecConfig{BackendKeys: KeySet([]string{"bk"})}
	h := Middleware(cfg)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil)
	req.Header.Set("X-API-Key", "bk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "backend", rec.Header().Get("X-Role-Name"))

	req = httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil)
	req.Header.Set("Authorization", "Bearer bk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_HealthzAlwaysOpen(t *testing.T) {
	cfg := SecConfig{BackendKeys: KeySet([]string{"bk"})}
	h := Middleware(cfg)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_FrontendScope(t *testing.T) {
	cfg := SecConfig{
		BackendKeys:  KeySet([]string{"bk"}),
		FrontendKeys: KeySet([]string{"fk"}),
	}
	h := Middleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil)
	req.Header.Set("X-API-Key", "fk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/accounts/acc/contexts", nil)
	req.Header.Set("X-API-Key", "fk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	cfg := SecConfig{AllowedOrigins: []string{"https://app.example.com"}}
	h := Middleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/cards/c1/messages", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/cards/c1/messages", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddleware_RateLimit(t *testing.T) {
	cfg := SecConfig{
		BackendKeys: KeySet([]string{"bk"}),
		RPS:         1,
		Burst:       1,
	}
	h := Middleware(cfg)(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil)
	first.Header.Set("X-API-Key", "bk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil)
	second.Header.Set("X-API-Key", "bk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_IPWhitelist(t *testing.T) {
	cfg := SecConfig{IPWhitelist: []string{"10.1.2.3"}}
	h := Middleware(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil)
	req.RemoteAddr = "10.9.9.9:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/cards/c1/messages", nil)
	req.RemoteAddr = "10.1.2.3:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
