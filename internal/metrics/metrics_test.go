package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.IncEventsPublished("scene_switched")
	m.SetPlatformState("twitch", "live")
	m.IncPlatformRestarts("twitch")

	var refreshed bool
	srv := httptest.NewServer(m.Handler(func() { refreshed = true }))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, refreshed)
	assert.Contains(t, string(body), `studio_events_published_total{kind="scene_switched"} 1`)
	assert.Contains(t, string(body), `studio_platform_state{platform="twitch",state="live"} 1`)
	assert.Contains(t, string(body), `studio_platform_state{platform="twitch",state="failed"} 0`)
	assert.Contains(t, string(body), `studio_platform_restarts_total{platform="twitch"} 1`)
}

func TestRequestMiddlewareCountsErrors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusConflict)
		}
	}))

	for _, path := range []string{"/ok", "/bad", "/bad"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "studio_http_requests_total 3")
	assert.Contains(t, rec.Body.String(), "studio_http_errors_total 2")
}
