package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/logger"
	"codeberg.org/mutker/monitord/internal/notifications"
	"codeberg.org/mutker/monitord/internal/telemetry"
	"codeberg.org/mutker/monitord/internal/utilization"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fakeMedia struct {
	mu       sync.Mutex
	calls    []string
	seconds  float64
	progress float64
	token    string
	accept   bool
}

func (f *fakeMedia) record(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.accept
}

func (f *fakeMedia) PlayPause(context.Context) bool { return f.record("playpause") }
func (f *fakeMedia) Next(context.Context) bool      { return f.record("next") }
func (f *fakeMedia) Previous(context.Context) bool  { return f.record("previous") }

func (f *fakeMedia) Seek(_ context.Context, seconds float64) bool {
	f.seconds = seconds
	return f.record("seek")
}

func (f *fakeMedia) SeekToProgress(_ context.Context, progress float64) bool {
	f.progress = progress
	return f.record("seek_progress")
}

func (f *fakeMedia) SetToken(token string) { f.token = token }

type fakeWeather struct {
	requests int
	key      string
	location string
}

func (f *fakeWeather) Request()                    { f.requests++ }
func (f *fakeWeather) SetAPIKey(key string)        { f.key = key }
func (f *fakeWeather) SetLocation(location string) { f.location = location }

type fakeSnapshot struct{}

func (fakeSnapshot) Snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{Utilization: utilization.Stats{CPUPercent: 42}}
}

type envelope struct {
	Ok    bool                `json:"ok"`
	Data  jsoniter.RawMessage `json:"data"`
	Error string              `json:"error"`
}

func setup(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	deps.Logger = logger.Nop()

	router := gin.New()
	NewAPI(deps).RegisterRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestSnapshot(t *testing.T) {
	router := setup(t, Deps{Snapshot: fakeSnapshot{}})

	code, env := do(t, router, http.MethodGet, "/api/v1/snapshot", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Ok)

	var snap struct {
		Utilization struct {
			CPUPercent float64 `json:"cpu_percent"`
		} `json:"utilization"`
		WeatherAvailable bool `json:"weather_available"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 42.0, snap.Utilization.CPUPercent)
	assert.False(t, snap.WeatherAvailable)
}

func TestNotifications(t *testing.T) {
	now := time.Unix(100, 0)
	mon := notifications.New(notifications.Config{Max: 5, Now: func() time.Time { return now }})
	router := setup(t, Deps{Notifications: mon})

	for _, n := range []notifications.Notification{
		{AppName: "Firefox", Summary: "a", Timestamp: 1},
		{AppName: "Mail", Summary: "b", Timestamp: 2},
		{AppName: "Firefox", Summary: "c", Timestamp: 3},
	} {
		mon.Add(n)
	}

	code, env := do(t, router, http.MethodGet, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, code)
	var list []notifications.Notification
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].Summary)

	code, _ = do(t, router, http.MethodDelete, "/api/v1/notifications/Mail/2", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, mon.Notifications(), 2)

	code, _ = do(t, router, http.MethodDelete, "/api/v1/notifications?app=Firefox", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, mon.Notifications())

	code, env = do(t, router, http.MethodDelete, "/api/v1/notifications/Mail/soon", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Ok)
}

func TestClearAllNotifications(t *testing.T) {
	mon := notifications.New(notifications.Config{Max: 5})
	mon.Add(notifications.Notification{AppName: "x", Summary: "y"})
	router := setup(t, Deps{Notifications: mon})

	code, _ := do(t, router, http.MethodDelete, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, mon.Notifications())
}

func TestMediaCommands(t *testing.T) {
	media := &fakeMedia{accept: true}
	router := setup(t, Deps{Media: media})

	for _, cmd := range []string{"playpause", "next", "previous"} {
		code, env := do(t, router, http.MethodPost, "/api/v1/media/"+cmd, "")
		assert.Equal(t, http.StatusOK, code, cmd)
		assert.True(t, env.Ok, cmd)
	}
	assert.Equal(t, []string{"playpause", "next", "previous"}, media.calls)

	media.accept = false
	code, env := do(t, router, http.MethodPost, "/api/v1/media/next", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.False(t, env.Ok)
}

func TestMediaSeek(t *testing.T) {
	media := &fakeMedia{accept: true}
	router := setup(t, Deps{Media: media})

	code, _ := do(t, router, http.MethodPost, "/api/v1/media/seek", `{"position": 90}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 90.0, media.seconds)

	code, _ = do(t, router, http.MethodPost, "/api/v1/media/seek", `{"progress": 0.5}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.5, media.progress)

	code, _ = do(t, router, http.MethodPost, "/api/v1/media/seek", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, http.MethodPost, "/api/v1/media/seek", `{"position": -1}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSettings(t *testing.T) {
	media := &fakeMedia{}
	weather := &fakeWeather{}
	router := setup(t, Deps{Media: media, Weather: weather})

	code, _ := do(t, router, http.MethodPut, "/api/v1/settings/media", `{"token": "abc"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "abc", media.token)

	code, _ = do(t, router, http.MethodPut, "/api/v1/settings/media", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, http.MethodPut, "/api/v1/settings/weather", `{"location": "Oslo"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Oslo", weather.location)
	assert.Empty(t, weather.key)
	assert.Equal(t, 1, weather.requests)

	code, _ = do(t, router, http.MethodPut, "/api/v1/settings/weather", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, http.MethodPost, "/api/v1/weather/refresh", "")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, 2, weather.requests)
}

func TestDisabledCollectors(t *testing.T) {
	router := setup(t, Deps{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/snapshot"},
		{http.MethodGet, "/api/v1/notifications"},
		{http.MethodPost, "/api/v1/media/playpause"},
		{http.MethodPut, "/api/v1/settings/weather"},
		{http.MethodPost, "/api/v1/weather/refresh"},
	}

	for _, tt := range tests {
		code, env := do(t, router, tt.method, tt.path, "")
		assert.Equal(t, http.StatusServiceUnavailable, code, tt.path)
		assert.False(t, env.Ok, tt.path)
	}
}

func TestNewServerRequiresLoopback(t *testing.T) {
	api := NewAPI(Deps{})

	_, err := NewServer("0.0.0.0:7787", api)
	require.Error(t, err)
	assert.Equal(t, ErrNotLoopback, errors.CodeOf(err))

	for _, listen := range []string{"127.0.0.1:7787", "localhost:7787", "[::1]:7787"} {
		_, err := NewServer(listen, api)
		assert.NoError(t, err, listen)
	}
}

func TestServerRunAndShutdown(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", NewAPI(Deps{Snapshot: fakeSnapshot{}}))
	require.NoError(t, err)
	assert.Equal(t, "api", srv.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/api/v1/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
