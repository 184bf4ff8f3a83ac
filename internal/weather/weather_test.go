package weather_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/monitord/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owmResponse = `{"coord":{"lon":10.75,"lat":59.91},"weather":[{"id":803,"main":"Clouds","description":"broken clouds","icon":"04d"}],` +
	`"main":{"temp":12.34,"feels_like":11.5,"temp_min":10.1,"temp_max":14.2,"pressure":1012,"humidity":76},"name":"Oslo","cod":200}`

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type api struct {
	calls  atomic.Int32
	status atomic.Int32
	body   string
	query  chan map[string]string
}

func (a *api) server(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.calls.Add(1)
		if a.query != nil {
			q := r.URL.Query()
			a.query <- map[string]string{"q": q.Get("q"), "appid": q.Get("appid"), "units": q.Get("units")}
		}
		if s := a.status.Load(); s != 0 {
			w.WriteHeader(int(s))
			return
		}
		_, _ = w.Write([]byte(a.body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

type memCache struct {
	mu    sync.Mutex
	items map[string]weather.Data
}

func (m *memCache) LoadWeather(_ context.Context, location string) (weather.Data, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[location]
	return d, ok, nil
}

func (m *memCache) SaveWeather(_ context.Context, location string, d weather.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]weather.Data{}
	}
	m.items[location] = d
	return nil
}

func newCollector(srv *httptest.Server, clk *clock, cache weather.Cache) *weather.Collector {
	return weather.New(weather.Config{
		Endpoint: srv.URL,
		APIKey:   `"secret"`,
		Location: `"Oslo"`,
		Timeout:  time.Second,
		Cache:    cache,
		Now:      clk.now,
	})
}

func TestDefaultBeforeFirstFetch(t *testing.T) {
	c := weather.New(weather.Config{})

	d, ok := c.Weather()
	assert.False(t, ok)
	assert.Equal(t, "N/A", d.Description)
	assert.Equal(t, "01d", d.Icon)
	assert.Equal(t, "Unknown", d.Location)
	assert.Zero(t, d.Temperature)
}

func TestFetch(t *testing.T) {
	a := &api{body: owmResponse, query: make(chan map[string]string, 1)}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCollector(a.server(t), clk, nil)

	c.Request()
	c.Tick(context.Background())

	assert.Equal(t, map[string]string{"q": "Oslo", "appid": "secret", "units": "metric"}, <-a.query)

	d, ok := c.Weather()
	require.True(t, ok)
	assert.Equal(t, 12.34, d.Temperature)
	assert.Equal(t, 11.5, d.FeelsLike)
	assert.Equal(t, 10.1, d.TempMin)
	assert.Equal(t, 14.2, d.TempMax)
	assert.Equal(t, uint8(76), d.Humidity)
	assert.Equal(t, "Broken clouds", d.Description)
	assert.Equal(t, "04d", d.Icon)
	assert.Equal(t, "Oslo", d.Location)
	assert.Equal(t, clk.now(), d.FetchedAt)
	assert.False(t, c.Pending())
}

func TestRequestsCoalesceWithinWindow(t *testing.T) {
	a := &api{body: owmResponse}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCollector(a.server(t), clk, nil)
	ctx := context.Background()

	c.Request()
	c.Request()
	c.Tick(ctx)
	assert.Equal(t, int32(1), a.calls.Load())

	clk.advance(time.Minute)
	c.Request()
	c.Tick(ctx)
	c.Tick(ctx)
	assert.Equal(t, int32(1), a.calls.Load(), "within the refresh window")
	assert.True(t, c.Pending(), "request waits for the window")

	clk.advance(9 * time.Minute)
	c.Tick(ctx)
	assert.Equal(t, int32(2), a.calls.Load())
	assert.False(t, c.Pending())
}

func TestNoRequestNoFetch(t *testing.T) {
	a := &api{body: owmResponse}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCollector(a.server(t), clk, nil)

	c.Tick(context.Background())
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestFailureKeepsPreviousData(t *testing.T) {
	a := &api{body: owmResponse}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCollector(a.server(t), clk, nil)
	ctx := context.Background()

	c.Request()
	c.Tick(ctx)
	before, ok := c.Weather()
	require.True(t, ok)

	a.status.Store(http.StatusUnauthorized)
	clk.advance(11 * time.Minute)
	c.Request()
	c.Tick(ctx)

	after, ok := c.Weather()
	assert.True(t, ok)
	assert.Equal(t, before, after)
}

func TestMalformedResponseKeepsPreviousData(t *testing.T) {
	a := &api{body: `{"main": "nope"`}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCollector(a.server(t), clk, nil)

	c.Request()
	c.Tick(context.Background())

	_, ok := c.Weather()
	assert.False(t, ok)
	assert.Equal(t, int32(1), a.calls.Load())
}

func TestMissingCredentialsClearRequest(t *testing.T) {
	a := &api{body: owmResponse}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	srv := a.server(t)
	c := weather.New(weather.Config{Endpoint: srv.URL, Now: clk.now})
	ctx := context.Background()

	c.Request()
	c.Tick(ctx)
	assert.False(t, c.Pending())
	assert.Equal(t, int32(0), a.calls.Load())

	c.SetAPIKey(`"key"`)
	c.SetLocation(` "Bergen" `)
	c.Request()
	c.Tick(ctx)
	assert.Equal(t, int32(1), a.calls.Load(), "missing credentials do not use up the window")
}

func TestCacheSeedsAndCountsAgainstWindow(t *testing.T) {
	a := &api{body: owmResponse}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	cache := &memCache{}
	cached := weather.Data{Temperature: 3, Description: "Snow", Icon: "13n", Location: "Oslo", FetchedAt: clk.now().Add(-time.Minute)}
	require.NoError(t, cache.SaveWeather(context.Background(), "Oslo", cached))

	c := newCollector(a.server(t), clk, cache)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))

	d, ok := c.Weather()
	require.True(t, ok)
	assert.Equal(t, cached, d)

	c.Request()
	c.Tick(context.Background())
	assert.Equal(t, int32(0), a.calls.Load(), "cached record is fresh")

	clk.advance(10 * time.Minute)
	c.Tick(context.Background())
	assert.Equal(t, int32(1), a.calls.Load())

	saved, ok, err := cache.LoadWeather(context.Background(), "Oslo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.34, saved.Temperature)
}
