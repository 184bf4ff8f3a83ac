// Package weather fetches current conditions from OpenWeatherMap at most once
// per refresh window.
package weather

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/httpclient"
	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint     = "https://api.openweathermap.org/data/2.5/weather"
	DefaultMinInterval  = 10 * time.Minute
	DefaultPollInterval = 10 * time.Second
	DefaultTimeout      = 5 * time.Second

	maxBody = 1 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cache persists the last observation per location across restarts.
type Cache interface {
	LoadWeather(ctx context.Context, location string) (Data, bool, error)
	SaveWeather(ctx context.Context, location string, d Data) error
}

type Config struct {
	Endpoint     string
	APIKey       string
	Location     string
	Units        string
	MinInterval  time.Duration
	PollInterval time.Duration
	Timeout      time.Duration
	Retries      int
	Cache        Cache
	Logger       logger.Logger
	Now          func() time.Time
}

type Collector struct {
	client   *retryablehttp.Client
	endpoint string
	units    string
	poll     time.Duration
	cache    Cache
	log      logger.Logger
	now      func() time.Time

	credMu   sync.RWMutex
	apiKey   string
	location string

	reqMu     sync.Mutex
	requested bool

	// owned by the worker
	limiter *rate.Limiter

	mu    sync.RWMutex
	data  Data
	valid bool
}

func New(cfg Config) *Collector {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Collector{
		client: httpclient.New(httpclient.Options{
			Timeout:  cfg.Timeout,
			RetryMax: cfg.Retries,
			Logger:   cfg.Logger,
		}),
		endpoint: cfg.Endpoint,
		units:    cfg.Units,
		poll:     cfg.PollInterval,
		cache:    cfg.Cache,
		log:      cfg.Logger,
		now:      cfg.Now,
		apiKey:   unquote(cfg.APIKey),
		location: unquote(cfg.Location),
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

func (c *Collector) Name() string { return "weather" }

// Request asks for a refresh. Requests made before the worker picks one up
// collapse into a single fetch.
func (c *Collector) Request() {
	c.reqMu.Lock()
	c.requested = true
	c.reqMu.Unlock()
}

func (c *Collector) Pending() bool {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	return c.requested
}

func (c *Collector) SetAPIKey(key string) {
	c.credMu.Lock()
	c.apiKey = unquote(key)
	c.credMu.Unlock()
}

func (c *Collector) SetLocation(location string) {
	c.credMu.Lock()
	c.location = unquote(location)
	c.credMu.Unlock()
}

func (c *Collector) credentials() (string, string) {
	c.credMu.RLock()
	defer c.credMu.RUnlock()

	return c.apiKey, c.location
}

// Weather returns the last observation, or Default and false before the
// first success.
func (c *Collector) Weather() (Data, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid {
		return Default(), false
	}

	return c.data, true
}

func (c *Collector) Run(ctx context.Context) error {
	c.seed(ctx)

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// seed loads the cached observation for the configured location. Its fetch
// time counts against the refresh window.
func (c *Collector) seed(ctx context.Context) {
	if c.cache == nil {
		return
	}

	_, location := c.credentials()
	if location == "" {
		return
	}

	d, ok, err := c.cache.LoadWeather(ctx, location)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to load cached weather")
		return
	}
	if !ok {
		return
	}

	c.limiter.AllowN(d.FetchedAt, 1)

	c.mu.Lock()
	c.data, c.valid = d, true
	c.mu.Unlock()

	c.log.Debug().
		Str("location", d.Location).
		Time("fetched_at", d.FetchedAt).
		Msg("Loaded cached weather")
}

// Tick runs one worker cycle: fetch only when a request is pending and the
// refresh window allows it.
func (c *Collector) Tick(ctx context.Context) {
	c.reqMu.Lock()
	if !c.requested {
		c.reqMu.Unlock()
		return
	}

	apiKey, location := c.credentials()
	if apiKey == "" || location == "" {
		c.requested = false
		c.reqMu.Unlock()
		c.log.Debug().Msg("Weather update skipped: API key or location not configured")
		return
	}

	if !c.limiter.AllowN(c.now(), 1) {
		c.reqMu.Unlock()
		return
	}

	c.requested = false
	c.reqMu.Unlock()

	c.log.Info().Str("location", location).Msg("Fetching weather data")

	d, err := c.fetch(ctx, apiKey, location)
	if err != nil {
		c.log.Error().Err(err).Str("location", location).Msg("Failed to fetch weather")
		return
	}

	c.mu.Lock()
	c.data, c.valid = d, true
	c.mu.Unlock()

	c.log.Info().
		Float64("temperature", d.Temperature).
		Str("description", d.Description).
		Str("icon", d.Icon).
		Msg("Weather data fetched")

	if c.cache != nil {
		if err := c.cache.SaveWeather(ctx, location, d); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache weather")
		}
	}
}

func (c *Collector) fetch(ctx context.Context, apiKey, location string) (Data, error) {
	errFactory := errors.New()

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", apiKey)
	q.Set("units", c.units)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Data{}, errFactory.Wrap(ErrRequestFailed, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Data{}, errFactory.Wrap(errors.ErrTransport, redact(err, apiKey))
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp) {
		return Data{}, errFactory.WithData(ErrBadStatus, resp.Status)
	}

	var r response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&r); err != nil {
		return Data{}, errFactory.Wrap(ErrDecode, err)
	}

	d := r.data(c.now())
	if d.Location == "" {
		d.Location = location
	}

	return d, nil
}
