// Package media polls a local player REST API for now-playing state and
// forwards transport commands to it.
package media

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/httpclient"
	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
)

const (
	DefaultEndpoint = "http://localhost:10767/api/v1/playback"
	DefaultPlayer   = "Cider"

	tokenHeader = "apptoken"

	// maxSeekSeconds keeps seek targets representable in the request and in
	// PositionMs when the track length is unknown.
	maxSeekSeconds = math.MaxInt32
	maxBody     = 1 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	Endpoint string
	Token    string
	Player   string
	Interval time.Duration
	Timeout  time.Duration
	Logger   logger.Logger
}

type Collector struct {
	client   *retryablehttp.Client
	endpoint string
	player   string
	interval time.Duration
	log      logger.Logger

	tokenMu sync.RWMutex
	token   string

	mu   sync.RWMutex
	info Info

	// owned by the poll loop
	reachable bool
}

func New(cfg Config) *Collector {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Player == "" {
		cfg.Player = DefaultPlayer
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Collector{
		client:   httpclient.New(httpclient.Options{Timeout: cfg.Timeout, Logger: cfg.Logger}),
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		player:   cfg.Player,
		interval: cfg.Interval,
		log:      cfg.Logger,
		token:    strings.TrimSpace(cfg.Token),
	}
}

func (c *Collector) Name() string { return "media" }

func (c *Collector) Run(ctx context.Context) error {
	c.log.Info().Str("endpoint", c.endpoint).Msg("Starting media monitor")

	c.Poll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}

// Poll fetches now-playing state once and replaces the stored Info. Any
// failure resets it to no media.
func (c *Collector) Poll(ctx context.Context) {
	info, err := c.fetch(ctx)
	if err != nil {
		if c.reachable {
			c.log.Debug().Err(err).Msg("Media player unreachable")
		}
		c.reachable = false
	} else {
		c.reachable = true
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
}

func (c *Collector) fetch(ctx context.Context) (Info, error) {
	body, err := c.get(ctx, "now-playing")
	if err != nil {
		return Info{}, err
	}

	info, ok := Parse(body, c.isPlaying(ctx), c.player)
	if !ok {
		return Info{}, nil
	}

	return info, nil
}

// isPlaying assumes playback only when the player cannot be reached. A
// non-2xx reply is read like any other body and normally means not playing.
func (c *Collector) isPlaying(ctx context.Context) bool {
	body, err := c.get(ctx, "is-playing")
	if err != nil && errors.CodeOf(err) != ErrBadStatus {
		return true
	}

	return IsPlaying(body)
}

func (c *Collector) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.info
}

// SetToken replaces the API token used for every subsequent request.
func (c *Collector) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = strings.TrimSpace(token)
	c.tokenMu.Unlock()
}

func (c *Collector) currentToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()

	return c.token
}

// PlayPause toggles playback. On success the local status flips right away;
// the next poll overwrites it with the player's own view.
func (c *Collector) PlayPause(ctx context.Context) bool {
	if !c.command(ctx, "playpause", nil) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info.Status == StatusPlaying {
		c.info.Status = StatusPaused
	} else {
		c.info.Status = StatusPlaying
	}

	return true
}

func (c *Collector) Next(ctx context.Context) bool {
	return c.skip(ctx, "next")
}

func (c *Collector) Previous(ctx context.Context) bool {
	return c.skip(ctx, "previous")
}

func (c *Collector) skip(ctx context.Context, action string) bool {
	if !c.command(ctx, action, nil) {
		return false
	}

	c.mu.Lock()
	c.info.Status = StatusPlaying
	c.mu.Unlock()

	return true
}

type seekRequest struct {
	Position int64 `json:"position"`
}

// Seek moves playback to an absolute position in seconds.
func (c *Collector) Seek(ctx context.Context, seconds float64) bool {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return false
	}

	c.mu.RLock()
	duration := float64(c.info.DurationMs) / 1000
	c.mu.RUnlock()

	seconds = min(max(seconds, 0), maxSeekSeconds)
	if duration > 0 {
		seconds = min(seconds, duration)
	}

	payload, err := json.Marshal(seekRequest{Position: int64(seconds)})
	if err != nil {
		return false
	}

	c.log.Debug().Float64("seconds", seconds).Msg("Seeking")

	if !c.command(ctx, "seek", payload) {
		return false
	}

	c.mu.Lock()
	c.info.PositionMs = uint64(seconds * 1000)
	c.mu.Unlock()

	return true
}

// SeekToProgress seeks to a fraction of the current track, clamped to [0,1].
func (c *Collector) SeekToProgress(ctx context.Context, progress float64) bool {
	c.mu.RLock()
	duration := float64(c.info.DurationMs) / 1000
	c.mu.RUnlock()

	progress = min(max(progress, 0), 1)

	return c.Seek(ctx, duration*progress)
}

func (c *Collector) command(ctx context.Context, action string, payload []byte) bool {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	_, err := c.do(ctx, http.MethodPost, action, body)
	if err != nil {
		c.log.Debug().Err(err).Str("action", action).Msg("Media command failed")
		return false
	}

	return true
}

func (c *Collector) get(ctx context.Context, path string) (string, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Collector) do(ctx context.Context, method, path string, body io.Reader) (string, error) {
	errFactory := errors.New()

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.endpoint+"/"+path, body)
	if err != nil {
		return "", errFactory.Wrap(ErrRequestFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.currentToken(); token != "" {
		req.Header.Set(tokenHeader, token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", errFactory.Wrap(errors.ErrTransport, err)
	}

	if !httpclient.IsSuccess(resp) {
		return string(data), errFactory.WithData(ErrBadStatus, resp.Status)
	}

	return string(data), nil
}
