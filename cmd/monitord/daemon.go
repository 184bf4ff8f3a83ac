package main

import (
	"context"

	"codeberg.org/mutker/monitord/internal/api"
	"codeberg.org/mutker/monitord/internal/command"
	"codeberg.org/mutker/monitord/internal/config"
	"codeberg.org/mutker/monitord/internal/gpu"
	"codeberg.org/mutker/monitord/internal/logger"
	"codeberg.org/mutker/monitord/internal/media"
	"codeberg.org/mutker/monitord/internal/network"
	"codeberg.org/mutker/monitord/internal/notifications"
	"codeberg.org/mutker/monitord/internal/store"
	"codeberg.org/mutker/monitord/internal/telemetry"
	"codeberg.org/mutker/monitord/internal/temperature"
	"codeberg.org/mutker/monitord/internal/utilization"
	"codeberg.org/mutker/monitord/internal/weather"
)

// daemon owns every collector for the lifetime of the process.
type daemon struct {
	gpu           *gpu.Reader
	store         store.WeatherStore
	media         *media.Collector
	notifications *notifications.Monitor
	weather       *weather.Collector

	hub        *telemetry.Hub
	supervisor *telemetry.Supervisor
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{
		supervisor: telemetry.NewSupervisor(logger.WithComponent("supervisor")),
	}
	var src telemetry.Sources

	var gpuSource gpu.Source
	if cfg.GPU.Enabled {
		d.gpu = gpu.New(gpu.Options{
			Env:    gpu.Env{DRMRoot: cfg.GPU.DRMRoot},
			Runner: command.NewExec(cfg.GPU.Timeout),
			NVML:   cfg.GPU.NVML,
			Logger: logger.WithComponent("gpu"),
		})
		gpuSource = d.gpu
	}

	util := utilization.New(utilization.Config{
		Interval:    cfg.Utilization.Interval,
		GPUInterval: cfg.GPU.Interval,
		GPU:         gpuSource,
		Logger:      logger.WithComponent("utilization"),
	})
	temp := temperature.New(temperature.Config{
		Interval: cfg.Temperature.Interval,
		Logger:   logger.WithComponent("temperature"),
	})
	net := network.New(network.Config{
		Interval: cfg.Network.Interval,
		Logger:   logger.WithComponent("network"),
	})
	src.Utilization, src.Temperature, src.Network = util, temp, net
	d.supervisor.Add(util)
	d.supervisor.Add(temp)
	d.supervisor.Add(net)

	if cfg.Media.Enabled {
		d.media = media.New(media.Config{
			Endpoint: cfg.Media.Endpoint,
			Token:    cfg.Media.Token,
			Player:   cfg.Media.Player,
			Interval: cfg.Media.Interval,
			Timeout:  cfg.Media.Timeout,
			Logger:   logger.WithComponent("media"),
		})
		src.Media = d.media
		d.supervisor.Add(d.media)
	}

	if cfg.Notifications.Enabled {
		d.notifications = notifications.New(notifications.Config{
			Command: cfg.Notifications.Command,
			Max:     cfg.Notifications.Max,
			Logger:  logger.WithComponent("notifications"),
		})
		src.Notifications = d.notifications
		d.supervisor.Add(d.notifications)
	}

	if cfg.Weather.Enabled {
		cache, err := store.New(store.Config{Path: cfg.Cache.Path}, logger.WithComponent("store"))
		if err != nil {
			d.close()
			return nil, err
		}
		d.store = cache

		d.weather = weather.New(weather.Config{
			Endpoint:     cfg.Weather.Endpoint,
			APIKey:       cfg.Weather.APIKey,
			Location:     cfg.Weather.Location,
			Units:        cfg.Weather.Units,
			MinInterval:  cfg.Weather.MinInterval,
			PollInterval: cfg.Weather.PollInterval,
			Timeout:      cfg.Weather.Timeout,
			Retries:      cfg.Weather.Retries,
			Cache:        cache,
			Logger:       logger.WithComponent("weather"),
		})
		src.Weather = d.weather
		d.supervisor.Add(d.weather)
	}

	d.hub = telemetry.NewHub(src)
	d.supervisor.Add(telemetry.NewReporter(d.hub, cfg.Interval, d.requestWeather, logger.WithComponent("status")))

	if cfg.API.Enabled {
		deps := api.Deps{
			Snapshot: d.hub,
			Logger:   logger.WithComponent("api"),
		}
		// Only assign live collectors so disabled ones stay nil interfaces.
		if d.media != nil {
			deps.Media = d.media
		}
		if d.notifications != nil {
			deps.Notifications = d.notifications
		}
		if d.weather != nil {
			deps.Weather = d.weather
		}

		srv, err := api.NewServer(cfg.API.Listen, api.NewAPI(deps))
		if err != nil {
			d.close()
			return nil, err
		}
		d.supervisor.Add(srv)
	}

	logger.Info().
		Strs("collectors", d.supervisor.Names()).
		Msg("Daemon initialized")

	return d, nil
}

func (d *daemon) run(ctx context.Context) error {
	return d.supervisor.Run(ctx)
}

func (d *daemon) requestWeather() {
	if d.weather != nil {
		d.weather.Request()
	}
}

// reload pushes runtime-updatable settings into the running collectors.
func (d *daemon) reload(cfg *config.Config) {
	if d.media != nil {
		d.media.SetToken(cfg.Media.Token)
	}
	if d.weather != nil {
		d.weather.SetAPIKey(cfg.Weather.APIKey)
		d.weather.SetLocation(cfg.Weather.Location)
		d.weather.Request()
	}

	logger.Info().Msg("Configuration reloaded")
}

func (d *daemon) close() {
	if d.gpu != nil {
		if err := d.gpu.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to release GPU")
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close weather cache")
		}
	}
}
