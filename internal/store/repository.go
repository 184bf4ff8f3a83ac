package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/logger"
	"codeberg.org/mutker/monitord/internal/weather"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
	closed bool
}

func NewRepository(cfg Config, log logger.Logger) (WeatherStore, error) {
	errFactory := errors.New()

	if cfg.Path == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.Path, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Msg("Weather cache initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) LoadWeather(ctx context.Context, location string) (weather.Data, bool, error) {
	errFactory := errors.New()

	var (
		d         weather.Data
		humidity  int64
		fetchedAt int64
	)
	err := r.db.QueryRowContext(ctx, selectWeatherSQL, location).Scan(
		&d.Temperature, &d.FeelsLike, &d.TempMin, &d.TempMax,
		&humidity, &d.Description, &d.Icon, &d.Location, &fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Data{}, false, nil
	}
	if err != nil {
		return weather.Data{}, false, errFactory.Wrap(ErrStorageAccess, err)
	}

	d.Humidity = uint8(humidity)
	d.FetchedAt = time.Unix(0, fetchedAt)

	return d, true, nil
}

func (r *repository) SaveWeather(ctx context.Context, location string, d weather.Data) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errFactory.New(ErrStorageAccess)
	}

	_, err := r.db.ExecContext(ctx, upsertWeatherSQL,
		location,
		d.Temperature, d.FeelsLike, d.TempMin, d.TempMax,
		int64(d.Humidity), d.Description, d.Icon, d.Location,
		d.FetchedAt.UnixNano(),
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	r.logger.Debug().Str("location", location).Msg("Cached weather")

	return nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Debug().Msg("Weather cache closed")

	return nil
}
