package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel  = "info"
	DefaultEnvPrefix = "MONITORD"
	configName       = "monitord"
	configType       = "toml"
	configEnv        = "MONITORD_CONFIG"
)

type Config struct {
	LogLevel      string              `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	Interval      time.Duration       `mapstructure:"interval" validate:"gt=0"`
	PIDFile       bool                `mapstructure:"pid_file"`
	GPU           GPUConfig           `mapstructure:"gpu"`
	Utilization   PollConfig          `mapstructure:"utilization"`
	Temperature   PollConfig          `mapstructure:"temperature"`
	Network       PollConfig          `mapstructure:"network"`
	Media         MediaConfig         `mapstructure:"media"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Weather       WeatherConfig       `mapstructure:"weather"`
	Cache         CacheConfig         `mapstructure:"cache"`
	API           APIConfig           `mapstructure:"api"`

	ShowVersion bool `mapstructure:"-"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type GPUConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	NVML     bool          `mapstructure:"nvml"`
	DRMRoot  string        `mapstructure:"drm_root" validate:"required"`
}

type MediaConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint" validate:"required,url"`
	Token    string        `mapstructure:"token"`
	Player   string        `mapstructure:"player" validate:"required"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type NotificationsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Max     int    `mapstructure:"max" validate:"min=1"`
	Command string `mapstructure:"command" validate:"required"`
}

type WeatherConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIKey       string        `mapstructure:"api_key"`
	Location     string        `mapstructure:"location"`
	Units        string        `mapstructure:"units" validate:"oneof=metric imperial standard"`
	Endpoint     string        `mapstructure:"endpoint" validate:"required,url"`
	MinInterval  time.Duration `mapstructure:"min_interval" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Retries      int           `mapstructure:"retries" validate:"min=0,max=5"`
}

type CacheConfig struct {
	Path string `mapstructure:"path"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required,hostname_port"`
}

var defaults = map[string]any{
	"log_level":              DefaultLogLevel,
	"interval":               time.Second,
	"pid_file":               true,
	"gpu.enabled":            true,
	"gpu.interval":           time.Second,
	"gpu.timeout":            time.Second,
	"gpu.nvml":               true,
	"gpu.drm_root":           "/sys/class/drm",
	"utilization.interval":   time.Second,
	"temperature.interval":   2 * time.Second,
	"network.interval":       time.Second,
	"media.enabled":          true,
	"media.endpoint":         "http://localhost:10767/api/v1/playback",
	"media.token":            "",
	"media.player":           "Cider",
	"media.interval":         time.Second,
	"media.timeout":          time.Second,
	"notifications.enabled":  true,
	"notifications.max":      5,
	"notifications.command":  "busctl",
	"weather.enabled":        false,
	"weather.api_key":        "",
	"weather.location":       "",
	"weather.units":          "metric",
	"weather.endpoint":       "https://api.openweathermap.org/data/2.5/weather",
	"weather.min_interval":   10 * time.Minute,
	"weather.poll_interval":  10 * time.Second,
	"weather.timeout":        5 * time.Second,
	"weather.retries":        1,
	"cache.path":             "",
	"api.enabled":            false,
	"api.listen":             "127.0.0.1:7787",
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level":  "log_level",
	"interval":   "interval",
	"api":        "api.enabled",
	"api-listen": "api.listen",
	"cache":      "cache.path",
}

// Loader reads configuration from file, environment and flags. It keeps its
// viper instance so the active file can be watched after the initial load.
type Loader struct {
	v        *viper.Viper
	opts     options
	validate *validator.Validate
}

func NewLoader(opts ...Option) (*Loader, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidOption, err)
		}
	}
	if o.searchPaths == nil {
		o.searchPaths = defaultSearchPaths()
	}
	if o.log == nil {
		o.log = logger.WithComponent("config")
	}

	return &Loader{
		v:        viper.New(),
		opts:     o,
		validate: validator.New(),
	}, nil
}

// Load is a convenience wrapper around NewLoader and Loader.Load.
func Load(args []string, opts ...Option) (*Config, error) {
	l, err := NewLoader(opts...)
	if err != nil {
		return nil, err
	}

	return l.Load(args)
}

func (l *Loader) Load(args []string) (*Config, error) {
	errFactory := errors.New()

	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}

	fs := pflag.NewFlagSet("monitord", pflag.ContinueOnError)
	configFlag := fs.StringP("config", "c", "", "Path to configuration file")
	versionFlag := fs.Bool("version", false, "Print version and exit")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Duration("interval", time.Second, "Status and refresh interval")
	fs.Bool("api", false, "Enable the local control API")
	fs.String("api-listen", "127.0.0.1:7787", "Control API listen address")
	fs.String("cache", "", "Path to the weather cache database")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	for name, key := range flagKeys {
		if err := l.v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	l.v.SetEnvPrefix(l.opts.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.readConfigFile(*configFlag); err != nil {
		return nil, err
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	cfg.ShowVersion = *versionFlag

	return cfg, nil
}

func (l *Loader) readConfigFile(flagPath string) error {
	errFactory := errors.New()

	path := l.opts.configPath
	if flagPath != "" {
		path = flagPath
	}
	if path == "" {
		path = os.Getenv(configEnv)
	}

	if path != "" {
		l.v.SetConfigFile(path)
		l.v.SetConfigType(configType)
	} else {
		l.v.SetConfigName(configName)
		l.v.SetConfigType(configType)
		for _, dir := range l.opts.searchPaths {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func (l *Loader) decode() (*Config, error) {
	errFactory := errors.New()

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	cfg.Media.Token = strings.TrimSpace(cfg.Media.Token)

	if err := l.validate.Struct(cfg); err != nil {
		return nil, validationError(err)
	}

	return cfg, nil
}

// ConfigFile returns the file the configuration was read from, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) Watch(callback func(*Config)) error {
	errFactory := errors.New()

	if l.v.ConfigFileUsed() == "" {
		return errFactory.New(ErrNoConfigFile)
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			// The previous configuration stays active.
			l.opts.log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		callback(cfg)
	})
	l.v.WatchConfig()

	return nil
}

func validationError(err error) error {
	errFactory := errors.New()

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(fields)

	if containsField(fieldErrs, "LogLevel") {
		return errFactory.WithData(errors.ErrInvalidLogLevel, strings.Join(fields, ", "))
	}

	return errFactory.WithData(errors.ErrInvalidConfig, strings.Join(fields, ", "))
}

func containsField(fieldErrs validator.ValidationErrors, name string) bool {
	for _, fe := range fieldErrs {
		if fe.Field() == name {
			return true
		}
	}
	return false
}

func defaultSearchPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, configName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", configName))
	}

	return append(paths, filepath.Join("/etc", configName))
}
