package config

import "codeberg.org/mutker/monitord/internal/logger"

// Watcher enables live configuration updates
type Watcher interface {
	// Watch starts watching the active config file. The callback receives the
	// re-decoded configuration after every successful change.
	Watch(callback func(*Config)) error
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

type options struct {
	configPath  string
	envPrefix   string
	searchPaths []string
	log         logger.Logger
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "MONITORD"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithSearchPaths replaces the directories searched for monitord.toml.
func WithSearchPaths(paths ...string) Option {
	return func(o *options) error {
		o.searchPaths = paths
		return nil
	}
}

// WithLogger sets the logger used to report rejected config changes while
// watching.
func WithLogger(log logger.Logger) Option {
	return func(o *options) error {
		o.log = log
		return nil
	}
}
