// Package notifications captures desktop notifications from the session bus
// and keeps the most recent ones.
package notifications

import (
	"bufio"
	"context"
	"time"

	"codeberg.org/mutker/monitord/internal/command"
	"codeberg.org/mutker/monitord/internal/logger"
)

const DefaultCommand = "busctl"

// MonitorArgs filter busctl output to Notify calls on the user bus.
var MonitorArgs = []string{
	"monitor",
	"--user",
	"--match",
	"type=method_call,interface=org.freedesktop.Notifications,member=Notify",
}

const maxLine = 1 << 20

type Config struct {
	Command  string
	Max      int
	Streamer command.Streamer
	Logger   logger.Logger
	Now      func() time.Time
}

type Monitor struct {
	command  string
	streamer command.Streamer
	log      logger.Logger
	now      func() time.Time

	list *List
}

func New(cfg Config) *Monitor {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Streamer == nil {
		cfg.Streamer = command.NewExec(command.DefaultTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Monitor{
		command:  cfg.Command,
		streamer: cfg.Streamer,
		log:      cfg.Logger,
		now:      cfg.Now,
		list:     NewList(cfg.Max),
	}
}

func (m *Monitor) Name() string { return "notifications" }

// Run streams the bus monitor until ctx is cancelled or the monitor exits. A
// monitor that cannot be started disables this collector only; Run then
// returns nil so sibling collectors keep going.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().Str("command", m.command).Msg("Starting notification monitor")

	stream, err := m.streamer.Stream(ctx, m.command, MonitorArgs...)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to start notification monitor")
		return nil
	}
	defer stream.Close()

	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	parser := NewParser(m.now)
	sc := bufio.NewScanner(stream)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	for sc.Scan() {
		n, ok := parser.Feed(sc.Text())
		if !ok {
			continue
		}

		m.log.Debug().
			Str("app", n.AppName).
			Str("summary", n.Summary).
			Msg("Captured notification")
		m.list.Add(n)
	}

	if ctx.Err() != nil {
		return nil
	}

	if err := sc.Err(); err != nil {
		m.log.Warn().Err(err).Msg("Notification stream read failed")
	}
	if err := stream.Wait(); err != nil {
		m.log.Warn().Err(err).Msg("Notification monitor exited")
	} else {
		m.log.Warn().Msg("Notification monitor exited")
	}

	return nil
}

func (m *Monitor) Notifications() []Notification {
	return m.list.Items()
}

// Add inserts a notification that did not come from the bus stream.
func (m *Monitor) Add(n Notification) {
	m.list.Add(n)
}

func (m *Monitor) Clear() {
	m.list.Clear()
	m.log.Info().Msg("Cleared all notifications")
}

func (m *Monitor) ClearApp(app string) {
	m.list.ClearApp(app)
	m.log.Info().Str("app", app).Msg("Cleared notifications for app")
}

func (m *Monitor) Remove(app string, timestamp int64) {
	m.list.Remove(app, timestamp)
	m.log.Debug().Str("app", app).Int64("timestamp", timestamp).Msg("Removed notification")
}
