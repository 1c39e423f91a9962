// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/SP4567/smart-home-whisper/pkg/logger"
)

// Watcher re-reads the configuration file on SIGHUP and delivers each new
// valid configuration on its channel. A file that fails schema or value
// validation is logged and the running configuration stays in place.
// Reloads that change nothing are not delivered.
type Watcher struct {
	path    string
	updates chan<- *Config
	signals chan os.Signal
	stop    context.CancelFunc
	current *Config
}

// NewWatcher creates a watcher for path delivering to updates.
func NewWatcher(path string, updates chan<- *Config) *Watcher {
	return &Watcher{
		path:    path,
		updates: updates,
		signals: make(chan os.Signal, 1),
	}
}

// Start installs the SIGHUP handler and watches until ctx is done or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.stop = context.WithCancel(ctx)
	signal.Notify(w.signals, syscall.SIGHUP)
	go w.watch(ctx)
}

// Stop removes the signal handler.
func (w *Watcher) Stop() {
	if w.stop != nil {
		w.stop()
	}
	signal.Stop(w.signals)
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signals:
			logger.Info().Str("path", w.path).Msg("SIGHUP received, reloading configuration")
			cfg, ok := w.reload()
			if !ok {
				continue
			}
			select {
			case w.updates <- cfg:
				w.current = cfg
			case <-ctx.Done():
				return
			}
		}
	}
}

// reload loads and validates the file. It reports false when the file is
// invalid or identical to the last delivered configuration.
func (w *Watcher) reload() (*Config, bool) {
	if err := ValidateWithSchema(w.path); err != nil {
		logger.Error().Err(err).Str("path", w.path).Msg("Reloaded configuration rejected by schema")
		return nil, false
	}
	cfg, err := Load(w.path)
	if err != nil {
		logger.Error().Err(err).Str("path", w.path).Msg("Failed to reload configuration")
		return nil, false
	}
	if w.current != nil && reflect.DeepEqual(w.current, cfg) {
		logger.Info().Str("path", w.path).Msg("Configuration unchanged, nothing to apply")
		return nil, false
	}

	logger.Info().
		Str("path", w.path).
		Float64("connect_probability", cfg.Simulation.ConnectProbability).
		Float64("command_probability", cfg.Simulation.CommandProbability).
		Bool("slack_enabled", cfg.Notifications.SlackWebhookURL != "").
		Str("log_level", cfg.Logging.Level).
		Msg("Configuration reloaded")
	return cfg, true
}
