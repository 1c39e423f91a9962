// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires the hub together: simulators or mDNS discovery, the
// dispatcher, the device store, the HTTP API, the optional MQTT bridge and
// configuration hot reload.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/SP4567/smart-home-whisper/api"
	"github.com/SP4567/smart-home-whisper/bridge"
	"github.com/SP4567/smart-home-whisper/config"
	"github.com/SP4567/smart-home-whisper/connection"
	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/discovery"
	"github.com/SP4567/smart-home-whisper/dispatch"
	"github.com/SP4567/smart-home-whisper/pkg/interfaces"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/notifications"
	"github.com/SP4567/smart-home-whisper/pkg/sim"
	"github.com/SP4567/smart-home-whisper/pkg/slacknotifier"
	"github.com/SP4567/smart-home-whisper/store"
)

const (
	signalChannelSize  = 1
	shutdownTimeout    = 5 * time.Second
	bridgeBuffer       = 32
	bridgeRetryDelay   = 5 * time.Second
	stackDumpBufferLen = 1024 * 1024
)

// App is the running hub.
type App struct {
	cfg        *config.Config
	configPath string

	feed       *notifications.Feed
	slack      *slacknotifier.Notifier
	links      *connection.Simulator
	scanner    *discovery.Simulator // nil in mDNS mode
	dispatcher *dispatch.Dispatcher
	store      *store.Store
	api        *api.Server
	server     *http.Server
	listener   net.Listener
	mqtt       *bridge.Client

	configWatcher *config.Watcher
	configUpdates chan *config.Config

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the hub from cfg. configPath is re-read on SIGHUP; an empty
// path disables hot reload.
func New(cfg *config.Config, configPath string) (*App, error) {
	a := &App{
		cfg:        cfg,
		configPath: configPath,
	}
	if err := a.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return a, nil
}

func (a *App) initializeComponents() error {
	cfg := a.cfg

	a.feed = notifications.NewFeed(cfg.Notifications.FeedSize)
	a.slack = slacknotifier.New(cfg.Notifications.SlackWebhookURL)
	if a.slack.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}

	var chance sim.Chance = &sim.Random{}
	if cfg.Simulation.RandomSeed != 0 {
		chance = sim.NewRandom(cfg.Simulation.RandomSeed)
	}
	clock := sim.RealClock{}

	a.links = connection.NewSimulator(connectionConfig(cfg.Simulation), clock, chance)
	a.dispatcher = dispatch.New(a.links, dispatch.Config{
		FailureThreshold: cfg.Dispatcher.FailureThreshold,
		ResetTimeout:     cfg.Dispatcher.ResetTimeout,
	})

	var discoverer interfaces.Discoverer
	switch cfg.Discovery.Mode {
	case config.DiscoveryMDNS:
		discoverer = discovery.NewMDNSScanner(cfg.Discovery.ServiceType, cfg.Discovery.Domain, cfg.Discovery.Timeout)
		logger.Info().
			Str("service_type", cfg.Discovery.ServiceType).
			Str("domain", cfg.Discovery.Domain).
			Msg("Using mDNS discovery")
	default:
		a.scanner = discovery.NewSimulator(scannerConfig(cfg.Simulation), clock, chance)
		discoverer = a.scanner
		logger.Info().Msg("Using simulated discovery")
	}

	var seed []*device.Device
	if !cfg.SeedDevices {
		seed = []*device.Device{}
	}

	var err error
	a.store, err = store.New(store.Options{
		Discoverer: discoverer,
		Dispatcher: a.dispatcher,
		Notifier:   notifications.Multi{a.feed, a.slack},
		Clock:      clock,
		Devices:    seed,
	})
	if err != nil {
		return fmt.Errorf("failed to create device store: %w", err)
	}

	a.api = api.New(a.store, a.feed, api.Options{
		RateLimit:      cfg.API.RateLimit,
		RateBurst:      cfg.API.RateBurst,
		AllowedOrigins: cfg.API.AllowedOrigins,
	})
	a.server = &http.Server{
		Addr:         cfg.API.ListenAddr,
		Handler:      a.api.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	if a.configPath != "" {
		a.configUpdates = make(chan *config.Config, 1)
		a.configWatcher = config.NewWatcher(a.configPath, a.configUpdates)
	}
	return nil
}

func connectionConfig(s config.SimulationConfig) connection.Config {
	return connection.Config{
		ConnectDelay:          s.ConnectDelay,
		DisconnectDelay:       s.DisconnectDelay,
		CommandDelay:          s.CommandDelay,
		ConnectProbability:    s.ConnectProbability,
		DisconnectProbability: s.DisconnectProbability,
		CommandProbability:    s.CommandProbability,
	}
}

func scannerConfig(s config.SimulationConfig) discovery.SimulatorConfig {
	cfg := discovery.DefaultSimulatorConfig()
	cfg.Delay = s.ScanDelay
	cfg.InclusionProbability = s.InclusionProbability
	cfg.FailureProbability = s.ScanFailureProbability
	return cfg
}

// Store returns the device store.
func (a *App) Store() *store.Store {
	return a.store
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// Addr returns the address the API listens on once Start has returned.
func (a *App) Addr() string {
	if a.listener == nil {
		return a.server.Addr
	}
	return a.listener.Addr().String()
}

// Run starts the hub and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}
	a.setupSignalHandler()
	<-a.ctx.Done()
	a.performCleanup()
	return nil
}

// Start opens the API listener and launches the background goroutines. It
// returns once the listener is bound. Shutdown stops everything.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.cancel()
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	a.listener = ln

	a.startAPIServer()
	a.startBridge()
	a.startConfigWatcher()
	return nil
}

// Shutdown stops the hub and waits for its goroutines.
func (a *App) Shutdown() {
	a.performGracefulShutdown()
	a.performCleanup()
}

func (a *App) startAPIServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.listener.Addr().String()).Msg("Starting API server")
		if err := a.server.Serve(a.listener); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("API server failed")
		}
	}()
}

// startBridge connects to the MQTT broker when one is configured. A broker
// that cannot be reached is logged and the hub runs without the mirror.
func (a *App) startBridge() {
	if a.cfg.MQTT.Broker == "" {
		logger.Info().Msg("MQTT bridge disabled (no broker configured)")
		return
	}

	client, err := bridge.Connect(a.cfg.MQTT)
	if err != nil {
		logger.Error().Err(err).Str("broker", a.cfg.MQTT.Broker).Msg("MQTT bridge disabled")
		return
	}
	a.mqtt = client

	mirror := bridge.New(client, a.cfg.MQTT.TopicPrefix, a.cfg.MQTT.QoS)
	snapshots, unsubscribe := a.store.Subscribe(bridgeBuffer)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsubscribe()
		mirror.Run(a.ctx, snapshots, bridgeRetryDelay)
		logger.Info().Msg("MQTT bridge shutting down")
	}()
}

// startConfigWatcher applies reloaded configuration until the app stops.
func (a *App) startConfigWatcher() {
	if a.configWatcher == nil {
		return
	}
	a.configWatcher.Start(a.ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config watcher goroutine shutting down")
				return
			case cfg := <-a.configUpdates:
				a.UpdateConfig(cfg)
			}
		}
	}()
}

// UpdateConfig applies the settings that can change without a restart:
// simulation odds, the Slack webhook and the log level.
func (a *App) UpdateConfig(cfg *config.Config) {
	sc := cfg.Simulation
	a.links.SetProbabilities(sc.ConnectProbability, sc.DisconnectProbability, sc.CommandProbability)
	if a.scanner != nil {
		a.scanner.SetProbabilities(sc.InclusionProbability, sc.ScanFailureProbability)
	}
	a.slack.UpdateWebhookURL(cfg.Notifications.SlackWebhookURL)
	logger.SetLevel(cfg.Logging.Level)

	a.cfg.Simulation.ConnectProbability = sc.ConnectProbability
	a.cfg.Simulation.DisconnectProbability = sc.DisconnectProbability
	a.cfg.Simulation.CommandProbability = sc.CommandProbability
	a.cfg.Simulation.InclusionProbability = sc.InclusionProbability
	a.cfg.Simulation.ScanFailureProbability = sc.ScanFailureProbability
	a.cfg.Notifications.SlackWebhookURL = cfg.Notifications.SlackWebhookURL
	a.cfg.Logging.Level = cfg.Logging.Level

	logger.Info().
		Float64("connect_probability", sc.ConnectProbability).
		Float64("command_probability", sc.CommandProbability).
		Float64("inclusion_probability", sc.InclusionProbability).
		Bool("slack_enabled", a.slack.IsEnabled()).
		Str("log_level", cfg.Logging.Level).
		Msg("Application configuration updated")
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			a.performGracefulShutdown()
		case <-a.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

// performGracefulShutdown stops the API server, closes WebSocket streams and
// cancels background work.
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Closing subscriptions first ends the WebSocket handlers, which
	// Shutdown does not wait for.
	a.store.Close()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	if a.configWatcher != nil {
		a.configWatcher.Stop()
	}
	a.cancel()
}

// performCleanup waits for goroutines and disconnects from the broker.
func (a *App) performCleanup() {
	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	logger.Info().Msg("All goroutines finished, exiting")
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	snap := a.store.Snapshot()
	connected := 0
	for _, d := range snap.Devices {
		if d.IsConnected {
			connected++
		}
	}
	logger.Info().
		Int("registered_devices", len(snap.Devices)).
		Int("connected_devices", connected).
		Int("scan_results", len(snap.ScanResults)).
		Bool("is_scanning", snap.IsScanning).
		Bool("is_loading", snap.IsLoading).
		Strs("pending", snap.Pending).
		Str("error", snap.Error).
		Uint64("version", snap.Version).
		Msg("Store state")

	for _, d := range snap.Devices {
		logger.Info().
			Str("device_id", d.ID).
			Str("device_name", d.Name).
			Str("type", string(d.Type)).
			Str("room", d.Room).
			Bool("is_on", d.IsOn).
			Str("status", string(d.Status)).
			Str("address", d.Address()).
			Msg("Registered device")
	}

	logger.Info().
		Str("breaker_state", a.dispatcher.BreakerState()).
		Bool("mqtt_connected", a.mqtt != nil && a.mqtt.IsConnected()).
		Int("notifications", len(a.feed.List())).
		Msg("Component state")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, stackDumpBufferLen)
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}
