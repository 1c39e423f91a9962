// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Command smart-home-whisper runs the smart-home device hub.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/SP4567/smart-home-whisper/app"
	"github.com/SP4567/smart-home-whisper/config"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
)

const healthCheckTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*configPath))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitializeWithFormat(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info().Msg("Starting smart-home hub")
	logger.Info().
		Str("listen_addr", cfg.API.ListenAddr).
		Str("discovery_mode", cfg.Discovery.Mode).
		Bool("mqtt_enabled", cfg.MQTT.Broker != "").
		Msg("Configuration loaded")

	application, err := app.New(cfg, *configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	setupDebugSignalHandlers(application)

	if err := application.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Application failed")
	}
}

// performHealthCheck queries /health on the configured listen address and
// returns the process exit code.
func performHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	if err := checkHealth(ctx, healthURL(cfg.API.ListenAddr)); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}

	fmt.Println("Health check passed: hub is healthy")
	return 0
}

// healthURL turns a listen address into a loopback URL for /health.
func healthURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr + "/health"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health"
}

func checkHealth(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hub returned status %d", resp.StatusCode)
	}
	return nil
}

// performConfigValidation validates the configuration file and returns exit code
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return 1
	}

	fmt.Println("\n✅ Configuration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Listen Address: %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Discovery Mode: %s\n", cfg.Discovery.Mode)
	if cfg.Discovery.Mode == config.DiscoveryMDNS {
		fmt.Printf("  Service Type: %s\n", cfg.Discovery.ServiceType)
		fmt.Printf("  Domain: %s\n", cfg.Discovery.Domain)
		fmt.Printf("  Browse Timeout: %s\n", cfg.Discovery.Timeout)
	}
	fmt.Printf("  Connect Probability: %.2f\n", cfg.Simulation.ConnectProbability)
	fmt.Printf("  Command Probability: %.2f\n", cfg.Simulation.CommandProbability)
	fmt.Printf("  Circuit Breaker: %d failures, %s reset\n", cfg.Dispatcher.FailureThreshold, cfg.Dispatcher.ResetTimeout)
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Seed Devices: %t\n", cfg.SeedDevices)

	if cfg.Notifications.SlackWebhookURL != "" {
		fmt.Println("  Slack Notifications: Enabled")
	} else {
		fmt.Println("  Slack Notifications: Disabled")
	}
	if cfg.MQTT.Broker != "" {
		fmt.Printf("  MQTT Broker: %s (prefix %s)\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	} else {
		fmt.Println("  MQTT Bridge: Disabled")
	}

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
