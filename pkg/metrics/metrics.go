// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the smart-home device hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

var (
	// RegisteredDevices tracks the number of devices in the registry
	RegisteredDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smarthome_registered_devices",
		Help: "Number of devices in the registry",
	})

	// ConnectedDevices tracks the number of registered devices currently connected
	ConnectedDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smarthome_connected_devices",
		Help: "Number of registered devices currently connected",
	})

	// ScanResults tracks the number of unregistered devices found by the last scan
	ScanResults = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smarthome_scan_results",
		Help: "Number of candidate devices awaiting connection",
	})

	// ScansTotal tracks the total number of device scans started
	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smarthome_scans_total",
		Help: "Total number of device scans started",
	})

	// ScanErrors tracks the number of failed device scans
	ScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smarthome_scan_errors_total",
		Help: "Total number of failed device scans",
	})

	// ScanDuration tracks how long device scans take
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smarthome_scan_duration_seconds",
		Help:    "Duration of device scans in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// CommandsTotal tracks device commands by name and result
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_commands_total",
		Help: "Total number of device commands by result",
	}, []string{"command", "result"})

	// CommandDuration tracks the round trip time of device commands
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smarthome_command_duration_seconds",
		Help:    "Duration of device command round trips in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// ConnectionsTotal tracks connection attempts by result
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_connections_total",
		Help: "Total number of device connection attempts by result",
	}, []string{"result"})

	// DisconnectionsTotal tracks disconnection attempts by result
	DisconnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_disconnections_total",
		Help: "Total number of device disconnection attempts by result",
	}, []string{"result"})

	// NotificationsTotal tracks user notifications raised by level
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_notifications_total",
		Help: "Total number of user notifications raised by level",
	}, []string{"level"})

	// CircuitBreakerState tracks the dispatcher circuit breaker (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smarthome_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	// MQTTPublishesTotal tracks state messages published to the MQTT broker
	MQTTPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_mqtt_publishes_total",
		Help: "Total number of MQTT state publishes by result",
	}, []string{"result"})

	// WebSocketClients tracks connected snapshot stream clients
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smarthome_websocket_clients",
		Help: "Number of connected WebSocket snapshot clients",
	})
)
