// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package dispatch gates local state changes behind a device round trip.
//
// The Dispatcher sends a command (or connect/disconnect request) over a Link
// and only calls the caller's commit function once the link confirms it.
// A failed, rejected or cancelled round trip never commits. All link calls
// pass through a circuit breaker so a dead link fails fast instead of
// making every caller sit through the full latency.
package dispatch

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/interfaces"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/metrics"
)

// Command names understood by device links.
const (
	CommandPower         = "power"
	CommandSetAttributes = "set_attributes"
)

// Link carries requests to devices. connection.Simulator is the stock
// implementation.
type Link = interfaces.DeviceLink

// Command is a single request to a device.
type Command struct {
	ID       string // correlation id for logs
	DeviceID string
	Name     string
	Params   map[string]any
}

// NewCommand creates a command with a fresh correlation id.
func NewCommand(deviceID, name string, params map[string]any) Command {
	return Command{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Name:     name,
		Params:   params,
	}
}

// Config holds circuit breaker settings.
type Config struct {
	FailureThreshold uint32        // consecutive failures before opening
	ResetTimeout     time.Duration // time spent open before probing again
}

// DefaultConfig returns the stock breaker settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// Dispatcher routes requests over a Link with commit-after-success
// semantics.
type Dispatcher struct {
	link    Link
	breaker *gobreaker.CircuitBreaker
}

// New creates a dispatcher over link.
func New(link Link, cfg Config) *Dispatcher {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        "dispatcher",
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not a link failure.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				stderrors.Is(err, context.Canceled) ||
				stderrors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
	metrics.CircuitBreakerState.WithLabelValues(settings.Name).Set(0)

	return &Dispatcher{
		link:    link,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// BreakerState reports the circuit breaker state ("closed", "half-open" or
// "open").
func (d *Dispatcher) BreakerState() string {
	return d.breaker.State().String()
}

// Execute sends cmd and calls commit only if the device acknowledged it.
// Otherwise it returns a CommandError and commit is never called.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command, commit func()) error {
	start := time.Now()
	_, err := d.breaker.Execute(func() (interface{}, error) {
		ok, err := d.link.SendCommand(ctx, cmd.DeviceID, cmd.Name, cmd.Params)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.ErrCommandRejected
		}
		return nil, nil
	})
	metrics.CommandDuration.WithLabelValues(cmd.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CommandsTotal.WithLabelValues(cmd.Name, resultLabel(err)).Inc()
		logger.Warn().
			Err(err).
			Str("command_id", cmd.ID).
			Str("device_id", cmd.DeviceID).
			Str("command", cmd.Name).
			Msg("Command failed")
		return errors.NewCommandError(cmd.Name, cmd.DeviceID, breakerError(err))
	}

	metrics.CommandsTotal.WithLabelValues(cmd.Name, metrics.ResultSuccess).Inc()
	logger.Debug().
		Str("command_id", cmd.ID).
		Str("device_id", cmd.DeviceID).
		Str("command", cmd.Name).
		Msg("Command acknowledged")

	if commit != nil {
		commit()
	}
	return nil
}

// Connect pairs with a candidate and hands the resulting device to commit.
func (d *Dispatcher) Connect(ctx context.Context, c device.Candidate, commit func(*device.Device)) (*device.Device, error) {
	res, err := d.breaker.Execute(func() (interface{}, error) {
		return d.link.Connect(ctx, c)
	})
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues(resultLabel(err)).Inc()
		if errors.IsConnectionError(err) {
			return nil, err
		}
		return nil, errors.NewConnectionError("connect", c.ID, c.Label(), breakerError(err))
	}

	dev := res.(*device.Device)
	metrics.ConnectionsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	logger.Info().
		Str("device_id", dev.ID).
		Str("device_name", dev.Name).
		Msg("Device connected")

	if commit != nil {
		commit(dev)
	}
	return dev, nil
}

// Disconnect releases a device and calls commit once the link confirms.
func (d *Dispatcher) Disconnect(ctx context.Context, id, name string, commit func()) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.link.Disconnect(ctx, id)
	})
	if err != nil {
		metrics.DisconnectionsTotal.WithLabelValues(resultLabel(err)).Inc()
		if errors.IsConnectionError(err) {
			return err
		}
		return errors.NewConnectionError("disconnect", id, name, breakerError(err))
	}

	metrics.DisconnectionsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	logger.Info().Str("device_id", id).Msg("Device disconnected")

	if commit != nil {
		commit()
	}
	return nil
}

// breakerError maps gobreaker's rejection errors onto ErrCircuitBreakerOpen.
func breakerError(err error) error {
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.ErrCircuitBreakerOpen
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case stderrors.Is(err, errors.ErrCommandRejected), stderrors.Is(err, errors.ErrConnectRejected):
		return metrics.ResultFailure
	default:
		return metrics.ResultError
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
