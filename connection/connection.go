// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package connection simulates the device link: connecting to discovered
// candidates, disconnecting registered devices and delivering commands.
//
// Every call waits a fixed latency on the injected clock and then rolls the
// injected chance. Nothing here touches device state; callers apply the
// outcome themselves once the call returns.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/sim"
)

// Config holds latencies and success probabilities for each call.
type Config struct {
	ConnectDelay          time.Duration
	DisconnectDelay       time.Duration
	CommandDelay          time.Duration
	ConnectProbability    float64
	DisconnectProbability float64
	CommandProbability    float64
}

// DefaultConfig returns the stock link behaviour: connects succeed 80% of
// the time, commands 90%, disconnects always.
func DefaultConfig() Config {
	return Config{
		ConnectDelay:          1500 * time.Millisecond,
		DisconnectDelay:       1000 * time.Millisecond,
		CommandDelay:          800 * time.Millisecond,
		ConnectProbability:    0.8,
		DisconnectProbability: 1.0,
		CommandProbability:    0.9,
	}
}

// Simulator is a fake device link.
type Simulator struct {
	clock  sim.Clock
	chance sim.Chance

	mu  sync.RWMutex // Protects cfg
	cfg Config
}

// NewSimulator creates a link simulator. Nil clock or chance fall back to
// the real clock and a randomly seeded source.
func NewSimulator(cfg Config, clock sim.Clock, chance sim.Chance) *Simulator {
	if clock == nil {
		clock = sim.RealClock{}
	}
	if chance == nil {
		chance = &sim.Random{}
	}
	return &Simulator{clock: clock, chance: chance, cfg: cfg}
}

// Config returns the current configuration.
func (s *Simulator) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetProbabilities updates the success odds, e.g. after a config reload.
func (s *Simulator) SetProbabilities(connect, disconnect, command float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ConnectProbability = connect
	s.cfg.DisconnectProbability = disconnect
	s.cfg.CommandProbability = command
}

// Connect attempts to pair with a candidate. On success it returns the full
// device record: the candidate's ID (or a fresh one), its room (or the
// default room), powered off, connected and online, carrying the
// candidate's attributes or the type defaults.
func (s *Simulator) Connect(ctx context.Context, c device.Candidate) (*device.Device, error) {
	cfg := s.Config()

	logger.Debug().
		Str("candidate_id", c.Key()).
		Str("device_name", c.Label()).
		Msg("Connecting to device")

	if !sim.Wait(s.clock, cfg.ConnectDelay, ctx.Done()) {
		return nil, errors.NewConnectionError("connect", c.ID, c.Label(), ctx.Err())
	}

	if !s.chance.Succeeds(cfg.ConnectProbability) {
		return nil, errors.NewConnectionError("connect", c.ID, c.Label(), errors.ErrConnectRejected)
	}

	return Promote(c, s.clock.Now()), nil
}

// Promote builds the registered device for a successfully connected
// candidate. Attributes always start at the type defaults; whatever the
// candidate advertised during discovery is not carried over.
func Promote(c device.Candidate, now time.Time) *device.Device {
	typ := c.Type
	if typ == "" {
		typ = device.TypeLight
	}
	id := c.ID
	if id == "" {
		id = device.NewID(typ, now)
	}
	room := c.Room
	if room == "" {
		room = device.DefaultRoom
	}
	conn := c.ConnectionType
	if conn == "" {
		conn = device.ConnectionWiFi
	}
	ip, mac := device.NormalizeAddresses(conn, c.IPAddress, c.MACAddress)

	return &device.Device{
		ID:             id,
		Name:           c.Label(),
		Type:           typ,
		Room:           room,
		IsOn:           false,
		IsConnected:    true,
		Status:         device.StatusOnline,
		ConnectionType: conn,
		IPAddress:      ip,
		MACAddress:     mac,
		Attributes:     device.DefaultAttributes(typ),
	}
}

// Disconnect releases a device. With the default configuration it always
// succeeds.
func (s *Simulator) Disconnect(ctx context.Context, id string) error {
	cfg := s.Config()

	logger.Debug().Str("device_id", id).Msg("Disconnecting from device")

	if !sim.Wait(s.clock, cfg.DisconnectDelay, ctx.Done()) {
		return errors.NewConnectionError("disconnect", id, id, ctx.Err())
	}
	if !s.chance.Succeeds(cfg.DisconnectProbability) {
		return errors.NewConnectionError("disconnect", id, id, nil)
	}
	return nil
}

// SendCommand delivers a named command. It reports whether the device
// acknowledged it; an error is returned only when ctx ends first.
func (s *Simulator) SendCommand(ctx context.Context, id, name string, params map[string]any) (bool, error) {
	cfg := s.Config()

	logger.Debug().
		Str("device_id", id).
		Str("command", name).
		Interface("params", params).
		Msg("Sending command to device")

	if !sim.Wait(s.clock, cfg.CommandDelay, ctx.Done()) {
		return false, ctx.Err()
	}
	return s.chance.Succeeds(cfg.CommandProbability), nil
}
