// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/sim"
)

// Simulator defaults.
const (
	DefaultScanDelay            = 1500 * time.Millisecond
	DefaultInclusionProbability = 0.7
)

// SimulatorConfig controls the simulated scan.
type SimulatorConfig struct {
	Delay                time.Duration
	InclusionProbability float64 // chance each pool entry is reported
	FailureProbability   float64 // chance the whole scan fails
	Pool                 []device.Candidate
}

// DefaultSimulatorConfig returns the stock scan behaviour over the built-in
// discovery pool.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Delay:                DefaultScanDelay,
		InclusionProbability: DefaultInclusionProbability,
		Pool:                 device.DiscoveryPool(),
	}
}

// Simulator pretends to scan the local network. Each Scan waits for the
// configured delay and then reports every pool entry independently with the
// inclusion probability. It keeps no memory between scans; reconciliation
// against registered devices is the caller's job.
type Simulator struct {
	clock  sim.Clock
	chance sim.Chance

	mu  sync.RWMutex // Protects cfg
	cfg SimulatorConfig
}

// NewSimulator creates a discovery simulator. Nil clock or chance fall back
// to the real clock and a randomly seeded source.
func NewSimulator(cfg SimulatorConfig, clock sim.Clock, chance sim.Chance) *Simulator {
	if clock == nil {
		clock = sim.RealClock{}
	}
	if chance == nil {
		chance = &sim.Random{}
	}
	return &Simulator{clock: clock, chance: chance, cfg: cfg}
}

// SetProbabilities updates the scan odds, e.g. after a config reload.
func (s *Simulator) SetProbabilities(inclusion, failure float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.InclusionProbability = inclusion
	s.cfg.FailureProbability = failure
}

// Config returns a copy of the current configuration.
func (s *Simulator) Config() SimulatorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Pool = append([]device.Candidate(nil), s.cfg.Pool...)
	return cfg
}

// Scan waits for the scan delay and returns a random subset of the pool.
func (s *Simulator) Scan(ctx context.Context) ([]device.Candidate, error) {
	cfg := s.Config()

	if !sim.Wait(s.clock, cfg.Delay, ctx.Done()) {
		return nil, errors.NewScanError("simulated scan", ctx.Err())
	}

	if cfg.FailureProbability > 0 && s.chance.Succeeds(cfg.FailureProbability) {
		logger.Warn().Msg("Simulated scan failed")
		return nil, errors.NewScanError("simulated scan", nil)
	}

	found := make([]device.Candidate, 0, len(cfg.Pool))
	for _, c := range cfg.Pool {
		if s.chance.Succeeds(cfg.InclusionProbability) {
			found = append(found, c)
		}
	}

	logger.Debug().
		Int("pool_size", len(cfg.Pool)).
		Int("found", len(found)).
		Msg("Simulated scan complete")

	return found, nil
}
