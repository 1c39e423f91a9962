// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build !windows

package config

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestWatcher_ReloadOnSIGHUP(t *testing.T) {
	path := writeConfig(t, "simulation:\n  command_probability: 0.5\n")

	configs := make(chan *Config, 1)
	w := NewWatcher(path, configs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Skipf("cannot signal self: %v", err)
	}

	select {
	case cfg := <-configs:
		if cfg.Simulation.CommandProbability != 0.5 {
			t.Errorf("reloaded CommandProbability = %v, want 0.5", cfg.Simulation.CommandProbability)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "simulation:\n  connect_probability: 0.4\n")
	w := NewWatcher(path, make(chan *Config, 1))

	cfg, ok := w.reload()
	if !ok {
		t.Fatal("reload() of a valid file should succeed")
	}
	if cfg.Simulation.ConnectProbability != 0.4 {
		t.Errorf("ConnectProbability = %v, want 0.4", cfg.Simulation.ConnectProbability)
	}

	w.current = cfg
	if _, ok := w.reload(); ok {
		t.Error("reload() of an unchanged file should report nothing to apply")
	}

	if err := os.WriteFile(path, []byte("simulation:\n  warp_factor: 9\n"), 0600); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}
	if _, ok := w.reload(); ok {
		t.Error("reload() should reject keys unknown to the schema")
	}

	if err := os.WriteFile(path, []byte("simulation:\n  connect_probability: 0.9\n"), 0600); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}
	cfg, ok = w.reload()
	if !ok || cfg.Simulation.ConnectProbability != 0.9 {
		t.Errorf("reload() after change = %v, %v; want probability 0.9", cfg, ok)
	}
}
