// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestHealthURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://127.0.0.1:8080/health"},
		{"0.0.0.0:9000", "http://127.0.0.1:9000/health"},
		{"[::]:9000", "http://127.0.0.1:9000/health"},
		{"192.168.1.5:8080", "http://192.168.1.5:8080/health"},
		{"[::1]:8080", "http://[::1]:8080/health"},
	}

	for _, tt := range tests {
		if got := healthURL(tt.addr); got != tt.want {
			t.Errorf("healthURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestCheckHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	if err := checkHealth(context.Background(), healthy.URL+"/health"); err != nil {
		t.Errorf("checkHealth() on healthy server error = %v", err)
	}

	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer limited.Close()

	err := checkHealth(context.Background(), limited.URL+"/health")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("checkHealth() on limited server error = %v, want status 429", err)
	}
}

func TestPerformHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	path := writeConfig(t, "api:\n  listen_addr: \""+addr+"\"\n")
	if code := performHealthCheck(path); code != 0 {
		t.Errorf("performHealthCheck() = %d, want 0", code)
	}

	if code := performHealthCheck(filepath.Join(t.TempDir(), "missing.yaml")); code != 1 {
		t.Errorf("performHealthCheck() with missing config = %d, want 1", code)
	}
}

func TestPerformConfigValidation(t *testing.T) {
	valid := writeConfig(t, "logging:\n  level: debug\nmqtt:\n  broker: tcp://localhost:1883\n")
	if code := performConfigValidation(valid); code != 0 {
		t.Errorf("performConfigValidation() with valid config = %d, want 0", code)
	}

	invalid := writeConfig(t, "simulation:\n  command_probability: 2\n")
	if code := performConfigValidation(invalid); code != 1 {
		t.Errorf("performConfigValidation() with invalid config = %d, want 1", code)
	}

	unknown := writeConfig(t, "influxdb:\n  url: http://localhost:8086\n")
	if code := performConfigValidation(unknown); code != 1 {
		t.Errorf("performConfigValidation() with unknown section = %d, want 1", code)
	}
}
