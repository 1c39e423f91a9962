// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"

	"github.com/SP4567/smart-home-whisper/device"
)

// Discoverer finds candidate devices on the network.
// Implementations must not remember results between calls; reconciling
// candidates against registered devices is the caller's job.
type Discoverer interface {
	// Scan performs one discovery pass and returns the candidates seen
	Scan(ctx context.Context) ([]device.Candidate, error)
}

// DeviceLink carries connect, disconnect and command requests to devices.
type DeviceLink interface {
	// Connect pairs with a candidate and returns the registered device record
	Connect(ctx context.Context, c device.Candidate) (*device.Device, error)

	// Disconnect releases a device
	Disconnect(ctx context.Context, id string) error

	// SendCommand delivers a named command and reports whether it was acknowledged
	SendCommand(ctx context.Context, id, name string, params map[string]any) (bool, error)
}
