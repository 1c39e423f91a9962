// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the smart-home device hub.
//
// Every failure the simulated hardware layer can produce maps onto one of the
// types below, so callers can inspect them with errors.As() and errors.Is()
// instead of matching on strings.
//
// # Error Taxonomy
//
//   - ScanError: a discovery call was rejected or aborted
//   - ConnectionError: a connect or disconnect round trip failed
//   - CommandError: a device command was not acknowledged
//   - ValidationError: a device payload or attribute patch is invalid
//   - ConfigError: a configuration value is invalid
//   - NotificationError: a notification channel could not deliver
//
// # Example Usage
//
//	err := errors.NewCommandError("power", "light-1", errors.ErrCommandRejected)
//	if errors.IsCommandError(err) {
//	    log.Printf("command failed: %v", err)
//	}
//
//	var ce *errors.CommandError
//	if errors.As(err, &ce) {
//	    log.Printf("failed command: %s", ce.Command)
//	}
package errors

import (
	"errors"
	"fmt"
)

// ScanError represents an error during a device scan.
type ScanError struct {
	Op  string // Operation being performed (e.g., "simulated scan", "mDNS browse")
	Err error  // Underlying error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scan %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("scan %s failed", e.Op)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError creates a new scan error.
func NewScanError(op string, err error) *ScanError {
	return &ScanError{Op: op, Err: err}
}

// IsScanError checks if an error is a ScanError.
func IsScanError(err error) bool {
	var se *ScanError
	return errors.As(err, &se)
}

// ConnectionError represents a failed connect or disconnect round trip.
type ConnectionError struct {
	Op         string // "connect" or "disconnect"
	DeviceID   string // Device or candidate ID (may be empty for unnamed candidates)
	DeviceName string // Display name, used in user-facing messages
	Err        error  // Underlying error
}

func (e *ConnectionError) Error() string {
	target := e.DeviceName
	if e.DeviceID != "" {
		target = fmt.Sprintf("%s (device=%s)", e.DeviceName, e.DeviceID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Op, target)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new connection error.
func NewConnectionError(op, deviceID, deviceName string, err error) *ConnectionError {
	return &ConnectionError{Op: op, DeviceID: deviceID, DeviceName: deviceName, Err: err}
}

// IsConnectionError checks if an error is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// CommandError represents a device command that was not acknowledged.
type CommandError struct {
	Command  string // Command name (e.g., "power", "set_attributes")
	DeviceID string // Target device
	Err      error  // Underlying error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %s (device=%s): %v", e.Command, e.DeviceID, e.Err)
	}
	return fmt.Sprintf("command %s (device=%s) failed", e.Command, e.DeviceID)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new command error.
func NewCommandError(command, deviceID string, err error) *CommandError {
	return &CommandError{Command: command, DeviceID: deviceID, Err: err}
}

// IsCommandError checks if an error is a CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ValidationError represents a device payload validation error.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   any    // Invalid value
	Reason  string // Why validation failed
	Details error  // Additional details (optional)
}

func (e *ValidationError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("validation error: field %q with value %v: %s (%v)", e.Field, e.Value, e.Reason, e.Details)
	}
	return fmt.Sprintf("validation error: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Details
}

// NewValidationError creates a new validation error.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotificationError represents an error sending notifications.
type NotificationError struct {
	Type string // Notification type (e.g., "slack", "feed")
	Err  error  // Underlying error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notification %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("notification %s failed", e.Type)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new notification error.
func NewNotificationError(notifType string, err error) *NotificationError {
	return &NotificationError{Type: notifType, Err: err}
}

// IsNotificationError checks if an error is a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// Sentinel errors for common conditions
var (
	// ErrDeviceNotFound indicates a device was not found in the registry or scan results
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceExists indicates a device with the same ID is already registered
	ErrDeviceExists = errors.New("device already exists")

	// ErrDeviceOffline indicates a command targeted a device that is not connected
	ErrDeviceOffline = errors.New("device offline")

	// ErrScanInProgress indicates a scan was requested while another is running
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrOperationPending indicates another operation on the same device has not completed
	ErrOperationPending = errors.New("operation already pending for device")

	// ErrInvalidAttribute indicates an attribute that is meaningless for the device type
	ErrInvalidAttribute = errors.New("attribute not supported by device type")

	// ErrCommandRejected indicates the device did not acknowledge a command
	ErrCommandRejected = errors.New("command not acknowledged")

	// ErrConnectRejected indicates the device refused a connection
	ErrConnectRejected = errors.New("connection refused")

	// ErrCircuitBreakerOpen indicates the circuit breaker is open
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Is reports whether any error in err's chain matches target.
// Re-exported so callers importing this package under the name "errors" keep
// access to the standard helpers.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
