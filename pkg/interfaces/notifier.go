// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
)

// Notification levels. Slack maps them onto attachment colours and the
// dashboard onto toast variants.
const (
	LevelInfo    = "info"
	LevelSuccess = "good"
	LevelWarning = "warning"
	LevelDanger  = "danger"
)

// Notifier defines the interface for sending user-facing notifications.
type Notifier interface {
	// SendAlert sends a notification with the given level, title, and message.
	SendAlert(ctx context.Context, level, title, message string) error
	// IsEnabled returns true if the notifier is configured and enabled.
	IsEnabled() bool
}
