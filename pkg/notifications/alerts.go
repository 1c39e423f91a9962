// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/SP4567/smart-home-whisper/pkg/interfaces"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/metrics"
)

// Toast titles shown by the dashboard.
const (
	TitleDeviceConnected    = "Device Connected"
	TitleConnectionFailed   = "Connection Failed"
	TitleDeviceDisconnected = "Device Disconnected"
	TitleDisconnectFailed   = "Disconnect Failed"
	TitleCommandFailed      = "Command Failed"
	TitleScanFailed         = "Scan Failed"
)

const sendTimeout = 5 * time.Second

// Alerts turns hub events into notifications with consistent wording.
type Alerts struct {
	notifier interfaces.Notifier
}

// NewAlerts wraps a notifier. A nil notifier disables alerts.
func NewAlerts(notifier interfaces.Notifier) *Alerts {
	return &Alerts{notifier: notifier}
}

// DeviceConnected reports a successful connection.
func (a *Alerts) DeviceConnected(ctx context.Context, name string) {
	a.send(ctx, interfaces.LevelSuccess, TitleDeviceConnected,
		fmt.Sprintf("Successfully connected to %s", name))
}

// ConnectionFailed reports a failed connection attempt.
func (a *Alerts) ConnectionFailed(ctx context.Context, name string) {
	a.send(ctx, interfaces.LevelDanger, TitleConnectionFailed,
		fmt.Sprintf("Could not connect to %s", name))
}

// DeviceDisconnected reports a completed disconnect.
func (a *Alerts) DeviceDisconnected(ctx context.Context, name string) {
	a.send(ctx, interfaces.LevelInfo, TitleDeviceDisconnected,
		fmt.Sprintf("%s has been successfully disconnected", name))
}

// DisconnectFailed reports a disconnect the device did not confirm.
func (a *Alerts) DisconnectFailed(ctx context.Context, name string) {
	a.send(ctx, interfaces.LevelDanger, TitleDisconnectFailed,
		fmt.Sprintf("Could not disconnect from %s", name))
}

// CommandFailed reports an unacknowledged command.
func (a *Alerts) CommandFailed(ctx context.Context, command, name string) {
	a.send(ctx, interfaces.LevelDanger, TitleCommandFailed,
		fmt.Sprintf("Failed to send %s command to %s", command, name))
}

// ScanFailed reports a failed discovery scan.
func (a *Alerts) ScanFailed(ctx context.Context, err error) {
	a.send(ctx, interfaces.LevelDanger, TitleScanFailed,
		fmt.Sprintf("Failed to scan for new devices: %v", err))
}

func (a *Alerts) send(ctx context.Context, level, title, message string) {
	metrics.NotificationsTotal.WithLabelValues(level).Inc()

	if a == nil || a.notifier == nil || !a.notifier.IsEnabled() {
		return
	}

	// Deliver even if the triggering request was cancelled.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if err := a.notifier.SendAlert(sendCtx, level, title, message); err != nil {
		logger.Error().Err(err).Str("title", title).Msg("Failed to deliver notification")
	}
}
