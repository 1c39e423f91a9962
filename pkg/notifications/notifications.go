// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package notifications delivers user-facing events raised by the hub.
//
// The dashboard shows these as toasts; an operator may additionally route
// them to Slack.
//
// # Channels
//
//   - Feed: bounded in-memory list served at GET /notifications
//   - slacknotifier.Notifier: Slack webhook (optional)
//   - Multi: fans one alert out to several channels
//
// # Alert Levels
//
//   - danger: an operation failed (connect, command, scan)
//   - good: a device was connected
//   - info: a device was disconnected
//
// # Error Handling
//
// Notification failures never fail the operation that raised them. Alerts
// logs delivery errors and moves on.
//
// # Example Usage
//
//	feed := notifications.NewFeed(50)
//	alerts := notifications.NewAlerts(notifications.Multi{feed, slack})
//
//	alerts.ConnectionFailed(ctx, "Smart Lock")
//	for _, toast := range feed.List() {
//	    fmt.Println(toast.Title, toast.Message)
//	}
package notifications

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/interfaces"
)

// DefaultFeedSize is the number of toasts a Feed keeps.
const DefaultFeedSize = 50

// Toast is one user-facing notification.
type Toast struct {
	ID      string    `json:"id"`
	Level   string    `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Feed keeps the most recent toasts in memory.
type Feed struct {
	mu     sync.RWMutex
	size   int
	toasts []Toast // oldest first
	now    func() time.Time
}

// NewFeed creates a feed holding at most size toasts.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{size: size, now: time.Now}
}

// SendAlert appends a toast, evicting the oldest when full.
func (f *Feed) SendAlert(_ context.Context, level, title, message string) error {
	toast := Toast{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: message,
		Time:    f.now(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, toast)
	if over := len(f.toasts) - f.size; over > 0 {
		f.toasts = append([]Toast(nil), f.toasts[over:]...)
	}
	return nil
}

// IsEnabled always returns true.
func (f *Feed) IsEnabled() bool { return true }

// List returns the toasts newest first.
func (f *Feed) List() []Toast {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Toast, len(f.toasts))
	for i, t := range f.toasts {
		out[len(f.toasts)-1-i] = t
	}
	return out
}

// Clear drops all toasts.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = nil
}

// Multi fans alerts out to every enabled notifier.
type Multi []interfaces.Notifier

// SendAlert delivers to each enabled notifier. Every notifier is tried;
// failures are joined into one error.
func (m Multi) SendAlert(ctx context.Context, level, title, message string) error {
	var errs []error
	for _, n := range m {
		if n == nil || !n.IsEnabled() {
			continue
		}
		if err := n.SendAlert(ctx, level, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.NewNotificationError("multi", stderrors.Join(errs...))
}

// IsEnabled reports whether any notifier is enabled.
func (m Multi) IsEnabled() bool {
	for _, n := range m {
		if n != nil && n.IsEnabled() {
			return true
		}
	}
	return false
}
