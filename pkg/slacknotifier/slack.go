// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package slacknotifier forwards hub notifications to Slack via Incoming
// Webhooks.
//
// Each alert becomes one colour-coded attachment. A notifier with an empty
// webhook URL is disabled and silently drops everything, so callers never
// need to check configuration before sending.
//
// # Usage
//
//	notifier := slacknotifier.New("https://hooks.slack.com/services/...")
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	err := notifier.SendAlert(ctx, "danger", "Connection Failed", "Could not connect to Smart Lock")
//	if err != nil {
//	    log.Printf("slack: %v", err)
//	}
package slacknotifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SP4567/smart-home-whisper/pkg/errors"
)

// Footer is stamped on every attachment.
const Footer = "Smart Home Hub"

// Notifier sends notifications to Slack via webhook
type Notifier struct {
	client *http.Client

	mu         sync.RWMutex // Protects webhookURL
	webhookURL string
}

// Message represents a Slack webhook message payload
type Message struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack attachment
type Attachment struct {
	Color  string `json:"color,omitempty"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
}

// New creates a new Slack notifier. An empty URL yields a disabled notifier.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns whether a webhook URL is configured
func (s *Notifier) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.webhookURL != ""
}

// UpdateWebhookURL swaps the webhook, e.g. after a config reload. An empty
// URL disables the notifier.
func (s *Notifier) UpdateWebhookURL(webhookURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = webhookURL
}

// SendMessage sends a plain text message
func (s *Notifier) SendMessage(ctx context.Context, message string) error {
	return s.send(ctx, Message{Text: message})
}

// SendAlert sends a colour-coded attachment
func (s *Notifier) SendAlert(ctx context.Context, level, title, message string) error {
	return s.send(ctx, Message{
		Attachments: []Attachment{
			{
				Color:  levelToColor(level),
				Title:  title,
				Text:   message,
				Footer: Footer,
				Ts:     time.Now().Unix(),
			},
		},
	})
}

func (s *Notifier) send(ctx context.Context, payload Message) error {
	s.mu.RLock()
	url := s.webhookURL
	s.mu.RUnlock()

	if url == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.NewNotificationError("slack", fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.NewNotificationError("slack", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewNotificationError("slack", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.NewNotificationError("slack", fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}

// levelToColor maps notification levels to Slack colours
func levelToColor(level string) string {
	switch level {
	case "danger", "error":
		return "danger" // Red
	case "warning", "warn":
		return "warning" // Yellow
	case "good", "success":
		return "good" // Green
	case "info":
		return "#439FE0" // Blue
	default:
		return "#808080" // Gray
	}
}
