// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package bridge mirrors the device registry onto an MQTT broker.
//
// Each device is published as a retained JSON message at
// <prefix>/devices/<id>/state, so a new subscriber sees the whole registry
// at once. Removing a device clears its retained message. The hub's own
// liveness is published at <prefix>/status.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/metrics"
	"github.com/SP4567/smart-home-whisper/store"
)

// Publisher sends one MQTT message. *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Bridge publishes registry changes. It remembers the last device value it
// published per id and only republishes devices whose value changed.
type Bridge struct {
	pub    Publisher
	prefix string
	qos    byte

	published map[string]*device.Device
}

// New creates a bridge publishing under prefix.
func New(pub Publisher, prefix string, qos byte) *Bridge {
	return &Bridge{
		pub:       pub,
		prefix:    strings.TrimSuffix(prefix, "/"),
		qos:       qos,
		published: make(map[string]*device.Device),
	}
}

// StateTopic returns the retained topic for a device.
func (b *Bridge) StateTopic(id string) string {
	return fmt.Sprintf("%s/devices/%s/state", b.prefix, id)
}

// Sync publishes every device that changed since the last successful sync
// and clears the topics of removed devices. Failed publishes are retried on
// the next sync; the first failure is returned.
func (b *Bridge) Sync(snap store.Snapshot) error {
	var firstErr error
	record := func(err error) {
		if err != nil {
			metrics.MQTTPublishesTotal.WithLabelValues(metrics.ResultFailure).Inc()
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		metrics.MQTTPublishesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	}

	seen := make(map[string]struct{}, len(snap.Devices))
	for _, d := range snap.Devices {
		seen[d.ID] = struct{}{}
		// Snapshots share unchanged device values.
		if prev, ok := b.published[d.ID]; ok && prev == d {
			continue
		}
		payload, err := json.Marshal(d)
		if err != nil {
			record(fmt.Errorf("encode device %q: %w", d.ID, err))
			continue
		}
		err = b.pub.Publish(b.StateTopic(d.ID), payload, b.qos, true)
		record(err)
		if err == nil {
			b.published[d.ID] = d
		}
	}

	for id := range b.published {
		if _, ok := seen[id]; ok {
			continue
		}
		err := b.pub.Publish(b.StateTopic(id), nil, b.qos, true)
		record(err)
		if err == nil {
			delete(b.published, id)
		}
	}
	return firstErr
}

// Run syncs every snapshot received until ctx is done or snapshots closes.
// retry is the delay before retrying a failed sync when no new snapshot
// arrives in the meantime.
func (b *Bridge) Run(ctx context.Context, snapshots <-chan store.Snapshot, retry time.Duration) {
	log := logger.Component("bridge")

	var (
		last    store.Snapshot
		retryC  <-chan time.Time
		pending bool
	)
	flush := func() {
		if err := b.Sync(last); err != nil {
			log.Warn().Err(err).Uint64("version", last.Version).Msg("MQTT sync incomplete")
			pending = true
			retryC = time.After(retry)
			return
		}
		pending = false
		retryC = nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			last = snap
			flush()
		case <-retryC:
			if pending {
				flush()
			}
		}
	}
}
