// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SP4567/smart-home-whisper/config"
	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/store"
)

type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []message
	fail bool
}

func (p *recordingPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return ErrNotConnected
	}
	p.msgs = append(p.msgs, message{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (p *recordingPublisher) take() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.msgs
	p.msgs = nil
	return msgs
}

func (p *recordingPublisher) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func lamp(on bool) *device.Device {
	return &device.Device{
		ID: "light-1", Name: "Lamp", Type: device.TypeLight, Room: "Office",
		IsOn: on, IsConnected: true, Status: device.StatusOnline,
		ConnectionType: device.ConnectionWiFi, IPAddress: "192.168.1.10",
		Attributes: device.LightAttributes{Brightness: 50, Color: "#ffffff"},
	}
}

func lock() *device.Device {
	return &device.Device{
		ID: "lock-1", Name: "Door", Type: device.TypeLock, Room: "Hall",
		IsConnected: true, Status: device.StatusOnline,
		ConnectionType: device.ConnectionBluetooth, MACAddress: "AA:BB:CC:DD:EE:FF",
		Attributes: device.LockAttributes{Locked: true},
	}
}

func TestStateTopic(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"smarthome", "smarthome/devices/light-1/state"},
		{"smarthome/", "smarthome/devices/light-1/state"},
		{"home/hub", "home/hub/devices/light-1/state"},
	}

	for _, tt := range tests {
		b := New(&recordingPublisher{}, tt.prefix, 1)
		if got := b.StateTopic("light-1"); got != tt.want {
			t.Errorf("StateTopic() with prefix %q = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestSync_PublishesRetainedState(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub, "smarthome", 1)

	require.NoError(t, b.Sync(store.Snapshot{Devices: []*device.Device{lamp(false), lock()}}))

	msgs := pub.take()
	require.Len(t, msgs, 2)
	assert.Equal(t, "smarthome/devices/light-1/state", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	assert.Equal(t, byte(1), msgs[0].qos)

	var got device.Device
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	assert.Equal(t, *lamp(false), got)
}

func TestSync_OnlyChangedDevices(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub, "smarthome", 0)

	l, k := lamp(false), lock()
	require.NoError(t, b.Sync(store.Snapshot{Devices: []*device.Device{l, k}}))
	pub.take()

	// Same values again: nothing to publish.
	require.NoError(t, b.Sync(store.Snapshot{Devices: []*device.Device{l, k}}))
	assert.Empty(t, pub.take())

	// A replaced device value is republished, the shared one is not.
	require.NoError(t, b.Sync(store.Snapshot{Devices: []*device.Device{l.WithPower(true), k}}))
	msgs := pub.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "smarthome/devices/light-1/state", msgs[0].topic)
	assert.Contains(t, string(msgs[0].payload), `"isOn":true`)
}

func TestSync_RemovalClearsRetained(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub, "smarthome", 1)

	k := lock()
	require.NoError(t, b.Sync(store.Snapshot{Devices: []*device.Device{lamp(false), k}}))
	pub.take()

	require.NoError(t, b.Sync(store.Snapshot{Devices: []*device.Device{k}}))
	msgs := pub.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "smarthome/devices/light-1/state", msgs[0].topic)
	assert.Empty(t, msgs[0].payload)
	assert.True(t, msgs[0].retained)
}

func TestSync_RetriesAfterFailure(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	b := New(pub, "smarthome", 1)
	snap := store.Snapshot{Devices: []*device.Device{lamp(false)}}

	err := b.Sync(snap)
	assert.True(t, errors.Is(err, ErrNotConnected))

	pub.setFail(false)
	require.NoError(t, b.Sync(snap))
	assert.Len(t, pub.take(), 1)
}

func TestRun_SyncsUntilClosed(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub, "smarthome", 1)

	snapshots := make(chan store.Snapshot, 2)
	snapshots <- store.Snapshot{Version: 1, Devices: []*device.Device{lamp(false)}}
	snapshots <- store.Snapshot{Version: 2, Devices: []*device.Device{}}
	close(snapshots)

	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), snapshots, time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}

	msgs := pub.take()
	require.Len(t, msgs, 2)
	assert.NotEmpty(t, msgs[0].payload)
	assert.Empty(t, msgs[1].payload)
}

func TestRun_RetriesWithoutNewSnapshot(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	b := New(pub, "smarthome", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := make(chan store.Snapshot, 1)
	snapshots <- store.Snapshot{Version: 1, Devices: []*device.Device{lamp(false)}}
	go b.Run(ctx, snapshots, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	pub.setFail(false)

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:      "tcp://broker.local:1883",
		ClientID:    "hub-test",
		Username:    "user",
		Password:    "secret",
		TopicPrefix: "smarthome",
		QoS:         1,
	}

	opts := buildClientOptions(cfg)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker.local:1883", opts.Servers[0].Host)
	assert.Equal(t, "hub-test", opts.ClientID)
	assert.Equal(t, "user", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "smarthome/status", opts.WillTopic)
	assert.True(t, opts.WillRetained)
	assert.True(t, strings.Contains(string(opts.WillPayload), `"status":"offline"`))
	assert.True(t, opts.AutoReconnect)
}
