// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package store owns the device registry and the transient scan results.
//
// All mutation goes through Store methods. Operations that talk to a device
// (toggle, attribute update, connect, disconnect) run through a Dispatcher
// and only change local state once the device has acknowledged the request.
// Every change publishes a new Snapshot; devices are immutable, so unchanged
// devices are shared between consecutive snapshots.
//
// The store never holds its lock while waiting on a device or a scan. Busy
// flags (IsScanning, IsLoading and the per-id Pending set) let callers
// disable duplicate triggers while an operation is suspended.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SP4567/smart-home-whisper/connection"
	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/dispatch"
	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/interfaces"
	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/metrics"
	"github.com/SP4567/smart-home-whisper/pkg/notifications"
	"github.com/SP4567/smart-home-whisper/pkg/sim"
)

// Dispatcher gates local changes behind a device round trip.
// *dispatch.Dispatcher is the stock implementation.
type Dispatcher interface {
	Execute(ctx context.Context, cmd dispatch.Command, commit func()) error
	Connect(ctx context.Context, c device.Candidate, commit func(*device.Device)) (*device.Device, error)
	Disconnect(ctx context.Context, id, name string, commit func()) error
}

// Options configures a Store.
type Options struct {
	Discoverer interfaces.Discoverer
	Dispatcher Dispatcher
	Notifier   interfaces.Notifier // optional
	Clock      sim.Clock           // defaults to sim.RealClock

	// Devices is the initial registry. Nil means device.Seed(); pass an
	// empty slice for an empty registry.
	Devices []*device.Device
}

// Snapshot is an immutable view of the store at one point in time.
type Snapshot struct {
	Devices     []*device.Device   `json:"devices"`
	ScanResults []device.Candidate `json:"scanResults"`
	IsScanning  bool               `json:"isScanning"`
	IsLoading   bool               `json:"isLoading"`
	Pending     []string           `json:"pending"`
	Error       string             `json:"error,omitempty"`
	Version     uint64             `json:"version"`
}

// Device returns the registered device with id, or nil.
func (s Snapshot) Device(id string) *device.Device {
	for _, d := range s.Devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Store is the device state holder.
type Store struct {
	discoverer interfaces.Discoverer
	dispatcher Dispatcher
	alerts     *notifications.Alerts
	clock      sim.Clock
	log        zerolog.Logger

	mu          sync.RWMutex
	devices     []*device.Device
	scanResults []device.Candidate
	scanning    bool
	loading     bool
	pending     map[string]int  // in-flight operations per device id or candidate key
	exclusive   map[string]bool // connect/disconnect in flight
	lastErr     error
	version     uint64

	subs    map[int]chan Snapshot
	nextSub int
	closed  bool
}

// New creates a store. Initial devices are validated and must have unique
// IDs.
func New(opts Options) (*Store, error) {
	if opts.Discoverer == nil {
		return nil, errors.NewConfigError("discoverer", "", errors.ErrInvalidConfig)
	}
	if opts.Dispatcher == nil {
		return nil, errors.NewConfigError("dispatcher", "", errors.ErrInvalidConfig)
	}
	if opts.Clock == nil {
		opts.Clock = sim.RealClock{}
	}

	initial := opts.Devices
	if initial == nil {
		initial = device.Seed()
	}
	devices := make([]*device.Device, 0, len(initial))
	seen := make(map[string]bool, len(initial))
	for _, d := range initial {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("initial device %q: %w", d.ID, err)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("initial device %q: %w", d.ID, errors.ErrDeviceExists)
		}
		seen[d.ID] = true
		devices = append(devices, d.Clone())
	}

	s := &Store{
		discoverer: opts.Discoverer,
		dispatcher: opts.Dispatcher,
		alerts:     notifications.NewAlerts(opts.Notifier),
		clock:      opts.Clock,
		log:        logger.Component("store"),
		devices:    devices,
		pending:    make(map[string]int),
		exclusive:  make(map[string]bool),
		subs:       make(map[int]chan Snapshot),
	}
	s.updateGauges()
	return s, nil
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Device returns the registered device with id.
func (s *Store) Device(id string) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.devices[i], nil
	}
	return nil, errors.ErrDeviceNotFound
}

// Devices returns the registry in insertion order.
func (s *Store) Devices() []*device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*device.Device(nil), s.devices...)
}

// DevicesByRoom returns the devices in room, compared case-insensitively.
func (s *Store) DevicesByRoom(room string) []*device.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*device.Device
	for _, d := range s.devices {
		if strings.EqualFold(d.Room, room) {
			out = append(out, d)
		}
	}
	return out
}

// ScanResults returns the candidates found by the last scan that are not
// registered.
func (s *Store) ScanResults() []device.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]device.Candidate(nil), s.scanResults...)
}

// IsScanning reports whether ScanForNewDevices is running.
func (s *Store) IsScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// IsLoading reports whether RefreshDevices is running.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Pending reports whether any operation on id (a device ID or candidate key)
// is in flight.
func (s *Store) Pending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[id] > 0
}

// Err returns the most recent operation failure, or nil.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError resets the error state.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return
	}
	s.lastErr = nil
	s.publishLocked()
}

// ToggleDevice flips the power state of a connected device once the device
// acknowledges the power command.
func (s *Store) ToggleDevice(ctx context.Context, id string) error {
	d, err := s.commandTarget(ctx, id, dispatch.CommandPower)
	if err != nil {
		return err
	}

	on := !d.IsOn
	cmd := dispatch.NewCommand(id, dispatch.CommandPower, map[string]any{"on": on})
	return s.runCommand(ctx, d, cmd, func(cur *device.Device) (*device.Device, error) {
		return cur.WithPower(on), nil
	})
}

// UpdateDeviceData merges patch into the device's attributes once the device
// acknowledges it. Keys absent from patch are left untouched; an empty patch
// is a no-op.
func (s *Store) UpdateDeviceData(ctx context.Context, id string, patch device.Patch) error {
	if patch.IsEmpty() {
		_, err := s.Device(id)
		return err
	}

	d, err := s.commandTarget(ctx, id, dispatch.CommandSetAttributes)
	if err != nil {
		return err
	}
	if err := patch.Validate(d.Type); err != nil {
		return err
	}

	cmd := dispatch.NewCommand(id, dispatch.CommandSetAttributes, patch.Params())
	return s.runCommand(ctx, d, cmd, func(cur *device.Device) (*device.Device, error) {
		attrs, err := patch.Apply(cur.Type, cur.Attributes)
		if err != nil {
			return nil, err
		}
		return cur.WithAttributes(attrs), nil
	})
}

// commandTarget looks up a device that can receive a command.
func (s *Store) commandTarget(ctx context.Context, id, command string) (*device.Device, error) {
	d, err := s.Device(id)
	if err != nil {
		return nil, err
	}
	if !d.IsConnected {
		err := errors.NewCommandError(command, id, errors.ErrDeviceOffline)
		s.setError(err)
		s.alerts.CommandFailed(ctx, command, d.Name)
		return nil, err
	}
	return d, nil
}

func (s *Store) runCommand(ctx context.Context, d *device.Device, cmd dispatch.Command, mutate func(*device.Device) (*device.Device, error)) error {
	s.begin(d.ID, false)
	defer s.end(d.ID, false)

	err := s.dispatcher.Execute(ctx, cmd, func() {
		s.commitDevice(d.ID, mutate)
	})
	if err != nil {
		if !cancelled(err) {
			s.setError(err)
			s.alerts.CommandFailed(ctx, cmd.Name, d.Name)
		}
		return err
	}
	return nil
}

// commitDevice applies mutate to the current version of the device. Commits
// land in completion order, so the last acknowledged command wins. A device
// removed in the meantime is left alone.
// It reports whether the device was still registered.
func (s *Store) commitDevice(id string, mutate func(*device.Device) (*device.Device, error)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		s.log.Debug().Str("device_id", id).Msg("Device removed before commit")
		return false
	}
	next, err := mutate(s.devices[i])
	if err != nil {
		s.log.Error().Err(err).Str("device_id", id).Msg("Failed to apply acknowledged change")
		return true
	}
	s.replaceLocked(i, next)
	s.publishLocked()
	return true
}

// AddDevice validates input and registers the resulting device. A missing ID
// is generated from the type and current time, bumped until unique. An
// explicit ID that is already taken returns ErrDeviceExists.
func (s *Store) AddDevice(ctx context.Context, in device.Input) (*device.Device, error) {
	d, err := in.Build(s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ID != "" {
		if s.idTakenLocked(d.ID) {
			return nil, fmt.Errorf("device %q: %w", d.ID, errors.ErrDeviceExists)
		}
	} else {
		d.ID = s.uniqueIDLocked(d.Type, s.clock.Now())
	}

	s.appendLocked(d)
	s.publishLocked()

	s.log.Info().
		Str("device_id", d.ID).
		Str("device_name", d.Name).
		Str("type", string(d.Type)).
		Msg("Device added")
	return d, nil
}

// RemoveDevice drops a device from the registry. Removing an unknown id is a
// no-op.
func (s *Store) RemoveDevice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil
	}
	s.devices = append(append([]*device.Device(nil), s.devices[:i]...), s.devices[i+1:]...)
	s.publishLocked()

	s.log.Info().Str("device_id", id).Msg("Device removed")
	return nil
}

// ConnectToDevice reconnects a registered device. Connecting a device that is
// already connected is a no-op. If the device refuses, it is marked with
// status error and stays disconnected.
func (s *Store) ConnectToDevice(ctx context.Context, id string) error {
	d, err := s.Device(id)
	if err != nil {
		return err
	}
	if d.IsConnected {
		return nil
	}
	if err := s.beginExclusive(id); err != nil {
		return err
	}
	defer s.end(id, true)

	candidate := device.Candidate{
		ID:             d.ID,
		Name:           d.Name,
		Type:           d.Type,
		Room:           d.Room,
		ConnectionType: d.ConnectionType,
		IPAddress:      d.IPAddress,
		MACAddress:     d.MACAddress,
		Attributes:     d.Attributes,
	}
	registered := true
	_, err = s.dispatcher.Connect(ctx, candidate, func(*device.Device) {
		registered = s.commitDevice(id, func(cur *device.Device) (*device.Device, error) {
			return cur.Online(), nil
		})
	})
	if err != nil {
		if cancelled(err) {
			return err
		}
		s.commitDevice(id, func(cur *device.Device) (*device.Device, error) {
			return cur.WithConnection(false, device.StatusError), nil
		})
		s.setError(err)
		s.alerts.ConnectionFailed(ctx, d.Name)
		return err
	}
	if !registered {
		return fmt.Errorf("device %q removed while connecting: %w", id, errors.ErrDeviceNotFound)
	}

	s.alerts.DeviceConnected(ctx, d.Name)
	return nil
}

// DisconnectFromDevice disconnects a registered device, setting it
// disconnected and offline together. A device that is already offline is
// left as is.
func (s *Store) DisconnectFromDevice(ctx context.Context, id string) error {
	d, err := s.Device(id)
	if err != nil {
		return err
	}
	if !d.IsConnected && d.Status == device.StatusOffline {
		return nil
	}
	if err := s.beginExclusive(id); err != nil {
		return err
	}
	defer s.end(id, true)

	err = s.dispatcher.Disconnect(ctx, id, d.Name, func() {
		s.commitDevice(id, func(cur *device.Device) (*device.Device, error) {
			return cur.Offline(), nil
		})
	})
	if err != nil {
		if !cancelled(err) {
			s.setError(err)
			s.alerts.DisconnectFailed(ctx, d.Name)
		}
		return err
	}

	s.alerts.DeviceDisconnected(ctx, d.Name)
	return nil
}

// ScanForNewDevices clears the previous scan results, runs one discovery
// pass and keeps the candidates that match neither a registered device (by
// ID, IP or MAC) nor an earlier candidate of the same pass.
func (s *Store) ScanForNewDevices(ctx context.Context) error {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return errors.ErrScanInProgress
	}
	s.scanning = true
	s.scanResults = nil
	s.publishLocked()
	s.mu.Unlock()

	found, err := s.scan(ctx)

	s.mu.Lock()
	s.scanning = false
	if err != nil {
		if !cancelled(err) {
			s.lastErr = err
		}
		s.publishLocked()
		s.mu.Unlock()

		if !cancelled(err) {
			s.alerts.ScanFailed(ctx, err)
		}
		return err
	}
	s.scanResults = s.reconcileLocked(found)
	s.publishLocked()
	count := len(s.scanResults)
	s.mu.Unlock()

	s.log.Info().
		Int("found", len(found)).
		Int("new", count).
		Msg("Scan complete")
	return nil
}

// ConnectToNewDevice connects the scan result identified by key (see
// device.Candidate.Key). On success the candidate leaves the scan results
// and exactly one device joins the registry. On failure the candidate stays
// so the user can retry.
func (s *Store) ConnectToNewDevice(ctx context.Context, key string) (*device.Device, error) {
	s.mu.RLock()
	candidate, ok := s.candidateLocked(key)
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrDeviceNotFound
	}
	if err := s.beginExclusive(key); err != nil {
		return nil, err
	}
	defer s.end(key, true)

	var added *device.Device
	_, err := s.dispatcher.Connect(ctx, candidate, func(dev *device.Device) {
		added = s.promote(key, dev)
	})
	if err != nil {
		s.restoreCandidate(candidate)
		if !cancelled(err) {
			s.setError(err)
			s.alerts.ConnectionFailed(ctx, candidate.Label())
		}
		return nil, err
	}

	s.alerts.DeviceConnected(ctx, added.Name)
	return added, nil
}

// restoreCandidate puts back a candidate whose connect did not go through.
// A scan that ran during the attempt leaves it out of the results.
func (s *Store) restoreCandidate(c device.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.matchesRegistryLocked(c) {
		return
	}
	for _, existing := range s.scanResults {
		if existing.Matches(c) {
			return
		}
	}
	s.scanResults = append(append([]device.Candidate(nil), s.scanResults...), c)
	s.publishLocked()
}

// promote moves a connected candidate into the registry. If a matching
// device was registered meanwhile, that device is kept instead.
func (s *Store) promote(key string, dev *device.Device) *device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []device.Candidate
	removed := false
	for _, c := range s.scanResults {
		if !removed && c.Key() == key {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	s.scanResults = kept

	probe := device.Candidate{ID: dev.ID, IPAddress: dev.IPAddress, MACAddress: dev.MACAddress}
	for _, existing := range s.devices {
		if existing.Matches(probe) {
			s.publishLocked()
			return existing
		}
	}

	if s.idTakenLocked(dev.ID) {
		dev = dev.Clone()
		dev.ID = s.uniqueIDLocked(dev.Type, s.clock.Now())
	}
	s.appendLocked(dev)
	s.publishLocked()
	return dev
}

// RefreshDevices rebuilds the registry from a discovery pass: connected
// devices and devices with a connect or disconnect in flight are kept, other
// disconnected ones dropped, and discovered devices not already present are
// registered as disconnected.
func (s *Store) RefreshDevices(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return errors.ErrScanInProgress
	}
	s.loading = true
	s.lastErr = nil
	s.publishLocked()
	s.mu.Unlock()

	found, err := s.scan(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		if !cancelled(err) {
			s.lastErr = err
		}
		s.publishLocked()
		s.mu.Unlock()

		if !cancelled(err) {
			s.alerts.ScanFailed(ctx, err)
		}
		return err
	}

	var kept []*device.Device
	for _, d := range s.devices {
		if d.IsConnected || s.exclusive[d.ID] {
			kept = append(kept, d)
		}
	}
	s.devices = kept

	now := s.clock.Now()
	for _, c := range found {
		if s.matchesRegistryLocked(c) {
			continue
		}
		d := connection.Promote(c, now).Offline()
		if s.idTakenLocked(d.ID) {
			d.ID = s.uniqueIDLocked(d.Type, now)
		}
		s.appendLocked(d)
	}
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

func (s *Store) scan(ctx context.Context) ([]device.Candidate, error) {
	metrics.ScansTotal.Inc()
	start := time.Now()

	found, err := s.discoverer.Scan(ctx)
	metrics.ScanDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ScanErrors.Inc()
		if !errors.IsScanError(err) {
			err = errors.NewScanError("scan", err)
		}
		s.log.Warn().Err(err).Msg("Scan failed")
		return nil, err
	}
	return found, nil
}

// reconcileLocked drops candidates that are registered, duplicated within
// the pass or currently being connected.
func (s *Store) reconcileLocked(found []device.Candidate) []device.Candidate {
	var out []device.Candidate
	for _, c := range found {
		if s.matchesRegistryLocked(c) || s.exclusive[c.Key()] {
			continue
		}
		dup := false
		for _, kept := range out {
			if kept.Matches(c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) matchesRegistryLocked(c device.Candidate) bool {
	for _, d := range s.devices {
		if d.Matches(c) {
			return true
		}
	}
	return false
}

func (s *Store) candidateLocked(key string) (device.Candidate, bool) {
	for _, c := range s.scanResults {
		if c.Key() == key {
			return c, true
		}
	}
	return device.Candidate{}, false
}

// Subscribe returns a channel that receives the current snapshot followed by
// one snapshot per change. Delivery never blocks the store: a subscriber
// whose buffer is full misses intermediate snapshots. Call the returned
// function to unsubscribe.
func (s *Store) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends all subscriptions.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	pending := make([]string, 0, len(s.pending))
	for id, n := range s.pending {
		if n > 0 {
			pending = append(pending, id)
		}
	}
	sort.Strings(pending)

	snap := Snapshot{
		Devices:     append([]*device.Device{}, s.devices...),
		ScanResults: append([]device.Candidate{}, s.scanResults...),
		IsScanning:  s.scanning,
		IsLoading:   s.loading,
		Pending:     pending,
		Version:     s.version,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

func (s *Store) publishLocked() {
	s.version++
	s.updateGauges()

	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for id, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			s.log.Debug().Int("subscriber", id).Uint64("version", snap.Version).Msg("Subscriber slow, snapshot dropped")
		}
	}
}

func (s *Store) updateGauges() {
	connected := 0
	for _, d := range s.devices {
		if d.IsConnected {
			connected++
		}
	}
	metrics.RegisteredDevices.Set(float64(len(s.devices)))
	metrics.ConnectedDevices.Set(float64(connected))
	metrics.ScanResults.Set(float64(len(s.scanResults)))
}

func (s *Store) indexLocked(id string) int {
	for i, d := range s.devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// replaceLocked swaps in a new device at i, copying the slice so earlier
// snapshots keep their view.
func (s *Store) replaceLocked(i int, d *device.Device) {
	devices := append([]*device.Device(nil), s.devices...)
	devices[i] = d
	s.devices = devices
}

// appendLocked registers d and drops any scan result it now shadows.
func (s *Store) appendLocked(d *device.Device) {
	s.devices = append(append([]*device.Device(nil), s.devices...), d)

	var kept []device.Candidate
	for _, c := range s.scanResults {
		if !d.Matches(c) {
			kept = append(kept, c)
		}
	}
	s.scanResults = kept
}

func (s *Store) idTakenLocked(id string) bool {
	if s.indexLocked(id) >= 0 {
		return true
	}
	for _, c := range s.scanResults {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) uniqueIDLocked(t device.Type, now time.Time) string {
	id := device.NewID(t, now)
	for n := 1; s.idTakenLocked(id); n++ {
		id = device.NewID(t, now.Add(time.Duration(n)*time.Millisecond))
	}
	return id
}

func (s *Store) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.publishLocked()
}

func (s *Store) begin(id string, exclusive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginLocked(id, exclusive)
}

// beginExclusive marks a connect or disconnect in flight. Only one may run
// per id.
func (s *Store) beginExclusive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exclusive[id] {
		return errors.ErrOperationPending
	}
	s.beginLocked(id, true)
	return nil
}

func (s *Store) beginLocked(id string, exclusive bool) {
	s.pending[id]++
	if exclusive {
		s.exclusive[id] = true
	}
	s.publishLocked()
}

func (s *Store) end(id string, exclusive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[id]--; s.pending[id] <= 0 {
		delete(s.pending, id)
	}
	if exclusive {
		delete(s.exclusive, id)
	}
	s.publishLocked()
}

func cancelled(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
