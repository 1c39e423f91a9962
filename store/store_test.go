// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package store

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/SP4567/smart-home-whisper/connection"
	"github.com/SP4567/smart-home-whisper/device"
	"github.com/SP4567/smart-home-whisper/discovery"
	"github.com/SP4567/smart-home-whisper/dispatch"
	"github.com/SP4567/smart-home-whisper/pkg/errors"
	"github.com/SP4567/smart-home-whisper/pkg/interfaces"
	"github.com/SP4567/smart-home-whisper/pkg/notifications"
	"github.com/SP4567/smart-home-whisper/pkg/sim"
)

// staticDiscoverer returns a fixed scan result.
type staticDiscoverer struct {
	found []device.Candidate
	err   error
}

func (d staticDiscoverer) Scan(context.Context) ([]device.Candidate, error) {
	return d.found, d.err
}

// blockingDiscoverer holds every scan until release is closed.
type blockingDiscoverer struct {
	started chan struct{}
	release chan struct{}
}

func (d *blockingDiscoverer) Scan(ctx context.Context) ([]device.Candidate, error) {
	d.started <- struct{}{}
	select {
	case <-d.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fixedClock reports a constant time and fires timers immediately.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func (c fixedClock) After(time.Duration) <-chan time.Time {
	return sim.Instant{}.After(0)
}

// gateCall is one request held by gateLink.
type gateCall struct {
	name   string
	params map[string]any
	reply  chan bool
}

// gateLink blocks every request until the test replies.
type gateLink struct {
	calls chan gateCall
}

func newGateLink() *gateLink {
	return &gateLink{calls: make(chan gateCall)}
}

func (g *gateLink) SendCommand(_ context.Context, _, name string, params map[string]any) (bool, error) {
	call := gateCall{name: name, params: params, reply: make(chan bool)}
	g.calls <- call
	return <-call.reply, nil
}

func (g *gateLink) Connect(_ context.Context, c device.Candidate) (*device.Device, error) {
	call := gateCall{name: "connect", reply: make(chan bool)}
	g.calls <- call
	if !<-call.reply {
		return nil, errors.NewConnectionError("connect", c.ID, c.Label(), errors.ErrConnectRejected)
	}
	return connection.Promote(c, time.Now()), nil
}

func (g *gateLink) Disconnect(_ context.Context, id string) error {
	call := gateCall{name: "disconnect", reply: make(chan bool)}
	g.calls <- call
	if !<-call.reply {
		return errors.NewConnectionError("disconnect", id, id, nil)
	}
	return nil
}

func testLight() *device.Device {
	return &device.Device{
		ID: "light-1", Name: "Test Light", Type: device.TypeLight, Room: "Living Room",
		IsOn: false, IsConnected: true, Status: device.StatusOnline,
		ConnectionType: device.ConnectionWiFi, IPAddress: "192.168.1.10",
		Attributes: device.LightAttributes{Brightness: 50, Color: "#ffffff"},
	}
}

func testLock() *device.Device {
	return &device.Device{
		ID: "lock-1", Name: "Back Door", Type: device.TypeLock, Room: "Hallway",
		IsOn: true, IsConnected: true, Status: device.StatusOnline,
		ConnectionType: device.ConnectionBluetooth, MACAddress: "AA:BB:CC:DD:EE:FF",
		Attributes: device.LockAttributes{Locked: true},
	}
}

type StoreTestSuite struct {
	suite.Suite
	ctx  context.Context
	feed *notifications.Feed
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.feed = notifications.NewFeed(20)
}

// newStore builds a store over instant simulators. link defaults to a
// connection simulator rolling chance.
func (s *StoreTestSuite) newStore(disc interfaces.Discoverer, link dispatch.Link, chance sim.Chance, devices ...*device.Device) *Store {
	if link == nil {
		link = connection.NewSimulator(connection.DefaultConfig(), sim.Instant{}, chance)
	}
	if disc == nil {
		disc = discovery.NewSimulator(discovery.DefaultSimulatorConfig(), sim.Instant{}, sim.Always{})
	}
	if devices == nil {
		devices = []*device.Device{}
	}
	st, err := New(Options{
		Discoverer: disc,
		Dispatcher: dispatch.New(link, dispatch.DefaultConfig()),
		Notifier:   s.feed,
		Clock:      sim.Instant{},
		Devices:    devices,
	})
	s.Require().NoError(err)
	return st
}

func (s *StoreTestSuite) lastToast() notifications.Toast {
	toasts := s.feed.List()
	s.Require().NotEmpty(toasts)
	return toasts[0]
}

func (s *StoreTestSuite) TestNew_DefaultsToSeed() {
	st, err := New(Options{
		Discoverer: staticDiscoverer{},
		Dispatcher: dispatch.New(connection.NewSimulator(connection.DefaultConfig(), sim.Instant{}, sim.Always{}), dispatch.DefaultConfig()),
	})
	s.Require().NoError(err)
	s.Len(st.Devices(), len(device.Seed()))
}

func (s *StoreTestSuite) TestNew_RejectsBadInitialDevices() {
	disp := dispatch.New(connection.NewSimulator(connection.DefaultConfig(), sim.Instant{}, sim.Always{}), dispatch.DefaultConfig())

	_, err := New(Options{Discoverer: staticDiscoverer{}, Dispatcher: disp, Devices: []*device.Device{testLight(), testLight()}})
	s.ErrorIs(err, errors.ErrDeviceExists)

	broken := testLight()
	broken.Attributes = device.LockAttributes{Locked: true}
	_, err = New(Options{Discoverer: staticDiscoverer{}, Dispatcher: disp, Devices: []*device.Device{broken}})
	s.True(errors.IsValidationError(err))

	_, err = New(Options{Dispatcher: disp})
	s.True(errors.IsConfigError(err))
}

func (s *StoreTestSuite) TestToggle_Idempotent() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())
	before, _ := st.Device("light-1")

	s.Require().NoError(st.ToggleDevice(s.ctx, "light-1"))
	mid, _ := st.Device("light-1")
	s.True(mid.IsOn)

	s.Require().NoError(st.ToggleDevice(s.ctx, "light-1"))
	after, _ := st.Device("light-1")
	s.Equal(before, after)
}

func (s *StoreTestSuite) TestToggleThenUpdate() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())

	s.Require().NoError(st.ToggleDevice(s.ctx, "light-1"))
	d, _ := st.Device("light-1")
	s.True(d.IsOn)
	s.Equal(50, d.Attributes.(device.LightAttributes).Brightness)

	s.Require().NoError(st.UpdateDeviceData(s.ctx, "light-1", device.Patch{Brightness: device.Ptr(80)}))
	d, _ = st.Device("light-1")
	s.True(d.IsOn)
	s.Equal(device.LightAttributes{Brightness: 80, Color: "#ffffff"}, d.Attributes)
}

func (s *StoreTestSuite) TestUpdate_MergeKeepsOtherKeys() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())

	s.Require().NoError(st.UpdateDeviceData(s.ctx, "light-1", device.Patch{Brightness: device.Ptr(10)}))
	d, _ := st.Device("light-1")
	s.Equal(device.LightAttributes{Brightness: 10, Color: "#ffffff"}, d.Attributes)
}

func (s *StoreTestSuite) TestUpdate_EmptyPatchIsNoop() {
	st := s.newStore(nil, nil, sim.Never{}, testLight())
	version := st.Snapshot().Version

	s.NoError(st.UpdateDeviceData(s.ctx, "light-1", device.Patch{}))
	s.Equal(version, st.Snapshot().Version)
	s.ErrorIs(st.UpdateDeviceData(s.ctx, "missing", device.Patch{}), errors.ErrDeviceNotFound)
}

func (s *StoreTestSuite) TestUpdate_ThermostatTakesAnyTemperature() {
	thermostat := &device.Device{
		ID: "thermostat-1", Name: "Hall Thermostat", Type: device.TypeThermostat, Room: "Hallway",
		IsOn: true, IsConnected: true, Status: device.StatusOnline,
		ConnectionType: device.ConnectionWiFi, IPAddress: "192.168.1.20",
		Attributes: device.ThermostatAttributes{Temperature: 72},
	}
	st := s.newStore(nil, nil, sim.Always{}, thermostat)

	for _, temp := range []int{100, 32} {
		s.Require().NoError(st.UpdateDeviceData(s.ctx, "thermostat-1", device.Patch{Temperature: device.Ptr(temp)}))
		d, _ := st.Device("thermostat-1")
		s.Equal(device.ThermostatAttributes{Temperature: temp}, d.Attributes)
	}
}

func (s *StoreTestSuite) TestUpdate_RejectsForeignAttribute() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())
	before, _ := st.Device("light-1")

	err := st.UpdateDeviceData(s.ctx, "light-1", device.Patch{Locked: device.Ptr(true)})
	s.ErrorIs(err, errors.ErrInvalidAttribute)

	after, _ := st.Device("light-1")
	s.Same(before, after)
}

func (s *StoreTestSuite) TestCommandFailure_CommitsNothing() {
	st := s.newStore(nil, nil, sim.Never{}, testLight())
	before, _ := st.Device("light-1")

	err := st.ToggleDevice(s.ctx, "light-1")
	s.True(errors.IsCommandError(err))
	s.ErrorIs(err, errors.ErrCommandRejected)

	err = st.UpdateDeviceData(s.ctx, "light-1", device.Patch{Brightness: device.Ptr(5)})
	s.True(errors.IsCommandError(err))

	after, _ := st.Device("light-1")
	s.Same(before, after)
	s.Error(st.Err())
	s.NotEmpty(st.Snapshot().Error)

	toast := s.lastToast()
	s.Equal(notifications.TitleCommandFailed, toast.Title)
	s.Equal(interfaces.LevelDanger, toast.Level)
}

func (s *StoreTestSuite) TestCommand_OfflineDeviceFailsFast() {
	offline := testLight().Offline()
	st := s.newStore(nil, nil, sim.Always{}, offline)

	err := st.ToggleDevice(s.ctx, "light-1")
	s.ErrorIs(err, errors.ErrDeviceOffline)

	d, _ := st.Device("light-1")
	s.False(d.IsOn)
}

func (s *StoreTestSuite) TestUnknownID() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())
	version := st.Snapshot().Version

	s.ErrorIs(st.ToggleDevice(s.ctx, "nope"), errors.ErrDeviceNotFound)
	s.ErrorIs(st.UpdateDeviceData(s.ctx, "nope", device.Patch{Brightness: device.Ptr(1)}), errors.ErrDeviceNotFound)
	s.ErrorIs(st.ConnectToDevice(s.ctx, "nope"), errors.ErrDeviceNotFound)
	s.ErrorIs(st.DisconnectFromDevice(s.ctx, "nope"), errors.ErrDeviceNotFound)
	_, err := st.ConnectToNewDevice(s.ctx, "nope")
	s.ErrorIs(err, errors.ErrDeviceNotFound)
	s.NoError(st.RemoveDevice(s.ctx, "nope"))

	s.Equal(version, st.Snapshot().Version)
	s.NoError(st.Err())
	s.Empty(s.feed.List())
}

func (s *StoreTestSuite) TestAddDevice() {
	st := s.newStore(nil, nil, sim.Always{})

	d, err := st.AddDevice(s.ctx, device.Input{
		Name:           "Desk Lamp",
		Type:           device.TypeLight,
		ConnectionType: device.ConnectionWiFi,
		IPAddress:      "192.168.1.50",
		Data:           &device.Patch{Brightness: device.Ptr(30)},
	})
	s.Require().NoError(err)
	s.Contains(d.ID, "light-")
	s.Equal(device.DefaultRoom, d.Room)
	s.True(d.IsConnected)
	s.Equal(device.StatusOnline, d.Status)
	s.Equal(30, d.Attributes.(device.LightAttributes).Brightness)
	s.Len(st.Devices(), 1)
}

func (s *StoreTestSuite) TestAddDevice_IDs() {
	disp := dispatch.New(connection.NewSimulator(connection.DefaultConfig(), sim.Instant{}, sim.Always{}), dispatch.DefaultConfig())
	st, err := New(Options{
		Discoverer: staticDiscoverer{},
		Dispatcher: disp,
		Clock:      fixedClock{t: time.UnixMilli(1700000000000)},
		Devices:    []*device.Device{},
	})
	s.Require().NoError(err)

	in := device.Input{Name: "Speaker", Type: device.TypeSpeaker, ConnectionType: device.ConnectionBluetooth}
	first, err := st.AddDevice(s.ctx, in)
	s.Require().NoError(err)
	second, err := st.AddDevice(s.ctx, in)
	s.Require().NoError(err)

	s.Equal("speaker-1700000000000", first.ID)
	s.NotEqual(first.ID, second.ID)

	in.ID = first.ID
	_, err = st.AddDevice(s.ctx, in)
	s.ErrorIs(err, errors.ErrDeviceExists)

	_, err = st.AddDevice(s.ctx, device.Input{Name: "", Type: device.TypeSpeaker, ConnectionType: device.ConnectionWiFi})
	s.True(errors.IsValidationError(err))
	s.Len(st.Devices(), 2)
}

func (s *StoreTestSuite) TestRemoveDevice() {
	st := s.newStore(nil, nil, sim.Always{}, testLight(), testLock())

	s.NoError(st.RemoveDevice(s.ctx, "light-1"))
	s.Len(st.Devices(), 1)
	s.NoError(st.RemoveDevice(s.ctx, "light-1"))
	s.Len(st.Devices(), 1)
}

func (s *StoreTestSuite) TestDisconnect_SetsPairTogether() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())

	s.Require().NoError(st.DisconnectFromDevice(s.ctx, "light-1"))
	d, _ := st.Device("light-1")
	s.False(d.IsConnected)
	s.Equal(device.StatusOffline, d.Status)
	s.Equal(notifications.TitleDeviceDisconnected, s.lastToast().Title)

	// Already offline: nothing to do.
	version := st.Snapshot().Version
	s.NoError(st.DisconnectFromDevice(s.ctx, "light-1"))
	s.Equal(version, st.Snapshot().Version)
}

func (s *StoreTestSuite) TestReconnect() {
	st := s.newStore(nil, nil, sim.Always{}, testLight().Offline())

	s.Require().NoError(st.ConnectToDevice(s.ctx, "light-1"))
	d, _ := st.Device("light-1")
	s.True(d.IsConnected)
	s.Equal(device.StatusOnline, d.Status)
	s.Equal(device.LightAttributes{Brightness: 50, Color: "#ffffff"}, d.Attributes)
	s.Equal(notifications.TitleDeviceConnected, s.lastToast().Title)
}

func (s *StoreTestSuite) TestReconnect_FailureMarksError() {
	st := s.newStore(nil, nil, sim.Never{}, testLight().Offline())

	err := st.ConnectToDevice(s.ctx, "light-1")
	s.True(errors.IsConnectionError(err))

	d, _ := st.Device("light-1")
	s.False(d.IsConnected)
	s.Equal(device.StatusError, d.Status)
	s.Equal(notifications.TitleConnectionFailed, s.lastToast().Title)
}

func (s *StoreTestSuite) TestDevicesByRoom() {
	st := s.newStore(nil, nil, sim.Always{}, testLight(), testLock())

	s.Len(st.DevicesByRoom("living room"), 1)
	s.Len(st.DevicesByRoom("HALLWAY"), 1)
	s.Empty(st.DevicesByRoom("Garage"))
}

func (s *StoreTestSuite) TestScan_DedupByMAC() {
	disc := staticDiscoverer{found: []device.Candidate{{
		ID: "lock-99", Name: "Test Lock", Type: device.TypeLock,
		ConnectionType: device.ConnectionBluetooth, MACAddress: "aa:bb:cc:dd:ee:ff",
	}}}
	st := s.newStore(disc, nil, sim.Always{}, testLock())

	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	s.Empty(st.ScanResults())
}

func (s *StoreTestSuite) TestScan_DedupByIDAndWithinPass() {
	disc := staticDiscoverer{found: []device.Candidate{
		{ID: "light-1", Name: "Same ID", Type: device.TypeLight, ConnectionType: device.ConnectionWiFi},
		{ID: "bulb-2", Name: "Same IP", Type: device.TypeLight, ConnectionType: device.ConnectionWiFi, IPAddress: "192.168.1.10"},
		{ID: "bulb-3", Name: "Fresh", Type: device.TypeLight, ConnectionType: device.ConnectionWiFi, IPAddress: "192.168.1.30"},
		{ID: "bulb-4", Name: "Fresh Again", Type: device.TypeLight, ConnectionType: device.ConnectionWiFi, IPAddress: "192.168.1.30"},
	}}
	st := s.newStore(disc, nil, sim.Always{}, testLight())

	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	results := st.ScanResults()
	s.Require().Len(results, 1)
	s.Equal("bulb-3", results[0].ID)

	for _, c := range results {
		for _, d := range st.Devices() {
			s.False(d.Matches(c), "scan result %s matches registered %s", c.Key(), d.ID)
		}
	}
}

func (s *StoreTestSuite) TestScan_ClearsPreviousResults() {
	sched := discovery.NewSimulator(discovery.DefaultSimulatorConfig(), sim.Instant{}, sim.NewSequence(true, true, true, true, true, true, false))
	st := s.newStore(sched, nil, sim.Always{})

	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	s.Len(st.ScanResults(), len(device.DiscoveryPool()))

	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	s.Empty(st.ScanResults())
}

func (s *StoreTestSuite) TestScan_Failure() {
	st := s.newStore(staticDiscoverer{err: stderrors.New("radio busy")}, nil, sim.Always{}, testLight())
	devices := st.Devices()

	err := st.ScanForNewDevices(s.ctx)
	s.True(errors.IsScanError(err))
	s.False(st.IsScanning())
	s.Empty(st.ScanResults())
	s.Equal(devices, st.Devices())
	s.Error(st.Err())
	s.Equal(notifications.TitleScanFailed, s.lastToast().Title)
}

func (s *StoreTestSuite) TestScan_InProgress() {
	disc := &blockingDiscoverer{started: make(chan struct{}), release: make(chan struct{})}
	st := s.newStore(disc, nil, sim.Always{})

	done := make(chan error, 1)
	go func() { done <- st.ScanForNewDevices(s.ctx) }()
	<-disc.started

	s.True(st.IsScanning())
	s.True(st.Snapshot().IsScanning)
	s.ErrorIs(st.ScanForNewDevices(s.ctx), errors.ErrScanInProgress)

	close(disc.release)
	s.NoError(<-done)
	s.False(st.IsScanning())
}

func (s *StoreTestSuite) TestConnectToNewDevice_Promotes() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())
	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	before := len(st.ScanResults())

	d, err := st.ConnectToNewDevice(s.ctx, "lock-front-01")
	s.Require().NoError(err)
	s.Equal("lock-front-01", d.ID)
	s.True(d.IsConnected)
	s.Equal(device.StatusOnline, d.Status)

	s.Len(st.ScanResults(), before-1)
	s.Len(st.Devices(), 2)
	registered, err := st.Device("lock-front-01")
	s.Require().NoError(err)
	s.Same(d, registered)
	s.Equal(notifications.TitleDeviceConnected, s.lastToast().Title)

	_, err = st.ConnectToNewDevice(s.ctx, "lock-front-01")
	s.ErrorIs(err, errors.ErrDeviceNotFound)
	s.Len(st.Devices(), 2)
}

func (s *StoreTestSuite) TestConnectToNewDevice_WithoutID() {
	st := s.newStore(nil, nil, sim.Always{})
	s.Require().NoError(st.ScanForNewDevices(s.ctx))

	var key string
	for _, c := range st.ScanResults() {
		if c.Name == "Smart Lock" {
			key = c.Key()
		}
	}
	s.Require().NotEmpty(key)

	d, err := st.ConnectToNewDevice(s.ctx, key)
	s.Require().NoError(err)
	s.Contains(d.ID, "lock-")
	s.Equal("AA:BB:CC:DD:EE:FF", d.MACAddress)
	s.Equal(device.LockAttributes{Locked: true}, d.Attributes)
}

func (s *StoreTestSuite) TestConnectToNewDevice_Failure() {
	st := s.newStore(nil, nil, sim.Never{})
	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	results := st.ScanResults()

	_, err := st.ConnectToNewDevice(s.ctx, "therm-bed-01")
	s.True(errors.IsConnectionError(err))

	s.Equal(results, st.ScanResults())
	s.Empty(st.Devices())
	s.Error(st.Err())

	toast := s.lastToast()
	s.Equal(notifications.TitleConnectionFailed, toast.Title)
	s.Contains(toast.Message, "Bedroom Thermostat")
}

func (s *StoreTestSuite) TestConnectToNewDevice_DuplicateIsPending() {
	link := newGateLink()
	st := s.newStore(nil, link, nil)
	s.Require().NoError(st.ScanForNewDevices(s.ctx))

	done := make(chan error, 1)
	go func() {
		_, err := st.ConnectToNewDevice(s.ctx, "light-living-01")
		done <- err
	}()
	call := <-link.calls

	s.True(st.Pending("light-living-01"))
	s.Contains(st.Snapshot().Pending, "light-living-01")
	_, err := st.ConnectToNewDevice(s.ctx, "light-living-01")
	s.ErrorIs(err, errors.ErrOperationPending)

	// A scan while connecting must not offer the candidate twice.
	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	for _, c := range st.ScanResults() {
		s.NotEqual("light-living-01", c.Key())
	}

	call.reply <- true
	s.NoError(<-done)
	s.False(st.Pending("light-living-01"))

	count := 0
	for _, d := range st.Devices() {
		if d.ID == "light-living-01" {
			count++
		}
	}
	s.Equal(1, count)
}

func (s *StoreTestSuite) TestConnectToNewDevice_FailureAfterRescanKeepsCandidate() {
	link := newGateLink()
	st := s.newStore(nil, link, nil)
	s.Require().NoError(st.ScanForNewDevices(s.ctx))

	done := make(chan error, 1)
	go func() {
		_, err := st.ConnectToNewDevice(s.ctx, "light-living-01")
		done <- err
	}()
	call := <-link.calls

	s.Require().NoError(st.ScanForNewDevices(s.ctx))
	_, ok := findCandidate(st.ScanResults(), "light-living-01")
	s.False(ok)

	call.reply <- false
	s.True(errors.IsConnectionError(<-done))

	c, ok := findCandidate(st.ScanResults(), "light-living-01")
	s.Require().True(ok)
	s.Equal("Living Room Light", c.Name)
	s.Empty(st.Devices())
	s.Equal(len(device.DiscoveryPool()), len(st.ScanResults()))

	// Retrying after the failure goes through.
	go func() {
		_, err := st.ConnectToNewDevice(s.ctx, "light-living-01")
		done <- err
	}()
	(<-link.calls).reply <- true
	s.NoError(<-done)
	s.Len(st.Devices(), 1)
}

func (s *StoreTestSuite) TestConnectToDevice_RemovedWhileConnecting() {
	link := newGateLink()
	st := s.newStore(nil, link, nil, testLock().Offline())

	done := make(chan error, 1)
	go func() { done <- st.ConnectToDevice(s.ctx, "lock-1") }()
	call := <-link.calls

	s.Require().NoError(st.RemoveDevice(s.ctx, "lock-1"))
	call.reply <- true

	s.ErrorIs(<-done, errors.ErrDeviceNotFound)
	s.Empty(st.Devices())
	for _, t := range s.feed.List() {
		s.NotEqual(notifications.TitleDeviceConnected, t.Title)
	}
}

func (s *StoreTestSuite) TestCommands_CommitInCompletionOrder() {
	link := newGateLink()
	st := s.newStore(nil, link, nil, testLight())

	var wg sync.WaitGroup
	update := func(v int) {
		defer wg.Done()
		s.NoError(st.UpdateDeviceData(s.ctx, "light-1", device.Patch{Brightness: device.Ptr(v)}))
	}

	wg.Add(1)
	go update(10)
	first := <-link.calls
	s.True(st.Pending("light-1"))

	wg.Add(1)
	go update(20)
	second := <-link.calls

	second.reply <- true
	s.Eventually(func() bool {
		d, _ := st.Device("light-1")
		return d.Attributes.(device.LightAttributes).Brightness == 20
	}, time.Second, time.Millisecond)

	first.reply <- true
	wg.Wait()

	d, _ := st.Device("light-1")
	s.Equal(10, d.Attributes.(device.LightAttributes).Brightness)
	s.False(st.Pending("light-1"))
}

func (s *StoreTestSuite) TestDisconnect_DuplicateIsPending() {
	link := newGateLink()
	st := s.newStore(nil, link, nil, testLight())

	done := make(chan error, 1)
	go func() { done <- st.DisconnectFromDevice(s.ctx, "light-1") }()
	call := <-link.calls
	s.Equal("disconnect", call.name)

	s.ErrorIs(st.DisconnectFromDevice(s.ctx, "light-1"), errors.ErrOperationPending)

	call.reply <- true
	s.NoError(<-done)
}

func (s *StoreTestSuite) TestCancelledCommand_CommitsNothing() {
	cfg := connection.DefaultConfig()
	cfg.CommandDelay = time.Hour
	link := connection.NewSimulator(cfg, sim.RealClock{}, sim.Always{})
	st := s.newStore(nil, link, nil, testLight())
	before, _ := st.Device("light-1")

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	err := st.ToggleDevice(ctx, "light-1")
	s.ErrorIs(err, context.Canceled)

	after, _ := st.Device("light-1")
	s.Same(before, after)
	s.NoError(st.Err())
	s.Empty(s.feed.List())
}

func (s *StoreTestSuite) TestRefreshDevices() {
	disc := staticDiscoverer{found: []device.Candidate{
		{ID: "light-1", Name: "Already Here", Type: device.TypeLight, ConnectionType: device.ConnectionWiFi},
		{ID: "cam-7", Name: "Garage Camera", Type: device.TypeCamera, ConnectionType: device.ConnectionWiFi, IPAddress: "192.168.1.77"},
	}}
	st := s.newStore(disc, nil, sim.Always{}, testLight(), testLock().Offline())

	s.Require().NoError(st.RefreshDevices(s.ctx))
	s.False(st.IsLoading())

	devices := st.Devices()
	s.Require().Len(devices, 2)
	s.Equal("light-1", devices[0].ID)
	s.Equal("cam-7", devices[1].ID)
	s.False(devices[1].IsConnected)
	s.Equal(device.StatusOffline, devices[1].Status)

	_, err := st.Device("lock-1")
	s.ErrorIs(err, errors.ErrDeviceNotFound)
}

func (s *StoreTestSuite) TestRefreshDevices_KeepsDeviceBeingConnected() {
	link := newGateLink()
	st := s.newStore(staticDiscoverer{}, link, nil, testLock().Offline())

	done := make(chan error, 1)
	go func() { done <- st.ConnectToDevice(s.ctx, "lock-1") }()
	call := <-link.calls

	s.Require().NoError(st.RefreshDevices(s.ctx))
	s.Len(st.Devices(), 1)

	call.reply <- true
	s.NoError(<-done)

	d, err := st.Device("lock-1")
	s.Require().NoError(err)
	s.True(d.IsConnected)
	s.Equal(device.StatusOnline, d.Status)
}

func (s *StoreTestSuite) TestRefreshDevices_Failure() {
	st := s.newStore(staticDiscoverer{err: stderrors.New("no route")}, nil, sim.Always{}, testLight())

	err := st.RefreshDevices(s.ctx)
	s.True(errors.IsScanError(err))
	s.Len(st.Devices(), 1)
	s.False(st.IsLoading())
	s.Error(st.Err())

	st.ClearError()
	s.NoError(st.Err())
}

func (s *StoreTestSuite) TestSubscribe() {
	st := s.newStore(nil, nil, sim.Always{}, testLight(), testLock())

	ch, unsubscribe := st.Subscribe(16)
	initial := <-ch
	s.Len(initial.Devices, 2)

	s.Require().NoError(st.ToggleDevice(s.ctx, "light-1"))

	var last Snapshot
	for len(ch) > 0 {
		last = <-ch
	}
	s.Greater(last.Version, initial.Version)
	s.True(last.Device("light-1").IsOn)
	s.False(initial.Device("light-1").IsOn)

	// Untouched devices are shared between snapshots.
	s.Same(initial.Device("lock-1"), last.Device("lock-1"))

	unsubscribe()
	_, open := <-ch
	s.False(open)
	unsubscribe()
}

func (s *StoreTestSuite) TestSubscribe_SlowSubscriberDoesNotBlock() {
	st := s.newStore(nil, nil, sim.Always{}, testLight())
	ch, unsubscribe := st.Subscribe(1)
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		s.Require().NoError(st.ToggleDevice(s.ctx, "light-1"))
	}
	s.Len(ch, 1)
}

func (s *StoreTestSuite) TestClose() {
	st := s.newStore(nil, nil, sim.Always{})
	ch, _ := st.Subscribe(4)
	<-ch

	st.Close()
	_, open := <-ch
	s.False(open)

	late, _ := st.Subscribe(1)
	_, open = <-late
	s.False(open)
}

func TestSnapshot_Device(t *testing.T) {
	snap := Snapshot{Devices: []*device.Device{testLight()}}
	require.NotNil(t, snap.Device("light-1"))
	assert.Nil(t, snap.Device("missing"))
}

func findCandidate(results []device.Candidate, key string) (device.Candidate, bool) {
	for _, c := range results {
		if c.Key() == key {
			return c, true
		}
	}
	return device.Candidate{}, false
}
