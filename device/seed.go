// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package device

// Seed returns the demo household the hub starts with. Each call builds
// fresh devices so callers may keep the slice.
func Seed() []*Device {
	devices := []*Device{
		{
			ID: "light-1", Name: "Ceiling Light", Type: TypeLight, Room: "Living Room",
			Status: StatusOnline, IsOn: true, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.101",
			Attributes: LightAttributes{Brightness: 80, Color: "#f5e3cb"},
		},
		{
			ID: "light-2", Name: "Floor Lamp", Type: TypeLight, Room: "Living Room",
			Status: StatusOnline, IsOn: false, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.102",
			Attributes: LightAttributes{Brightness: 60, Color: "#f5e3cb"},
		},
		{
			ID: "thermostat-1", Name: "Main Thermostat", Type: TypeThermostat, Room: "Living Room",
			Status: StatusOnline, IsOn: true, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.103",
			Attributes: ThermostatAttributes{Temperature: 72},
		},
		{
			ID: "lock-1", Name: "Front Door", Type: TypeLock, Room: "Hallway",
			Status: StatusOnline, IsOn: true, ConnectionType: ConnectionBluetooth, MACAddress: "00:11:22:33:44:55",
			Attributes: LockAttributes{Locked: true},
		},
		{
			ID: "camera-1", Name: "Entryway Camera", Type: TypeCamera, Room: "Hallway",
			Status: StatusOnline, IsOn: true, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.104",
		},
		{
			ID: "light-3", Name: "Kitchen Lights", Type: TypeLight, Room: "Kitchen",
			Status: StatusOnline, IsOn: true, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.105",
			Attributes: LightAttributes{Brightness: 100, Color: "#ffffff"},
		},
		{
			ID: "light-4", Name: "Bedroom Light", Type: TypeLight, Room: "Master Bedroom",
			Status: StatusOnline, IsOn: false, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.106",
			Attributes: LightAttributes{Brightness: 50, Color: "#f5d6a8"},
		},
		{
			ID: "speaker-1", Name: "Living Room Speaker", Type: TypeSpeaker, Room: "Living Room",
			Status: StatusOnline, IsOn: false, ConnectionType: ConnectionBluetooth, MACAddress: "11:22:33:44:55:66",
			Attributes: SpeakerAttributes{Volume: 65},
		},
		{
			ID: "outlet-1", Name: "Smart Outlet", Type: TypeOutlet, Room: "Office",
			Status: StatusOnline, IsOn: true, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.107",
		},
		{
			ID: "vacuum-1", Name: "Robot Vacuum", Type: TypeVacuum, Room: "Living Room",
			Status: StatusOffline, IsOn: false, ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.108",
			Attributes: VacuumAttributes{BatteryLevel: 20},
		},
	}
	for _, d := range devices {
		d.IsConnected = d.Status == StatusOnline
	}
	return devices
}

// DiscoveryPool returns the devices a simulated scan can find: four named
// devices with fixed IDs and two anonymous ones that receive an ID on
// connect.
func DiscoveryPool() []Candidate {
	return []Candidate{
		{
			ID: "light-living-01", Name: "Living Room Light", Type: TypeLight, Room: "Living Room",
			ConnectionType: ConnectionWiFi, Attributes: LightAttributes{Brightness: 80, Color: "#FFFFFF"},
		},
		{
			ID: "therm-bed-01", Name: "Bedroom Thermostat", Type: TypeThermostat, Room: "Bedroom",
			ConnectionType: ConnectionWiFi, Attributes: ThermostatAttributes{Temperature: 72},
		},
		{
			ID: "lock-front-01", Name: "Front Door Lock", Type: TypeLock, Room: "Entrance",
			ConnectionType: ConnectionBluetooth, Attributes: LockAttributes{Locked: true},
		},
		{
			ID: "speaker-kitchen-01", Name: "Kitchen Speaker", Type: TypeSpeaker, Room: "Kitchen",
			ConnectionType: ConnectionWiFi, Attributes: SpeakerAttributes{Volume: 50},
		},
		{
			Name: "New Smart Bulb", Type: TypeLight,
			ConnectionType: ConnectionWiFi, IPAddress: "192.168.1.120",
		},
		{
			Name: "Smart Lock", Type: TypeLock,
			ConnectionType: ConnectionBluetooth, MACAddress: "AA:BB:CC:DD:EE:FF",
		},
	}
}
