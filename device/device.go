// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package device defines the smart-home device model.
//
// A Device is an immutable snapshot: every change goes through one of the
// With* helpers, which return a new *Device and leave the receiver untouched.
// Holders of a snapshot can therefore compare pointers to detect changes.
//
// # Attributes
//
// Type-specific state lives in a tagged variant (LightAttributes,
// ThermostatAttributes, ...) rather than one loose bag. A Patch carries a
// partial update and is merged into the variant by Patch.Apply, which rejects
// keys the device type does not define.
//
// # Identity
//
// Devices are keyed by ID. Discovery results are additionally reconciled by
// network address (IP for wifi, MAC for bluetooth); see Device.Matches.
package device

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type is the closed set of supported device kinds.
type Type string

const (
	TypeLight      Type = "light"
	TypeThermostat Type = "thermostat"
	TypeLock       Type = "lock"
	TypeCamera     Type = "camera"
	TypeSpeaker    Type = "speaker"
	TypeVacuum     Type = "vacuum"
	TypeOutlet     Type = "outlet"
)

// AllTypes returns every supported device type.
func AllTypes() []Type {
	return []Type{TypeLight, TypeThermostat, TypeLock, TypeCamera, TypeSpeaker, TypeVacuum, TypeOutlet}
}

// Valid reports whether t is a known device type.
func (t Type) Valid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Status is derived from the last connection outcome.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// ConnectionType selects which address field is meaningful.
type ConnectionType string

const (
	ConnectionWiFi      ConnectionType = "wifi"
	ConnectionBluetooth ConnectionType = "bluetooth"
)

// DefaultRoom is assigned when a device arrives without a room.
const DefaultRoom = "Living Room"

// Rooms lists the rooms offered by the dashboard.
var Rooms = []string{
	"Living Room",
	"Kitchen",
	"Master Bedroom",
	"Bathroom",
	"Office",
	"Hallway",
	"Guest Room",
}

// Device is a registered smart-home device.
type Device struct {
	ID             string
	Name           string
	Type           Type
	Room           string
	IsOn           bool
	IsConnected    bool
	Status         Status
	ConnectionType ConnectionType
	IPAddress      string
	MACAddress     string
	Attributes     Attributes // nil for types without attributes
}

// Clone returns an independent copy. Attribute variants are plain values, so
// a shallow copy is sufficient.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// WithPower returns a copy with the power state set.
func (d *Device) WithPower(on bool) *Device {
	cpy := d.Clone()
	cpy.IsOn = on
	return cpy
}

// WithAttributes returns a copy carrying attrs.
func (d *Device) WithAttributes(attrs Attributes) *Device {
	cpy := d.Clone()
	cpy.Attributes = attrs
	return cpy
}

// WithConnection returns a copy with the connected/status pair set together.
func (d *Device) WithConnection(connected bool, status Status) *Device {
	cpy := d.Clone()
	cpy.IsConnected = connected
	cpy.Status = status
	return cpy
}

// Online returns a copy marked connected and online.
func (d *Device) Online() *Device { return d.WithConnection(true, StatusOnline) }

// Offline returns a copy marked disconnected and offline.
func (d *Device) Offline() *Device { return d.WithConnection(false, StatusOffline) }

// Address returns the address relevant to the connection type.
func (d *Device) Address() string {
	return addressFor(d.ConnectionType, d.IPAddress, d.MACAddress)
}

// Matches reports whether c refers to the same physical device, either by ID
// or by a shared IP or MAC address.
func (d *Device) Matches(c Candidate) bool {
	return sameIdentity(d.ID, d.IPAddress, d.MACAddress, c.ID, c.IPAddress, c.MACAddress)
}

// Candidate is a partially populated device returned by discovery. It lacks
// power and connection state until connected.
type Candidate struct {
	ID             string         `json:"id,omitempty"`
	Name           string         `json:"name"`
	Type           Type           `json:"type"`
	Room           string         `json:"room,omitempty"`
	ConnectionType ConnectionType `json:"connectionType"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	MACAddress     string         `json:"macAddress,omitempty"`
	Attributes     Attributes     `json:"-"`
}

// Matches reports whether two candidates refer to the same physical device.
func (c Candidate) Matches(other Candidate) bool {
	return sameIdentity(c.ID, c.IPAddress, c.MACAddress, other.ID, other.IPAddress, other.MACAddress)
}

// Address returns the address relevant to the connection type.
func (c Candidate) Address() string {
	return addressFor(c.ConnectionType, c.IPAddress, c.MACAddress)
}

// Key identifies the candidate within a set of scan results. Candidates
// without an ID are keyed by type and address, since connecting them mints
// the ID.
func (c Candidate) Key() string {
	if c.ID != "" {
		return c.ID
	}
	if addr := c.Address(); addr != "" {
		return fmt.Sprintf("%s@%s", c.Type, strings.ToLower(addr))
	}
	return fmt.Sprintf("%s@%s", c.Type, strings.ToLower(strings.ReplaceAll(c.Name, " ", "-")))
}

// Label returns the name used in user-facing messages.
func (c Candidate) Label() string {
	if c.Name != "" {
		return c.Name
	}
	if c.ID != "" {
		return c.ID
	}
	return "Unknown Device"
}

// NewID builds an identifier of the form "<type>-<unix millis>".
func NewID(t Type, now time.Time) string {
	return fmt.Sprintf("%s-%d", t, now.UnixMilli())
}

// NormalizeAddresses keeps only the address that belongs to the connection
// type: wifi devices carry an IP, bluetooth devices a MAC.
func NormalizeAddresses(ct ConnectionType, ip, mac string) (string, string) {
	switch ct {
	case ConnectionBluetooth:
		return "", strings.ToUpper(mac)
	default:
		return ip, ""
	}
}

func addressFor(ct ConnectionType, ip, mac string) string {
	if ct == ConnectionBluetooth {
		return mac
	}
	return ip
}

func sameIdentity(aID, aIP, aMAC, bID, bIP, bMAC string) bool {
	if aID != "" && aID == bID {
		return true
	}
	if aIP != "" && aIP == bIP {
		return true
	}
	return aMAC != "" && strings.EqualFold(aMAC, bMAC)
}

// deviceJSON is the wire shape, matching the dashboard's field names.
type deviceJSON struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           Type            `json:"type"`
	Room           string          `json:"room"`
	IsOn           bool            `json:"isOn"`
	IsConnected    bool            `json:"isConnected"`
	Status         Status          `json:"status"`
	ConnectionType ConnectionType  `json:"connectionType"`
	IPAddress      string          `json:"ipAddress,omitempty"`
	MACAddress     string          `json:"macAddress,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the attribute variant under "data".
func (d Device) MarshalJSON() ([]byte, error) {
	data, err := encodeAttributes(d.Attributes)
	if err != nil {
		return nil, err
	}
	return json.Marshal(deviceJSON{
		ID:             d.ID,
		Name:           d.Name,
		Type:           d.Type,
		Room:           d.Room,
		IsOn:           d.IsOn,
		IsConnected:    d.IsConnected,
		Status:         d.Status,
		ConnectionType: d.ConnectionType,
		IPAddress:      d.IPAddress,
		MACAddress:     d.MACAddress,
		Data:           data,
	})
}

// UnmarshalJSON decodes "data" into the variant selected by "type".
func (d *Device) UnmarshalJSON(b []byte) error {
	var raw deviceJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	attrs, err := DecodeAttributes(raw.Type, raw.Data)
	if err != nil {
		return err
	}
	*d = Device{
		ID:             raw.ID,
		Name:           raw.Name,
		Type:           raw.Type,
		Room:           raw.Room,
		IsOn:           raw.IsOn,
		IsConnected:    raw.IsConnected,
		Status:         raw.Status,
		ConnectionType: raw.ConnectionType,
		IPAddress:      raw.IPAddress,
		MACAddress:     raw.MACAddress,
		Attributes:     attrs,
	}
	return nil
}

type candidateJSON struct {
	Key            string          `json:"key,omitempty"`
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name"`
	Type           Type            `json:"type"`
	Room           string          `json:"room,omitempty"`
	ConnectionType ConnectionType  `json:"connectionType"`
	IPAddress      string          `json:"ipAddress,omitempty"`
	MACAddress     string          `json:"macAddress,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the optional attribute variant under "data".
func (c Candidate) MarshalJSON() ([]byte, error) {
	data, err := encodeAttributes(c.Attributes)
	if err != nil {
		return nil, err
	}
	return json.Marshal(candidateJSON{
		Key:            c.Key(),
		ID:             c.ID,
		Name:           c.Name,
		Type:           c.Type,
		Room:           c.Room,
		ConnectionType: c.ConnectionType,
		IPAddress:      c.IPAddress,
		MACAddress:     c.MACAddress,
		Data:           data,
	})
}

// UnmarshalJSON decodes "data" into the variant selected by "type".
func (c *Candidate) UnmarshalJSON(b []byte) error {
	var raw candidateJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	attrs, err := DecodeAttributes(raw.Type, raw.Data)
	if err != nil {
		return err
	}
	*c = Candidate{
		ID:             raw.ID,
		Name:           raw.Name,
		Type:           raw.Type,
		Room:           raw.Room,
		ConnectionType: raw.ConnectionType,
		IPAddress:      raw.IPAddress,
		MACAddress:     raw.MACAddress,
		Attributes:     attrs,
	}
	return nil
}
