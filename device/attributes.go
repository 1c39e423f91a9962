// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package device

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/SP4567/smart-home-whisper/pkg/errors"
)

// Attributes is the type-specific state of a device. The concrete variant
// always matches the owning device's Type.
type Attributes interface {
	DeviceType() Type
	isAttributes()
}

// LightAttributes holds brightness (0-100) and a hex colour.
type LightAttributes struct {
	Brightness int    `json:"brightness" validate:"min=0,max=100"`
	Color      string `json:"color" validate:"omitempty,hexcolor"`
}

// ThermostatAttributes holds the target temperature in °F.
type ThermostatAttributes struct {
	Temperature int `json:"temperature"`
}

// LockAttributes holds the lock state.
type LockAttributes struct {
	Locked bool `json:"locked"`
}

// SpeakerAttributes holds the volume (0-100).
type SpeakerAttributes struct {
	Volume int `json:"volume" validate:"min=0,max=100"`
}

// VacuumAttributes holds the battery level (0-100).
type VacuumAttributes struct {
	BatteryLevel int `json:"batteryLevel" validate:"min=0,max=100"`
}

func (LightAttributes) DeviceType() Type      { return TypeLight }
func (ThermostatAttributes) DeviceType() Type { return TypeThermostat }
func (LockAttributes) DeviceType() Type       { return TypeLock }
func (SpeakerAttributes) DeviceType() Type    { return TypeSpeaker }
func (VacuumAttributes) DeviceType() Type     { return TypeVacuum }

func (LightAttributes) isAttributes()      {}
func (ThermostatAttributes) isAttributes() {}
func (LockAttributes) isAttributes()       {}
func (SpeakerAttributes) isAttributes()    {}
func (VacuumAttributes) isAttributes()     {}

// DefaultAttributes returns the attributes a freshly connected or added
// device of type t starts with. Cameras and outlets have none.
func DefaultAttributes(t Type) Attributes {
	switch t {
	case TypeLight:
		return LightAttributes{Brightness: 100, Color: "#f5e3cb"}
	case TypeThermostat:
		return ThermostatAttributes{Temperature: 72}
	case TypeLock:
		return LockAttributes{Locked: true}
	case TypeSpeaker:
		return SpeakerAttributes{Volume: 50}
	case TypeVacuum:
		return VacuumAttributes{BatteryLevel: 100}
	default:
		return nil
	}
}

// Patch is a partial attribute update. Nil fields are left untouched.
type Patch struct {
	Brightness   *int    `json:"brightness,omitempty" validate:"omitnil,min=0,max=100"`
	Color        *string `json:"color,omitempty" validate:"omitnil,hexcolor"`
	Temperature  *int    `json:"temperature,omitempty"`
	Locked       *bool   `json:"locked,omitempty"`
	Volume       *int    `json:"volume,omitempty" validate:"omitnil,min=0,max=100"`
	BatteryLevel *int    `json:"batteryLevel,omitempty" validate:"omitnil,min=0,max=100"`
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return len(p.fields()) == 0
}

// Params renders the patch as command parameters.
func (p Patch) Params() map[string]any {
	params := make(map[string]any)
	if p.Brightness != nil {
		params["brightness"] = *p.Brightness
	}
	if p.Color != nil {
		params["color"] = *p.Color
	}
	if p.Temperature != nil {
		params["temperature"] = *p.Temperature
	}
	if p.Locked != nil {
		params["locked"] = *p.Locked
	}
	if p.Volume != nil {
		params["volume"] = *p.Volume
	}
	if p.BatteryLevel != nil {
		params["batteryLevel"] = *p.BatteryLevel
	}
	return params
}

// fields lists the JSON names of the fields that are set.
func (p Patch) fields() []string {
	var names []string
	if p.Brightness != nil {
		names = append(names, "brightness")
	}
	if p.Color != nil {
		names = append(names, "color")
	}
	if p.Temperature != nil {
		names = append(names, "temperature")
	}
	if p.Locked != nil {
		names = append(names, "locked")
	}
	if p.Volume != nil {
		names = append(names, "volume")
	}
	if p.BatteryLevel != nil {
		names = append(names, "batteryLevel")
	}
	return names
}

var supportedFields = map[Type]map[string]bool{
	TypeLight:      {"brightness": true, "color": true},
	TypeThermostat: {"temperature": true},
	TypeLock:       {"locked": true},
	TypeSpeaker:    {"volume": true},
	TypeVacuum:     {"batteryLevel": true},
}

// Validate checks ranges and that every set field is meaningful for t.
func (p Patch) Validate(t Type) error {
	allowed := supportedFields[t]
	for _, name := range p.fields() {
		if !allowed[name] {
			return &errors.ValidationError{
				Field:   name,
				Value:   string(t),
				Reason:  fmt.Sprintf("not an attribute of %s devices", t),
				Details: errors.ErrInvalidAttribute,
			}
		}
	}
	return validateStruct(p)
}

// Apply merges the patch into current and returns the new variant. Fields
// not set in the patch keep their current values. current may be nil, in
// which case the zero variant for t is used as the base.
func (p Patch) Apply(t Type, current Attributes) (Attributes, error) {
	if err := p.Validate(t); err != nil {
		return nil, err
	}
	if current != nil && current.DeviceType() != t {
		return nil, &errors.ValidationError{
			Field:   "data",
			Value:   string(current.DeviceType()),
			Reason:  fmt.Sprintf("attributes do not belong to a %s", t),
			Details: errors.ErrInvalidAttribute,
		}
	}

	switch t {
	case TypeLight:
		a, _ := current.(LightAttributes)
		if p.Brightness != nil {
			a.Brightness = *p.Brightness
		}
		if p.Color != nil {
			a.Color = *p.Color
		}
		return a, nil
	case TypeThermostat:
		a, _ := current.(ThermostatAttributes)
		if p.Temperature != nil {
			a.Temperature = *p.Temperature
		}
		return a, nil
	case TypeLock:
		a, _ := current.(LockAttributes)
		if p.Locked != nil {
			a.Locked = *p.Locked
		}
		return a, nil
	case TypeSpeaker:
		a, _ := current.(SpeakerAttributes)
		if p.Volume != nil {
			a.Volume = *p.Volume
		}
		return a, nil
	case TypeVacuum:
		a, _ := current.(VacuumAttributes)
		if p.BatteryLevel != nil {
			a.BatteryLevel = *p.BatteryLevel
		}
		return a, nil
	default:
		// camera and outlet: Validate already rejected any set field
		return current, nil
	}
}

// ValidateAttributes checks that attrs belongs to t and is within range.
func ValidateAttributes(t Type, attrs Attributes) error {
	if attrs == nil {
		return nil
	}
	if attrs.DeviceType() != t {
		return &errors.ValidationError{
			Field:   "data",
			Value:   string(attrs.DeviceType()),
			Reason:  fmt.Sprintf("attributes do not belong to a %s", t),
			Details: errors.ErrInvalidAttribute,
		}
	}
	return validateStruct(attrs)
}

// DecodeAttributes parses raw JSON into the variant for t. Empty input
// yields nil attributes. Unknown keys are rejected.
func DecodeAttributes(t Type, raw json.RawMessage) (Attributes, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p Patch
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s attributes: %w", t, err)
	}
	if p.IsEmpty() {
		return nil, nil
	}
	return p.Apply(t, nil)
}

func encodeAttributes(attrs Attributes) (json.RawMessage, error) {
	if attrs == nil {
		return nil, nil
	}
	return json.Marshal(attrs)
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
