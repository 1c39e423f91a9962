// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package device

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/SP4567/smart-home-whisper/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so errors line up with request payloads.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags and converts the first failure into a
// ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewValidationError("", s, err.Error())
	}
	fe := verrs[0]
	return errors.NewValidationError(fe.Field(), fe.Value(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "hexcolor":
		return "must be a hex colour such as #f5e3cb"
	case "ip":
		return "must be an IP address"
	case "mac":
		return "must be a MAC address"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// Input is the payload for registering a device by hand. ID is optional.
type Input struct {
	ID             string         `json:"id,omitempty" validate:"omitempty,max=64,excludesall=/"`
	Name           string         `json:"name" validate:"required,max=100"`
	Type           Type           `json:"type" validate:"required,oneof=light thermostat lock camera speaker vacuum outlet"`
	Room           string         `json:"room" validate:"max=100"`
	ConnectionType ConnectionType `json:"connectionType" validate:"required,oneof=wifi bluetooth"`
	IPAddress      string         `json:"ipAddress,omitempty" validate:"omitempty,ip"`
	MACAddress     string         `json:"macAddress,omitempty" validate:"omitempty,mac"`
	IsOn           bool           `json:"isOn"`
	Data           *Patch         `json:"data,omitempty"`
}

// Validate checks the payload and its optional attribute patch.
func (in Input) Validate() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.Data != nil {
		return in.Data.Validate(in.Type)
	}
	return nil
}

// Build turns an input into a device. Manually added devices are assumed
// reachable and start connected and online. A missing ID is generated from
// the type and now.
func (in Input) Build(now time.Time) (*Device, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	attrs := DefaultAttributes(in.Type)
	if in.Data != nil && !in.Data.IsEmpty() {
		merged, err := in.Data.Apply(in.Type, attrs)
		if err != nil {
			return nil, err
		}
		attrs = merged
	}

	id := in.ID
	if id == "" {
		id = NewID(in.Type, now)
	}
	room := in.Room
	if room == "" {
		room = DefaultRoom
	}
	ip, mac := NormalizeAddresses(in.ConnectionType, in.IPAddress, in.MACAddress)

	return &Device{
		ID:             id,
		Name:           in.Name,
		Type:           in.Type,
		Room:           room,
		IsOn:           in.IsOn,
		IsConnected:    true,
		Status:         StatusOnline,
		ConnectionType: in.ConnectionType,
		IPAddress:      ip,
		MACAddress:     mac,
		Attributes:     attrs,
	}, nil
}

// Validate checks the structural invariants of a device: known type,
// attributes matching the type and the online/connected pairing.
func (d *Device) Validate() error {
	if d.ID == "" {
		return errors.NewValidationError("id", d.ID, "is required")
	}
	if !d.Type.Valid() {
		return errors.NewValidationError("type", d.Type, "unknown device type")
	}
	if d.Status == StatusOnline && !d.IsConnected {
		return errors.NewValidationError("status", d.Status, "online device must be connected")
	}
	return ValidateAttributes(d.Type, d.Attributes)
}
