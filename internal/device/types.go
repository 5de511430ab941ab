package device

import (
	"strings"
	"time"
)

// Home is a vendor home with its ordered zones. Homes are replaced
// wholesale on every refresh and never patched field by field.
type Home struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// ElectricityRate is the home's energy price per kWh, when set.
	ElectricityRate *float64 `json:"electricity_rate,omitempty"`

	Zones []Zone `json:"zones"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Zone groups devices within a home. HomeID is a back-reference only.
type Zone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	HomeID string `json:"home_id"`
}

// Device is a discovered thermostat or AC controller.
//
// Only Model (through an explicit model conversion) and ZoneID change after
// discovery. The capability profile is derived from Model on demand and is
// not stored.
type Device struct {
	// ID is the stable vendor identifier.
	ID string `json:"id"`

	// MacKey is the lowercase, colon-stripped identifier used in topics.
	MacKey string `json:"mac_key"`

	Name     string  `json:"name"`
	Model    string  `json:"model"`
	HomeID   string  `json:"home_id"`
	ZoneID   *string `json:"zone_id,omitempty"`
	Firmware string  `json:"firmware,omitempty"`

	// UpgradedLite is set from configuration, not from the cloud.
	UpgradedLite bool `json:"upgraded_lite,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// MacKey normalises a device identifier to its topic form.
func MacKey(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, ":", ""))
}

// Profile resolves the device's capability profile.
func (d *Device) Profile() Profile {
	return Resolve(d.Model, ResolveOptions{UpgradedLite: d.UpgradedLite, Firmware: d.Firmware})
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.ZoneID != nil {
		z := *d.ZoneID
		cp.ZoneID = &z
	}
	return &cp
}

// DeepCopy returns an independent copy of the home and its zones.
func (h *Home) DeepCopy() *Home {
	if h == nil {
		return nil
	}
	cp := *h
	if h.ElectricityRate != nil {
		r := *h.ElectricityRate
		cp.ElectricityRate = &r
	}
	if h.Zones != nil {
		cp.Zones = make([]Zone, len(h.Zones))
		copy(cp.Zones, h.Zones)
	}
	return &cp
}

// FirmwareInfo is the cloud's firmware update report for one device.
type FirmwareInfo struct {
	UpdateAvailable  bool   `json:"update"`
	InstalledVersion string `json:"installedVersion"`
	AllowedVersion   string `json:"allowedVersion"`
}
