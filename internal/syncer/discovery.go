package syncer

import (
	"maps"
	"slices"
	"time"

	"github.com/nerrad567/mysa-core/internal/cloud"
	"github.com/nerrad567/mysa-core/internal/device"
)

// membership records which home and zone each device belongs to, as listed
// in the zones of GET /homes.
type membership struct {
	deviceHome map[string]string
	deviceZone map[string]string
	zoneHome   map[string]string
}

func newMembership(homes []cloud.Home) membership {
	m := membership{
		deviceHome: make(map[string]string),
		deviceZone: make(map[string]string),
		zoneHome:   make(map[string]string),
	}
	for _, h := range homes {
		for _, z := range h.Zones {
			if z.ID == "" {
				continue
			}
			m.zoneHome[z.ID] = h.ID
			for _, id := range z.DeviceIDs {
				m.deviceHome[id] = h.ID
				m.deviceZone[id] = z.ID
			}
		}
	}
	return m
}

// locate returns the home and zone of a device. Zone membership wins; a
// device missing from every zone list falls back to the zone it reports.
func (m membership) locate(id string, raw cloud.RawDevice) (homeID string, zoneID *string) {
	if h, ok := m.deviceHome[id]; ok {
		z := m.deviceZone[id]
		return h, &z
	}
	if z := raw.First("Zone", "zone_id"); z != "" {
		if h, ok := m.zoneHome[z]; ok {
			return h, &z
		}
	}
	return "", nil
}

func convertHomes(homes []cloud.Home, now time.Time) []device.Home {
	out := make([]device.Home, 0, len(homes))
	for _, h := range homes {
		home := device.Home{
			ID:              h.ID,
			Name:            h.Name,
			ElectricityRate: h.ERate.Float(),
			UpdatedAt:       now,
		}
		for _, z := range h.Zones {
			if z.ID == "" {
				continue
			}
			home.Zones = append(home.Zones, device.Zone{ID: z.ID, Name: z.Name, HomeID: h.ID})
		}
		out = append(out, home)
	}
	return out
}

// convertDevices builds registry devices from GET /devices, sorted by ID.
//
// When homes are known, devices that belong to no home are ghosts left
// behind by the vendor app and are dropped. Without home data every device
// is kept.
func convertDevices(raw map[string]cloud.RawDevice, m membership, now time.Time) (devices []device.Device, ghosts []string) {
	filter := len(m.deviceHome) > 0

	for _, id := range slices.Sorted(maps.Keys(raw)) {
		flat := raw[id].Flatten()
		homeID, zoneID := m.locate(id, flat)
		if filter && homeID == "" {
			ghosts = append(ghosts, id)
			continue
		}
		devices = append(devices, device.Device{
			ID:        id,
			Name:      flat.First("Name", "name"),
			Model:     flat.First("Model", "model"),
			HomeID:    homeID,
			ZoneID:    zoneID,
			Firmware:  flat.First("FirmwareVersion", "fv"),
			UpdatedAt: now,
		})
	}
	return devices, ghosts
}

// mergeSnapshot overlays a device's live state on its settings object.
// Live values win, so a lock toggled on the device beats the stored
// setting.
func mergeSnapshot(settings, live cloud.RawDevice) map[string]any {
	out := make(map[string]any, len(settings)+len(live))
	if settings != nil {
		maps.Copy(out, settings.Flatten())
	}
	maps.Copy(out, live.Flatten())
	return out
}
