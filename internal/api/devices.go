package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mysa-core/internal/command"
	"github.com/nerrad567/mysa-core/internal/device"
	"github.com/nerrad567/mysa-core/internal/state"
)

// deviceView is a device with its resolved zone name and capability profile.
type deviceView struct {
	device.Device
	ZoneName string         `json:"zone_name,omitempty"`
	Profile  device.Profile `json:"profile"`
}

// commandResponse describes a command that was published.
type commandResponse struct {
	DeviceID string `json:"device_id"`
	Intent   string `json:"intent"`
	ID       int64  `json:"command_id"`
	Timer    int    `json:"timer"`
}

// handleListHomes returns every home with its zones.
func (s *Server) handleListHomes(w http.ResponseWriter, _ *http.Request) {
	homes := s.registry.Homes()
	writeJSON(w, http.StatusOK, map[string]any{"homes": homes, "count": len(homes)})
}

// handleListDevices returns all devices, optionally only those in ?home_id.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.Devices()
	if homeID := r.URL.Query().Get("home_id"); homeID != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if d.HomeID == homeID {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	view := deviceView{Device: *dev, Profile: dev.Profile()}
	if dev.ZoneID != nil {
		view.ZoneName = s.registry.ZoneName(*dev.ZoneID)
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetDeviceState returns the reconciled state of a device. A device
// with nothing observed yet has an empty field set.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	st, found := s.store.Read(dev.ID)
	if !found {
		st = state.DeviceState{DeviceID: dev.ID, Fields: map[string]state.Value{}}
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCommand validates a JSON intent against the device and publishes it.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}
	intent, err := command.ParseIntent(body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	cmd, err := s.engine.IssueCommand(r.Context(), id, intent)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, commandResponse{
		DeviceID: id,
		Intent:   cmd.Intent,
		ID:       cmd.ID,
		Timer:    cmd.Timer,
	})
}

// handleSetSensorMode switches an in-floor thermostat's control sensor.
//
//	{"mode": "floor"}
func (s *Server) handleSetSensorMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	mode, ok := command.ParseSensorMode(req.Mode)
	if !ok {
		s.writeServiceError(w, r, fmt.Errorf("%w: unknown sensor mode %q", command.ErrValidation, req.Mode))
		return
	}
	if err := s.engine.SetSensorMode(r.Context(), chi.URLParam(r, "id"), mode); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensor_mode": mode.String()})
}

// handleConvertModel changes the model the cloud reports for a device.
//
//	{"model": "BB-V2-0"}
func (s *Server) handleConvertModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.engine.ConvertModel(r.Context(), id, req.Model); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	dev, err := s.registry.Device(id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceView{Device: *dev, Profile: dev.Profile()})
}

// handleFirmware reports installed and available firmware.
func (s *Server) handleFirmware(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.FirmwareInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleReset puts a device back into pairing mode.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetToPairing(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// lookupDevice resolves {id} or writes the error response.
func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	dev, err := s.registry.Device(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
