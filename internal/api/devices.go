package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kws0109/QA-Automation-sub001/internal/device"
)

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Serial   string `json:"serial"`
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d := &device.Device{
		Name:     req.Name,
		Platform: req.Platform,
		Serial:   req.Serial,
	}
	if err := s.devices.Create(r.Context(), d); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// updateDeviceRequest is the request body for PATCH /devices/{id}.
// Only the provided fields are changed.
type updateDeviceRequest struct {
	Name     *string `json:"name,omitempty"`
	Platform *string `json:"platform,omitempty"`
	Serial   *string `json:"serial,omitempty"`
}

// handleUpdateDevice applies a partial update to a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Platform != nil {
		d.Platform = *req.Platform
	}
	if req.Serial != nil {
		d.Serial = *req.Serial
	}

	if err := s.devices.Update(r.Context(), d); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDevice removes a device from the registry.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceQueueStatus reports a device's availability from the
// requesting execution's point of view. The requester_id query
// parameter distinguishes busy_mine from busy_other.
func (s *Server) handleDeviceQueueStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if _, err := s.devices.Get(r.Context(), deviceID); err != nil {
		writeDomainError(w, err)
		return
	}

	requesterID := r.URL.Query().Get("requester_id")
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"status":    s.queue.Status(deviceID, requesterID),
	})
}

// handleBeginSession opens an editing session on a device, taking it
// out of the testing pool.
func (s *Server) handleBeginSession(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if err := s.devices.BeginSession(r.Context(), deviceID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"role":      device.RoleEditing,
	})
}

// handleEndSession closes an editing session and returns the device to
// the testing pool.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if err := s.devices.EndSession(r.Context(), deviceID); err != nil {
		writeDomainError(w, err)
		return
	}
	// A completed editing session may have left work waiting.
	s.queue.Poke(deviceID)

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"role":      device.RoleTesting,
	})
}
