package device

import (
	"time"

	"github.com/google/uuid"
)

// Status is a device's connection state as last reported by its agent.
type Status string

const (
	StatusConnected Status = "connected"
	StatusOffline   Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusConnected || s == StatusOffline
}

// Role marks what a device is currently reserved for.
// Devices in the editing role are held by a scenario author's live
// session and are skipped when expanding execution requests.
type Role string

const (
	RoleTesting Role = "testing"
	RoleEditing Role = "editing"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTesting || r == RoleEditing
}

// Device is a physical or emulated handset registered with the console.
//
// Status reflects the agent's status topic, not a live probe: an agent
// that dies without publishing stays connected until the broker
// delivers its last-will message.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Platform  string    `json:"platform"` // android, ios
	Serial    string    `json:"serial"`
	Status    Status    `json:"status"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// GenerateID generates a unique identifier for devices.
func GenerateID() string {
	return uuid.New().String()
}
