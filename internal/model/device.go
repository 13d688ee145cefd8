package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceStatus is the approval state reported back to a registering workstation.
type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "pending_approval"
	DeviceStatusApproved DeviceStatus = "approved"
)

// Device is a registered lab workstation, keyed by hostname.
type Device struct {
	ID         uuid.UUID  `json:"id"`
	Hostname   string     `json:"hostname"`
	MacAddress string     `json:"mac_address,omitempty"`
	Approved   bool       `json:"approved"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Status maps the approval flag onto the registration status.
func (d *Device) Status() DeviceStatus {
	if d.Approved {
		return DeviceStatusApproved
	}
	return DeviceStatusPending
}

// RegisterDeviceRequest is the payload a workstation sends on first launch.
type RegisterDeviceRequest struct {
	Hostname   string `json:"hostname" binding:"required,min=1,max=255"`
	MacAddress string `json:"mac_address" binding:"omitempty,max=64"`
}

// RegisterDeviceResult is returned from device registration.
type RegisterDeviceResult struct {
	DeviceID uuid.UUID    `json:"device_id"`
	Status   DeviceStatus `json:"status"`
	Created  bool         `json:"-"`
}
