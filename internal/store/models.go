package store

import (
	"fmt"
	"time"
)

// Device is the persisted signature and attribute cache of one device.
type Device struct {
	IEEEAddress  string     `json:"ieee_address"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Model        string     `json:"model,omitempty"`
	QuirkID      string     `json:"quirk_id,omitempty"`
	FriendlyName string     `json:"friendly_name,omitempty"`
	Endpoints    []Endpoint `json:"endpoints,omitempty"`
	JoinedAt     time.Time  `json:"joined_at"`
	LastSeen     time.Time  `json:"last_seen"`

	// Attributes caches the last value seen per AttributeKey, keyed by
	// ClusterKey(endpoint, cluster) and then attribute name.
	Attributes map[string]map[string]any `json:"attributes,omitempty"`
}

// Endpoint represents a device endpoint and its server clusters.
type Endpoint struct {
	ID         uint8    `json:"id"`
	ProfileID  uint16   `json:"profile_id,omitempty"`
	DeviceID   uint16   `json:"device_id,omitempty"`
	InClusters []uint16 `json:"in_clusters"`
}

// ClusterKey is the attribute cache key for a cluster on an endpoint.
func ClusterKey(endpoint uint8, cluster uint16) string {
	return fmt.Sprintf("%d/0x%04X", endpoint, cluster)
}

// SetAttribute records a value in the attribute cache.
func (d *Device) SetAttribute(endpoint uint8, cluster uint16, name string, value any) {
	if d.Attributes == nil {
		d.Attributes = make(map[string]map[string]any)
	}
	key := ClusterKey(endpoint, cluster)
	if d.Attributes[key] == nil {
		d.Attributes[key] = make(map[string]any)
	}
	d.Attributes[key][name] = value
}

// DisplayName returns the friendly name, falling back to "Manufacturer Model".
func (d *Device) DisplayName() string {
	if d.FriendlyName != "" {
		return d.FriendlyName
	}
	name := d.Manufacturer
	if d.Model != "" {
		if name != "" {
			name += " "
		}
		name += d.Model
	}
	return name
}
