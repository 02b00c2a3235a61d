//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"zigbee-binary-sensor/internal/coordinator"
	"zigbee-binary-sensor/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/binary_sensor/zigbee_00158D.../1_0x0406/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a binary_sensor discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	ObjectID          string   `json:"object_id,omitempty"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template"`
	DeviceClass       string   `json:"device_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	PayloadOn         string   `json:"payload_on"`
	PayloadOff        string   `json:"payload_off"`
	Device            haDevice `json:"device"`
}

const (
	payloadOn  = "ON"
	payloadOff = "OFF"
)

// nodeID returns the unique identifier for the HA device registry.
func nodeID(ieee string) string {
	return "zigbee_" + ieee
}

// objectID is the entity ID without the device prefix, made topic safe:
// "00158D0001A2B3C4-1-0x0406-frost_lock" becomes "1_0x0406_frost_lock".
func objectID(e coordinator.Entity) string {
	return sanitize(strings.TrimPrefix(e.ID, e.IEEE+"-"))
}

// deviceTopicName returns the topic name for a device (friendly name or IEEE).
func deviceTopicName(dev *store.Device) string {
	if dev.FriendlyName != "" {
		return sanitize(dev.FriendlyName)
	}
	return dev.IEEEAddress
}

// sanitize lowercases and keeps only characters safe in MQTT topics and
// Jinja attribute names.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, strings.ToLower(s))
}

func deviceDisplayName(dev *store.Device) string {
	if name := dev.DisplayName(); name != "" {
		return name
	}
	return dev.IEEEAddress
}

// entityLabel is the part of the HA name after the device name.
func entityLabel(e coordinator.Entity) string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.Name
}

// buildDiscovery generates the discovery message for one binary sensor.
func buildDiscovery(dev *store.Device, e coordinator.Entity, prefix, discoveryPrefix string) discoveryMsg {
	node := nodeID(dev.IEEEAddress)
	obj := objectID(e)
	payload := haDiscovery{
		Name:              deviceDisplayName(dev) + " " + entityLabel(e),
		UniqueID:          node + "_" + obj,
		ObjectID:          sanitize(deviceTopicName(dev) + "_" + obj),
		StateTopic:        prefix + "/" + deviceTopicName(dev),
		AvailabilityTopic: prefix + "/bridge/state",
		ValueTemplate:     fmt.Sprintf("{{ value_json['%s'] }}", obj),
		DeviceClass:       string(e.DeviceClass),
		EntityCategory:    string(e.Category),
		PayloadOn:         payloadOn,
		PayloadOff:        payloadOff,
		Device: haDevice{
			Identifiers:  []string{node},
			Manufacturer: dev.Manufacturer,
			Model:        dev.Model,
			Name:         deviceDisplayName(dev),
		},
	}
	return discoveryMsg{
		Topic:   discoveryTopic(discoveryPrefix, dev.IEEEAddress, e),
		Payload: mustJSON(payload),
	}
}

// buildRemoveDiscovery generates the empty retained message that removes an
// entity from HA.
func buildRemoveDiscovery(e coordinator.Entity, discoveryPrefix string) discoveryMsg {
	return discoveryMsg{Topic: discoveryTopic(discoveryPrefix, e.IEEE, e)}
}

func discoveryTopic(discoveryPrefix, ieee string, e coordinator.Entity) string {
	return fmt.Sprintf("%s/binary_sensor/%s/%s/config", discoveryPrefix, nodeID(ieee), objectID(e))
}

// buildState renders the device state document. Entities that have not seen
// their attribute yet are published as null so HA shows them as unknown.
func buildState(dev *store.Device, entities []coordinator.Entity) map[string]any {
	state := make(map[string]any, len(entities)+1)
	for _, e := range entities {
		switch {
		case !e.Known:
			state[objectID(e)] = nil
		case e.On:
			state[objectID(e)] = payloadOn
		default:
			state[objectID(e)] = payloadOff
		}
	}
	if !dev.LastSeen.IsZero() {
		state["last_seen"] = dev.LastSeen.Format(time.RFC3339)
	}
	return state
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
