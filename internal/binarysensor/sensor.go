// Package binarysensor binds entity descriptors to live cluster channels and
// derives each entity's boolean state from attribute updates.
package binarysensor

import (
	"sync"

	"zigbee-binary-sensor/internal/entity"
)

// UpdateFunc receives attribute updates pushed by a channel.
type UpdateFunc func(attrID uint16, name string, value any)

// Channel is the live attribute binding of one device cluster.
type Channel interface {
	entity.AttributeReader
	// Subscribe registers fn for every attribute update and returns a
	// function that removes the subscription.
	Subscribe(fn UpdateFunc) func()
}

// Notifier is told whenever a sensor accepts a new raw value.
type Notifier interface {
	NotifyStateChanged(entityID string)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(entityID string)

func (f NotifierFunc) NotifyStateChanged(entityID string) { f(entityID) }

// Sensor is one binary sensor entity backed by a single attribute.
// The channel is borrowed; Detach must be called before the channel goes away.
type Sensor struct {
	id       string
	desc     entity.Descriptor
	ch       Channel
	notifier Notifier

	mu    sync.RWMutex
	raw   any
	known bool
	unsub func()
}

// New creates an unattached sensor in the Unknown state.
func New(id string, desc entity.Descriptor, ch Channel, notifier Notifier) *Sensor {
	return &Sensor{id: id, desc: desc, ch: ch, notifier: notifier}
}

// Attach subscribes the sensor to its channel. Calling it twice is a no-op.
func (s *Sensor) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil {
		return
	}
	s.unsub = s.ch.Subscribe(s.OnAttributeUpdate)
}

// Detach removes the channel subscription.
func (s *Sensor) Detach() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// OnAttributeUpdate records value when name is the watched attribute and
// notifies unconditionally; other attributes are ignored.
func (s *Sensor) OnAttributeUpdate(attrID uint16, name string, value any) {
	if name != s.desc.AttributeKey {
		return
	}
	s.mu.Lock()
	s.raw = value
	s.known = true
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.NotifyStateChanged(s.id)
	}
}

// IsOn reports the parsed state, false while no value has been observed.
func (s *Sensor) IsOn() bool {
	s.mu.RLock()
	raw, known := s.raw, s.known
	s.mu.RUnlock()
	if !known {
		return false
	}
	return s.desc.ParseState(raw)
}

// Known reports whether a value has been observed and returns it.
func (s *Sensor) Known() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw, s.known
}

// DeviceClass returns the static class, or the class resolved from the
// channel for descriptors with a ClassResolver.
func (s *Sensor) DeviceClass() entity.DeviceClass {
	return s.desc.Class(s.ch)
}

func (s *Sensor) ID() string                    { return s.id }
func (s *Sensor) Descriptor() entity.Descriptor { return s.desc }

// State is a point-in-time view of a sensor.
type State struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	DisplayName string             `json:"display_name,omitempty"`
	Attribute   string             `json:"attribute"`
	On          bool               `json:"on"`
	Known       bool               `json:"known"`
	Raw         any                `json:"raw,omitempty"`
	DeviceClass entity.DeviceClass `json:"device_class,omitempty"`
	Category    entity.Category    `json:"entity_category,omitempty"`
}

// Snapshot captures the sensor's current state.
func (s *Sensor) Snapshot() State {
	raw, known := s.Known()
	return State{
		ID:          s.id,
		Name:        s.desc.Name,
		DisplayName: s.desc.DisplayName,
		Attribute:   s.desc.AttributeKey,
		On:          s.IsOn(),
		Known:       known,
		Raw:         raw,
		DeviceClass: s.DeviceClass(),
		Category:    s.desc.Category,
	}
}
