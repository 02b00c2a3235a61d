// Package entity defines the static declaration of a binary sensor entity:
// which attribute it reads, how the raw value becomes a boolean, and how the
// host platform should classify it.
package entity

// DeviceClass is the semantic classification shown by the host platform.
// Values match Home Assistant's binary_sensor device classes.
type DeviceClass string

const (
	DeviceClassNone      DeviceClass = ""
	DeviceClassGas       DeviceClass = "gas"
	DeviceClassLock      DeviceClass = "lock"
	DeviceClassMoisture  DeviceClass = "moisture"
	DeviceClassMotion    DeviceClass = "motion"
	DeviceClassMoving    DeviceClass = "moving"
	DeviceClassOccupancy DeviceClass = "occupancy"
	DeviceClassOpening   DeviceClass = "opening"
	DeviceClassPlug      DeviceClass = "plug"
	DeviceClassProblem   DeviceClass = "problem"
	DeviceClassSafety    DeviceClass = "safety"
	DeviceClassSmoke     DeviceClass = "smoke"
	DeviceClassVibration DeviceClass = "vibration"
	DeviceClassWindow    DeviceClass = "window"
)

var knownClasses = map[DeviceClass]bool{
	DeviceClassGas: true, DeviceClassLock: true, DeviceClassMoisture: true,
	DeviceClassMotion: true, DeviceClassMoving: true, DeviceClassOccupancy: true,
	DeviceClassOpening: true, DeviceClassPlug: true, DeviceClassProblem: true,
	DeviceClassSafety: true, DeviceClassSmoke: true, DeviceClassVibration: true,
	DeviceClassWindow: true,
}

// ParseDeviceClass validates a device class name from a device file.
// The empty string is accepted and means "no class".
func ParseDeviceClass(s string) (DeviceClass, bool) {
	c := DeviceClass(s)
	if c == DeviceClassNone || knownClasses[c] {
		return c, true
	}
	return DeviceClassNone, false
}

// Category is the entity category. Diagnostic entities are hidden from
// default dashboards by the host platform.
type Category string

const (
	CategoryNone       Category = ""
	CategoryConfig     Category = "config"
	CategoryDiagnostic Category = "diagnostic"
)

// AttributeReader gives read access to the cached attributes of a cluster.
type AttributeReader interface {
	Attribute(name string) (any, bool)
}

// StateParser turns a raw attribute value into the entity's boolean state.
type StateParser func(raw any) bool

// ClassResolver derives a device class at runtime from the bound cluster.
type ClassResolver func(attrs AttributeReader) DeviceClass

// Descriptor declares one binary sensor entity.
type Descriptor struct {
	// Name identifies the declaration (e.g. "Occupancy", "IASZone").
	Name string `json:"name"`
	// IDSuffix disambiguates several entities derived from the same cluster.
	IDSuffix     string      `json:"id_suffix,omitempty"`
	AttributeKey string      `json:"attribute"`
	DeviceClass  DeviceClass `json:"device_class,omitempty"`
	Category     Category    `json:"entity_category,omitempty"`
	DisplayName  string      `json:"display_name,omitempty"`

	Parse        StateParser   `json:"-"`
	ResolveClass ClassResolver `json:"-"`
}

// ParseState applies the descriptor's parser, defaulting to Truthy.
func (d Descriptor) ParseState(raw any) bool {
	if d.Parse == nil {
		return Truthy(raw)
	}
	return d.Parse(raw)
}

// Class returns the device class, consulting ResolveClass when set.
func (d Descriptor) Class(attrs AttributeReader) DeviceClass {
	if d.ResolveClass == nil {
		return d.DeviceClass
	}
	if attrs == nil {
		return DeviceClassNone
	}
	return d.ResolveClass(attrs)
}
