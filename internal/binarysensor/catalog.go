package binarysensor

import (
	"strings"

	"zigbee-binary-sensor/internal/entity"
	"zigbee-binary-sensor/internal/match"
)

// Channel names the built-in rules are indexed by.
const (
	ChannelAccelerometer   = "accelerometer"
	ChannelOccupancy       = "occupancy"
	ChannelOnOff           = "on_off"
	ChannelBinaryInput     = "binary_input"
	ChannelZone            = "ias_zone"
	ChannelTuya            = "tuya_manufacturer"
	ChannelIkeaAirPurifier = "ikea_airpurifier"
	ChannelOpple           = "opple_cluster"
)

const aqaraThermostat = "lumi.airrtc.agl001"

// Catalog returns the built-in rules in registration order. Order matters for
// strict rules: the Motion overrides come after the generic Opening rule.
func Catalog() []match.Rule {
	return []match.Rule{
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelAccelerometer},
			Descriptor: entity.Descriptor{
				Name:         "Accelerometer",
				AttributeKey: "acceleration",
				DeviceClass:  entity.DeviceClassMoving,
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelOccupancy},
			Descriptor: entity.Descriptor{
				Name:         "Occupancy",
				AttributeKey: "occupancy",
				DeviceClass:  entity.DeviceClassOccupancy,
			},
		},
		{
			Strategy: match.Strict,
			Clusters: []string{ChannelOnOff},
			Descriptor: entity.Descriptor{
				Name:         "Opening",
				AttributeKey: "on_off",
				DeviceClass:  entity.DeviceClassOpening,
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelBinaryInput},
			Descriptor: entity.Descriptor{
				Name:         "BinaryInput",
				AttributeKey: "present_value",
			},
		},
		{
			Strategy:      match.Strict,
			Clusters:      []string{ChannelOnOff},
			Manufacturers: []string{"Philips"},
			Models:        match.Models("SML001", "SML002"),
			Descriptor:    motion,
		},
		{
			Strategy:      match.Strict,
			Clusters:      []string{ChannelOnOff},
			Manufacturers: []string{"IKEA of Sweden"},
			Models:        match.ModelFunc(func(m string) bool { return strings.Contains(m, "motion") }),
			Descriptor:    motion,
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelZone},
			Descriptor: entity.Descriptor{
				Name:         "IASZone",
				AttributeKey: "zone_status",
				Parse:        entity.AlarmBitmask,
				ResolveClass: entity.ZoneTypeResolver,
			},
		},
		{
			Strategy:      match.MultiPass,
			Clusters:      []string{ChannelTuya},
			Manufacturers: []string{"_TZE200_htnnfasr"},
			Descriptor: entity.Descriptor{
				Name:         "FrostLock",
				IDSuffix:     "frost_lock",
				AttributeKey: "frost_lock",
				DeviceClass:  entity.DeviceClassLock,
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelIkeaAirPurifier},
			Descriptor: entity.Descriptor{
				Name:         "ReplaceFilter",
				IDSuffix:     "replace_filter",
				AttributeKey: "replace_filter",
				DeviceClass:  entity.DeviceClassProblem,
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelOpple},
			Models:   match.Models("aqara.feeder.acn001"),
			Descriptor: entity.Descriptor{
				Name:         "AqaraPetFeederErrorDetected",
				IDSuffix:     "error_detected",
				AttributeKey: "error_detected",
				DeviceClass:  entity.DeviceClassProblem,
				DisplayName:  "Error detected",
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelOpple},
			Models:   match.Models("lumi.plug.mmeu01", "lumi.plug.maeu01"),
			Descriptor: entity.Descriptor{
				Name:         "XiaomiPlugConsumerConnected",
				IDSuffix:     "consumer_connected",
				AttributeKey: "consumer_connected",
				DeviceClass:  entity.DeviceClassPlug,
				DisplayName:  "Consumer connected",
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelOpple},
			Models:   match.Models(aqaraThermostat),
			Descriptor: entity.Descriptor{
				Name:         "AqaraThermostatWindowOpen",
				IDSuffix:     "window_open",
				AttributeKey: "window_open",
				DeviceClass:  entity.DeviceClassWindow,
				DisplayName:  "Window open",
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelOpple},
			Models:   match.Models(aqaraThermostat),
			Descriptor: entity.Descriptor{
				Name:         "AqaraThermostatValveAlarm",
				IDSuffix:     "valve_alarm",
				AttributeKey: "valve_alarm",
				DeviceClass:  entity.DeviceClassProblem,
				DisplayName:  "Valve alarm",
			},
		},
		{
			Strategy: match.ConfigDiagnostic,
			Clusters: []string{ChannelOpple},
			Models:   match.Models(aqaraThermostat),
			Descriptor: entity.Descriptor{
				Name:         "AqaraThermostatCalibrated",
				IDSuffix:     "calibrated",
				AttributeKey: "calibrated",
				DisplayName:  "Calibrated",
			},
		},
		{
			Strategy: match.ConfigDiagnostic,
			Clusters: []string{ChannelOpple},
			Models:   match.Models(aqaraThermostat),
			Descriptor: entity.Descriptor{
				Name:         "AqaraThermostatExternalSensor",
				IDSuffix:     "sensor",
				AttributeKey: "sensor",
				DisplayName:  "External sensor",
			},
		},
		{
			Strategy: match.MultiPass,
			Clusters: []string{ChannelOpple},
			Models:   match.Models("lumi.sensor_smoke.acn03"),
			Descriptor: entity.Descriptor{
				Name:         "AqaraLinkageAlarmState",
				IDSuffix:     "linkage_alarm_state",
				AttributeKey: "linkage_alarm_state",
				DeviceClass:  entity.DeviceClassSmoke,
				DisplayName:  "Linkage alarm state",
			},
		},
	}
}

var motion = entity.Descriptor{
	Name:         "Motion",
	AttributeKey: "on_off",
	DeviceClass:  entity.DeviceClassMotion,
}

// RegisterStandard registers the built-in catalog. It panics on an invalid
// rule since the catalog is fixed at compile time.
func RegisterStandard(r *match.Registry) {
	for _, rule := range Catalog() {
		r.MustRegister(rule)
	}
}
