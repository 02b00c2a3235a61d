// Package clusters holds the cluster definitions binary sensors bind to.
package clusters

import "zigbee-binary-sensor/internal/zcl"

var Basic = zcl.ClusterDef{
	ID:      0x0000,
	Name:    "Basic",
	Channel: "basic",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zcl_version", Type: zcl.TypeUint8},
		{ID: 0x0004, Name: "manufacturer", Type: zcl.TypeCharStr},
		{ID: 0x0005, Name: "model", Type: zcl.TypeCharStr},
		{ID: 0x0006, Name: "date_code", Type: zcl.TypeCharStr},
		{ID: 0x0007, Name: "power_source", Type: zcl.TypeEnum8},
		{ID: 0x4000, Name: "sw_build_id", Type: zcl.TypeCharStr},
	},
}
