package clusters

import "zigbee-binary-sensor/internal/zcl"

var OnOff = zcl.ClusterDef{
	ID:      0x0006,
	Name:    "On/Off",
	Channel: "on_off",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "on_off", Type: zcl.TypeBool},
		{ID: 0x4000, Name: "global_scene_control", Type: zcl.TypeBool},
		{ID: 0x4001, Name: "on_time", Type: zcl.TypeUint16},
		{ID: 0x4002, Name: "off_wait_time", Type: zcl.TypeUint16},
		{ID: 0x4003, Name: "start_up_on_off", Type: zcl.TypeEnum8},
	},
}
