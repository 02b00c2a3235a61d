package clusters

import "zigbee-binary-sensor/internal/zcl"

var BinaryInput = zcl.ClusterDef{
	ID:      0x000F,
	Name:    "Binary Input (Basic)",
	Channel: "binary_input",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0004, Name: "active_text", Type: zcl.TypeCharStr},
		{ID: 0x001C, Name: "description", Type: zcl.TypeCharStr},
		{ID: 0x002E, Name: "inactive_text", Type: zcl.TypeCharStr},
		{ID: 0x0051, Name: "out_of_service", Type: zcl.TypeBool},
		{ID: 0x0054, Name: "polarity", Type: zcl.TypeEnum8},
		{ID: 0x0055, Name: "present_value", Type: zcl.TypeBool},
		{ID: 0x0067, Name: "reliability", Type: zcl.TypeEnum8},
		{ID: 0x006F, Name: "status_flags", Type: zcl.TypeBitmap8},
		{ID: 0x0100, Name: "application_type", Type: zcl.TypeUint32},
	},
}
