package clusters

import "zigbee-binary-sensor/internal/zcl"

var OccupancySensing = zcl.ClusterDef{
	ID:      0x0406,
	Name:    "Occupancy Sensing",
	Channel: "occupancy",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "occupancy", Type: zcl.TypeBitmap8},
		{ID: 0x0001, Name: "occupancy_sensor_type", Type: zcl.TypeEnum8},
		{ID: 0x0010, Name: "pir_o_to_u_delay", Type: zcl.TypeUint16},
		{ID: 0x0011, Name: "pir_u_to_o_delay", Type: zcl.TypeUint16},
		{ID: 0x0012, Name: "pir_u_to_o_threshold", Type: zcl.TypeUint8},
	},
}
