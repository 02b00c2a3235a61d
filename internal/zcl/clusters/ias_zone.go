package clusters

import "zigbee-binary-sensor/internal/zcl"

// IASZone zone_status bits 0 and 1 are alarm1/alarm2; zone_type selects the
// sensor's device class.
var IASZone = zcl.ClusterDef{
	ID:      0x0500,
	Name:    "IAS Zone",
	Channel: "ias_zone",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zone_state", Type: zcl.TypeEnum8},
		{ID: 0x0001, Name: "zone_type", Type: zcl.TypeEnum16},
		{ID: 0x0002, Name: "zone_status", Type: zcl.TypeBitmap16},
		{ID: 0x0010, Name: "cie_addr", Type: zcl.TypeEUI64},
		{ID: 0x0011, Name: "zone_id", Type: zcl.TypeUint8},
	},
}
