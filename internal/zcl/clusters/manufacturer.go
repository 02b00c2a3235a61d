package clusters

import "zigbee-binary-sensor/internal/zcl"

// SmartThingsAcceleration is exposed by SmartThings multi sensors.
var SmartThingsAcceleration = zcl.ClusterDef{
	ID:           0xFC02,
	Name:         "SmartThings Acceleration",
	Channel:      "accelerometer",
	Manufacturer: true,
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "motion_threshold_multiplier", Type: zcl.TypeUint8},
		{ID: 0x0002, Name: "motion_threshold", Type: zcl.TypeUint16},
		{ID: 0x0010, Name: "acceleration", Type: zcl.TypeBitmap8},
		{ID: 0x0012, Name: "x_axis", Type: zcl.TypeInt16},
		{ID: 0x0013, Name: "y_axis", Type: zcl.TypeInt16},
		{ID: 0x0014, Name: "z_axis", Type: zcl.TypeInt16},
	},
}

// TuyaManufacturer carries Tuya data points. The attribute IDs are the ones
// the quirk layer assigns after unpacking DPs.
var TuyaManufacturer = zcl.ClusterDef{
	ID:           0xEF00,
	Name:         "Tuya Manufacturer Specific",
	Channel:      "tuya_manufacturer",
	Manufacturer: true,
	Attributes: []zcl.AttributeDef{
		{ID: 0x0107, Name: "child_lock", Type: zcl.TypeBool},
		{ID: 0x0112, Name: "window_detection", Type: zcl.TypeBool},
		{ID: 0x0114, Name: "frost_lock", Type: zcl.TypeBool},
	},
}

var IkeaAirPurifier = zcl.ClusterDef{
	ID:           0xFC7D,
	Name:         "IKEA Air Purifier",
	Channel:      "ikea_airpurifier",
	Manufacturer: true,
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "filter_run_time", Type: zcl.TypeUint32},
		{ID: 0x0001, Name: "replace_filter", Type: zcl.TypeUint8},
		{ID: 0x0002, Name: "filter_life_time", Type: zcl.TypeUint32},
		{ID: 0x0003, Name: "disable_led", Type: zcl.TypeBool},
		{ID: 0x0004, Name: "air_quality_25pm", Type: zcl.TypeUint16},
		{ID: 0x0005, Name: "child_lock", Type: zcl.TypeBool},
	},
}

// Opple is the Xiaomi/Aqara manufacturer cluster shared by many models.
var Opple = zcl.ClusterDef{
	ID:           0xFCC0,
	Name:         "Aqara Opple",
	Channel:      "opple_cluster",
	Manufacturer: true,
	Attributes: []zcl.AttributeDef{
		{ID: 0x0009, Name: "mode", Type: zcl.TypeUint8},
		{ID: 0x013B, Name: "linkage_alarm_state", Type: zcl.TypeBool},
		{ID: 0x0207, Name: "consumer_connected", Type: zcl.TypeBool},
		{ID: 0x0273, Name: "window_detection", Type: zcl.TypeUint8},
		{ID: 0x0275, Name: "valve_alarm", Type: zcl.TypeUint8},
		{ID: 0x027A, Name: "window_open", Type: zcl.TypeUint8},
		{ID: 0x027B, Name: "calibrated", Type: zcl.TypeUint8},
		{ID: 0x027E, Name: "sensor", Type: zcl.TypeUint8},
		{ID: 0x040A, Name: "error_detected", Type: zcl.TypeBool},
	},
}

// Standard returns every built-in cluster in ID order.
func Standard() []zcl.ClusterDef {
	return []zcl.ClusterDef{
		Basic,                   // 0x0000
		OnOff,                   // 0x0006
		BinaryInput,             // 0x000F
		OccupancySensing,        // 0x0406
		IASZone,                 // 0x0500
		TuyaManufacturer,        // 0xEF00
		SmartThingsAcceleration, // 0xFC02
		IkeaAirPurifier,         // 0xFC7D
		Opple,                   // 0xFCC0
	}
}
