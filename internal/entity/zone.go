package entity

// ZoneTypeAttribute is the IAS Zone attribute holding the zone type code.
const ZoneTypeAttribute = "zone_type"

// zoneTypeClasses maps IAS Zone type codes to device classes.
var zoneTypeClasses = map[int64]DeviceClass{
	0x000D: DeviceClassMotion,
	0x0015: DeviceClassOpening,
	0x0028: DeviceClassSmoke,
	0x002A: DeviceClassMoisture,
	0x002B: DeviceClassGas,
	0x002D: DeviceClassVibration,
}

// ZoneTypeClass looks up a zone type code. Unknown codes and non-numeric
// values yield DeviceClassNone.
func ZoneTypeClass(code any) DeviceClass {
	n, ok := asInt(code)
	if !ok {
		return DeviceClassNone
	}
	return zoneTypeClasses[n]
}

// ZoneTypeResolver derives the class of an IAS zone sensor from the
// zone_type attribute cached on the same cluster.
func ZoneTypeResolver(attrs AttributeReader) DeviceClass {
	v, ok := attrs.Attribute(ZoneTypeAttribute)
	if !ok {
		return DeviceClassNone
	}
	return ZoneTypeClass(v)
}
