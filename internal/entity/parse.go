package entity

import (
	"math"
	"reflect"
)

// Named parsers usable from device files.
const (
	ParserBool         = "bool"
	ParserAlarmBitmask = "alarm_bitmask"
)

// ParserByName returns a registered parser. The empty name maps to Truthy.
func ParserByName(name string) (StateParser, bool) {
	switch name {
	case "", ParserBool:
		return Truthy, true
	case ParserAlarmBitmask:
		return AlarmBitmask, true
	default:
		return nil, false
	}
}

// Truthy coerces a raw attribute value to a boolean: nil, false, zero numbers
// and empty strings, slices and maps are false; everything else is true.
// Negative or out-of-range numbers are true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Complex64, reflect.Complex128:
		return rv.Complex() != 0
	case reflect.String, reflect.Slice, reflect.Map, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	}
	return true
}

// AlarmBitmask reads an IAS zone status: only bits 0 (alarm1) and 1 (alarm2)
// carry alarm state. Values that are not integers are false.
func AlarmBitmask(v any) bool {
	n, ok := asInt(v)
	if !ok {
		return false
	}
	return Truthy(n & 0b11)
}

// asInt extracts an integer from a decoded attribute value. Floats are
// truncated, which covers numbers restored from JSON. Bools map to 0/1.
func asInt(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}
