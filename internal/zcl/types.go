package zcl

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// ZCL data type IDs
const (
	TypeNoData     uint8 = 0x00
	TypeBool       uint8 = 0x10
	TypeBitmap8    uint8 = 0x18
	TypeBitmap16   uint8 = 0x19
	TypeBitmap24   uint8 = 0x1A
	TypeBitmap32   uint8 = 0x1B
	TypeUint8      uint8 = 0x20
	TypeUint16     uint8 = 0x21
	TypeUint24     uint8 = 0x22
	TypeUint32     uint8 = 0x23
	TypeUint40     uint8 = 0x24
	TypeUint48     uint8 = 0x25
	TypeInt8       uint8 = 0x28
	TypeInt16      uint8 = 0x29
	TypeInt24      uint8 = 0x2A
	TypeInt32      uint8 = 0x2B
	TypeEnum8      uint8 = 0x30
	TypeEnum16     uint8 = 0x31
	TypeFloat32    uint8 = 0x39
	TypeFloat64    uint8 = 0x3A
	TypeOctetStr   uint8 = 0x41
	TypeCharStr    uint8 = 0x42
	TypeOctetStr16 uint8 = 0x43
	TypeCharStr16  uint8 = 0x44
	TypeUTC        uint8 = 0xE2
	TypeEUI64      uint8 = 0xF0
)

type typeInfo struct {
	name string
	size int // -1 for length-prefixed types
}

var types = map[uint8]typeInfo{
	TypeNoData:     {"nodata", 0},
	TypeBool:       {"bool", 1},
	TypeBitmap8:    {"map8", 1},
	TypeBitmap16:   {"map16", 2},
	TypeBitmap24:   {"map24", 3},
	TypeBitmap32:   {"map32", 4},
	TypeUint8:      {"uint8", 1},
	TypeUint16:     {"uint16", 2},
	TypeUint24:     {"uint24", 3},
	TypeUint32:     {"uint32", 4},
	TypeUint40:     {"uint40", 5},
	TypeUint48:     {"uint48", 6},
	TypeInt8:       {"int8", 1},
	TypeInt16:      {"int16", 2},
	TypeInt24:      {"int24", 3},
	TypeInt32:      {"int32", 4},
	TypeEnum8:      {"enum8", 1},
	TypeEnum16:     {"enum16", 2},
	TypeFloat32:    {"float32", 4},
	TypeFloat64:    {"float64", 8},
	TypeOctetStr:   {"octstr", -1},
	TypeCharStr:    {"string", -1},
	TypeOctetStr16: {"octstr16", -1},
	TypeCharStr16:  {"string16", -1},
	TypeUTC:        {"UTC", 4},
	TypeEUI64:      {"EUI64", 8},
}

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for
// variable-length and unknown types.
func TypeSize(typeID uint8) int {
	if ti, ok := types[typeID]; ok {
		return ti.size
	}
	return -1
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	if ti, ok := types[typeID]; ok {
		return ti.name
	}
	return fmt.Sprintf("0x%02X", typeID)
}

// DecodeValue decodes a ZCL typed value from raw bytes, returning the Go value and bytes consumed.
func DecodeValue(typeID uint8, data []byte) (interface{}, int, error) {
	ti, known := types[typeID]
	if !known {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	if ti.size == 0 {
		return nil, 0, nil
	}
	if ti.size < 0 {
		return decodeString(typeID, data)
	}
	if len(data) < ti.size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, ti.size, len(data))
	}

	switch typeID {
	case TypeBool:
		return data[0] != 0, 1, nil
	case TypeUint8, TypeEnum8, TypeBitmap8:
		return data[0], 1, nil
	case TypeUint16, TypeEnum16, TypeBitmap16:
		return binary.LittleEndian.Uint16(data), 2, nil
	case TypeUint24, TypeBitmap24:
		return uint32(littleEndian(data[:3])), 3, nil
	case TypeUint32, TypeBitmap32, TypeUTC:
		return binary.LittleEndian.Uint32(data), 4, nil
	case TypeUint40, TypeUint48:
		return littleEndian(data[:ti.size]), ti.size, nil
	case TypeInt8:
		return int8(data[0]), 1, nil
	case TypeInt16:
		return int16(binary.LittleEndian.Uint16(data)), 2, nil
	case TypeInt24:
		v := uint32(littleEndian(data[:3]))
		if v&0x800000 != 0 {
			v |= 0xFF000000 // sign extend
		}
		return int32(v), 3, nil
	case TypeInt32:
		return int32(binary.LittleEndian.Uint32(data)), 4, nil
	case TypeFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4, nil
	case TypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8, nil
	case TypeEUI64:
		var addr [8]byte
		copy(addr[:], data[:8])
		return addr, 8, nil
	}
	return data[:ti.size], ti.size, nil
}

func littleEndian(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func decodeString(typeID uint8, data []byte) (interface{}, int, error) {
	prefix := 1
	if typeID == TypeOctetStr16 || typeID == TypeCharStr16 {
		prefix = 2
	}
	if len(data) < prefix {
		return nil, 0, fmt.Errorf("zcl: no length prefix for type 0x%02X", typeID)
	}

	var length int
	if prefix == 1 {
		length = int(data[0])
		if length == 0xFF {
			return nil, 1, nil // invalid value
		}
	} else {
		length = int(binary.LittleEndian.Uint16(data))
		if length == 0xFFFF {
			return nil, 2, nil
		}
	}
	if len(data) < prefix+length {
		return nil, 0, fmt.Errorf("zcl: string truncated: need %d, have %d", length, len(data)-prefix)
	}

	body := data[prefix : prefix+length]
	if typeID == TypeCharStr || typeID == TypeCharStr16 {
		return string(body), prefix + length, nil
	}
	b := make([]byte, length)
	copy(b, body)
	return b, prefix + length, nil
}

// DecodeHex decodes a hex-encoded attribute value (as carried in JSON
// reports), tolerating a 0x prefix and spaces.
func DecodeHex(typeID uint8, s string) (interface{}, error) {
	s = strings.ReplaceAll(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), " ", "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("zcl: decode hex value: %w", err)
	}
	val, _, err := DecodeValue(typeID, raw)
	return val, err
}
