package coordinator

import (
	"encoding/binary"
	"fmt"

	"zigbee-binary-sensor/internal/zcl"
)

// Property decoders.
const (
	DecoderXiaomiTLV = "xiaomi_tlv"
	DecoderTuyaDP    = "tuya_dp"
)

// PropertySource describes a packed attribute that carries several sub-values.
// Each extracted value is pushed as a named attribute update to the Target
// cluster's channel (the source cluster when Target is nil).
type PropertySource struct {
	Cluster   uint16        `json:"cluster"`
	Attribute uint16        `json:"attribute"`
	Decoder   string        `json:"decoder"`
	Target    *uint16       `json:"target,omitempty"`
	Values    []PropertyDef `json:"values"`
}

// PropertyDef names a single value extracted from a decoded attribute.
type PropertyDef struct {
	Tag       int    `json:"tag"`
	Name      string `json:"name"`
	Transform string `json:"transform,omitempty"`
}

func (ps PropertySource) target() uint16 {
	if ps.Target != nil {
		return *ps.Target
	}
	return ps.Cluster
}

func (ps PropertySource) validate() error {
	switch ps.Decoder {
	case DecoderXiaomiTLV, DecoderTuyaDP:
	default:
		return fmt.Errorf("unknown property decoder %q", ps.Decoder)
	}
	for _, v := range ps.Values {
		if v.Name == "" {
			return fmt.Errorf("property tag %d has no name", v.Tag)
		}
		if _, ok := transforms[v.Transform]; !ok && v.Transform != "" {
			return fmt.Errorf("property %s: unknown transform %q", v.Name, v.Transform)
		}
	}
	return nil
}

// propertyValue is one attribute update produced by expanding a packed value.
type propertyValue struct {
	Cluster uint16
	Name    string
	Value   any
}

// expand decodes a packed attribute value into named updates.
func (ps PropertySource) expand(value any) ([]propertyValue, error) {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil, fmt.Errorf("decoder %s expects bytes, got %T", ps.Decoder, value)
	}

	var tags map[int]any
	var err error
	switch ps.Decoder {
	case DecoderXiaomiTLV:
		tags, err = decodeXiaomiTLV(raw)
	case DecoderTuyaDP:
		tags, err = decodeTuyaDPs(raw)
	default:
		return nil, fmt.Errorf("unknown property decoder %q", ps.Decoder)
	}
	if err != nil {
		return nil, err
	}

	out := make([]propertyValue, 0, len(ps.Values))
	for _, v := range ps.Values {
		val, ok := tags[v.Tag]
		if !ok {
			continue
		}
		if v.Transform != "" {
			val = applyTransform(v.Transform, val)
		}
		out = append(out, propertyValue{Cluster: ps.target(), Name: v.Name, Value: val})
	}
	return out, nil
}

// decodeTuyaDPs parses the Tuya DP binary payload from cluster 0xEF00.
// Format: tuya_seq(2 BE) + repeated [dp_id(1) + dp_type(1) + data_len(2 BE) + data(N)].
// Types: 0=raw, 1=bool(1B), 2=number(4B BE uint32), 3=string, 4=enum(1B), 5=bitmap(1-4B BE).
func decodeTuyaDPs(data []byte) (map[int]any, error) {
	result := make(map[int]any)
	if len(data) < 2 {
		return result, nil
	}

	pos := 2
	for pos+4 <= len(data) {
		dpID := int(data[pos])
		dpType := data[pos+1]
		dataLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4
		if pos+dataLen > len(data) {
			return result, fmt.Errorf("tuya DP %d: need %d bytes at offset %d, have %d", dpID, dataLen, pos, len(data)-pos)
		}
		dpData := data[pos : pos+dataLen]
		pos += dataLen

		switch dpType {
		case 1:
			if len(dpData) >= 1 {
				result[dpID] = dpData[0] != 0
			}
		case 2:
			if len(dpData) >= 4 {
				result[dpID] = int64(binary.BigEndian.Uint32(dpData[:4]))
			}
		case 3:
			result[dpID] = string(dpData)
		case 4:
			if len(dpData) >= 1 {
				result[dpID] = int64(dpData[0])
			}
		case 5:
			var val uint32
			for _, b := range dpData {
				val = val<<8 | uint32(b)
			}
			result[dpID] = int64(val)
		default:
			cp := make([]byte, len(dpData))
			copy(cp, dpData)
			result[dpID] = cp
		}
	}
	return result, nil
}

// decodeXiaomiTLV parses the Xiaomi TLV format: [tag:uint8][zcl_type:uint8][value].
func decodeXiaomiTLV(data []byte) (map[int]any, error) {
	result := make(map[int]any)
	pos := 0
	for pos+2 <= len(data) {
		tag := int(data[pos])
		typeID := data[pos+1]
		pos += 2

		val, consumed, err := zcl.DecodeValue(typeID, data[pos:])
		if err != nil {
			return result, fmt.Errorf("tag %d type 0x%02X at offset %d: %w", tag, typeID, pos, err)
		}
		result[tag] = val
		pos += consumed
	}
	return result, nil
}

var transforms = map[string]func(any) any{
	"bool_invert": boolInvert,
	"minus_one":   minusOne,
	"low_byte":    lowByte,
	"divide_10":   func(v any) any { return divideN(v, 10) },
	"divide_100":  func(v any) any { return divideN(v, 100) },
}

// applyTransform converts a raw decoded value using a named transform.
// Unknown names leave the value unchanged.
func applyTransform(name string, value any) any {
	if fn, ok := transforms[name]; ok {
		return fn(value)
	}
	return value
}

func divideN(value any, n int) any {
	v, ok := toNumeric(value)
	if !ok {
		return value
	}
	return float64(v) / float64(n)
}

func minusOne(value any) any {
	n, ok := toNumeric(value)
	if !ok {
		return value
	}
	return n - 1
}

// lowByte keeps bits 0-7, e.g. the state byte of a packed Aqara status word.
func lowByte(value any) any {
	n, ok := toNumeric(value)
	if !ok {
		return value
	}
	return n & 0xFF
}

func boolInvert(value any) any {
	if b, ok := value.(bool); ok {
		return !b
	}
	if n, ok := toNumeric(value); ok {
		return n == 0
	}
	return value
}

func toNumeric(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
