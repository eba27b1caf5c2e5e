package field

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Common fixed-width integers.
var (
	U8     = FixedInt{Size: 1}
	U16    = FixedInt{Size: 2}
	U32    = FixedInt{Size: 4}
	U64    = FixedInt{Size: 8}
	LE16   = FixedInt{Size: 2, Order: binary.LittleEndian}
	LE32   = FixedInt{Size: 4, Order: binary.LittleEndian}
	SLE32  = FixedInt{Size: 4, Order: binary.LittleEndian, Signed: true}
	Host32 = FixedInt{Size: 4, Order: binary.NativeEndian}
)

// FixedInt is a byte-aligned integer of 1, 2, 4 or 8 bytes.
type FixedInt struct {
	Size   int
	Signed bool
	// Order defaults to network byte order.
	Order binary.ByteOrder
	// Hex selects hexadecimal display.
	Hex bool
}

// AsHex returns a copy of the kind displayed in hexadecimal.
func (m FixedInt) AsHex() FixedInt {
	m.Hex = true
	return m
}

func (m FixedInt) order() binary.ByteOrder {
	if m.Order == nil {
		return binary.BigEndian
	}
	return m.Order
}

func (m FixedInt) String() string {
	sign := "uint"
	if m.Signed {
		sign = "int"
	}

	suffix := ""
	if m.Size > 1 {
		switch m.order() {
		case binary.LittleEndian:
			suffix = "le"
		case binary.BigEndian:
			suffix = "be"
		default:
			suffix = "host"
		}
	}
	return fmt.Sprintf("%s%d%s", sign, m.Size*8, suffix)
}

func (m FixedInt) Zero() any {
	if m.Signed {
		return int64(0)
	}
	return uint64(0)
}

func (m FixedInt) Normalize(v any) (any, error) {
	if s, ok := v.(string); ok {
		parsed, err := parseInteger(s)
		if err != nil {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: err.Error()}
		}
		v = parsed
	}

	mag, neg, ok := integer(v)
	if !ok {
		return nil, unsupported(m, v)
	}

	width := m.Size * 8
	if !m.Signed {
		if neg || mag > mask(width) {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: "out of range"}
		}
		return mag, nil
	}

	limit := uint64(1) << (width - 1)
	if (!neg && mag >= limit) || (neg && mag > limit) {
		return nil, &FormatError{Kind: m.String(), Value: v, Reason: "out of range"}
	}
	if neg {
		return -int64(mag-1) - 1, nil
	}
	return int64(mag), nil
}

func (m FixedInt) Format(v any) string {
	switch x := v.(type) {
	case int64:
		if m.Hex {
			return fmt.Sprintf("%#x", x)
		}
		return strconv.FormatInt(x, 10)
	case uint64:
		if m.Hex {
			return fmt.Sprintf("0x%0*x", m.Size*2, x)
		}
		return strconv.FormatUint(x, 10)
	}
	return fmt.Sprint(v)
}

func (m FixedInt) Decode(buf []byte) (any, int, error) {
	if len(buf) < m.Size {
		return nil, 0, &DecodeError{Kind: m.String(), Need: m.Size, Have: len(buf)}
	}

	var raw uint64
	order := m.order()
	switch m.Size {
	case 1:
		raw = uint64(buf[0])
	case 2:
		raw = uint64(order.Uint16(buf))
	case 4:
		raw = uint64(order.Uint32(buf))
	case 8:
		raw = order.Uint64(buf)
	default:
		return nil, 0, fmt.Errorf("unsupported integer size %d", m.Size)
	}

	if !m.Signed {
		return raw, m.Size, nil
	}

	// Sign extend.
	shift := 64 - m.Size*8
	return int64(raw<<shift) >> shift, m.Size, nil
}

func (m FixedInt) Append(dst []byte, v any) ([]byte, error) {
	nv, err := m.Normalize(v)
	if err != nil {
		return nil, err
	}

	var raw uint64
	switch x := nv.(type) {
	case uint64:
		raw = x
	case int64:
		raw = uint64(x) & mask(m.Size*8)
	}

	var buf [8]byte
	order := m.order()
	switch m.Size {
	case 1:
		buf[0] = byte(raw)
	case 2:
		order.PutUint16(buf[:], uint16(raw))
	case 4:
		order.PutUint32(buf[:], uint32(raw))
	case 8:
		order.PutUint64(buf[:], raw)
	default:
		return nil, fmt.Errorf("unsupported integer size %d", m.Size)
	}
	return append(dst, buf[:m.Size]...), nil
}

// Bits is an unsigned integer occupying Width bits of a bit group.
type Bits struct {
	Width int
}

func (m Bits) String() string {
	return fmt.Sprintf("bits%d", m.Width)
}

func (m Bits) Bits() int {
	return m.Width
}

func (m Bits) Zero() any {
	return uint64(0)
}

func (m Bits) Normalize(v any) (any, error) {
	if s, ok := v.(string); ok {
		parsed, err := parseInteger(s)
		if err != nil {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: err.Error()}
		}
		v = parsed
	}

	mag, neg, ok := integer(v)
	if !ok {
		return nil, unsupported(m, v)
	}
	if neg || mag > mask(m.Width) {
		return nil, &FormatError{Kind: m.String(), Value: v, Reason: "out of range"}
	}
	return mag, nil
}

func (m Bits) Format(v any) string {
	return fmt.Sprint(v)
}

// Enum is an integer with symbolic names for some of its values.
//
// Decoded values stay integers; Name exposes the mapping. Normalize accepts
// either the integer or one of the names.
type Enum struct {
	Base  Kind
	Names map[uint64]string
}

func (m Enum) String() string {
	return "enum(" + m.Base.String() + ")"
}

func (m Enum) Bits() int {
	if w, ok := BitWidth(m.Base); ok {
		return w
	}
	return 0
}

func (m Enum) Zero() any {
	return m.Base.Zero()
}

// Name returns the symbolic name of v.
func (m Enum) Name(v any) (string, bool) {
	u, ok := v.(uint64)
	if !ok {
		return "", false
	}
	name, ok := m.Names[u]
	return name, ok
}

// Value resolves a symbolic name.
func (m Enum) Value(name string) (uint64, bool) {
	for v, n := range m.Names {
		if n == name {
			return v, true
		}
	}
	return 0, false
}

func (m Enum) Normalize(v any) (any, error) {
	if s, ok := v.(string); ok {
		if value, ok := m.Value(s); ok {
			return m.Base.Normalize(value)
		}
		if _, err := parseInteger(s); err != nil {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: "unknown name"}
		}
	}
	return m.Base.Normalize(v)
}

func (m Enum) Format(v any) string {
	if name, ok := m.Name(v); ok {
		return name
	}
	return m.Base.Format(v)
}

func (m Enum) Decode(buf []byte) (any, int, error) {
	codec, ok := m.Base.(Codec)
	if !ok {
		return nil, 0, fmt.Errorf("%s is bit-packed", m)
	}
	return codec.Decode(buf)
}

func (m Enum) Append(dst []byte, v any) ([]byte, error) {
	codec, ok := m.Base.(Codec)
	if !ok {
		return nil, fmt.Errorf("%s is bit-packed", m)
	}
	nv, err := m.Normalize(v)
	if err != nil {
		return nil, err
	}
	return codec.Append(dst, nv)
}

// Flags is an integer whose bit i is named Names[i].
type Flags struct {
	Base  Kind
	Names []string
}

func (m Flags) String() string {
	return "flags(" + m.Base.String() + ")"
}

func (m Flags) Bits() int {
	if w, ok := BitWidth(m.Base); ok {
		return w
	}
	return 0
}

func (m Flags) Zero() any {
	return m.Base.Zero()
}

// Normalize accepts an integer, a numeric string, or flag names joined by
// "+" such as "S+A".
func (m Flags) Normalize(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return m.Base.Normalize(v)
	}
	if _, err := parseInteger(s); err == nil {
		return m.Base.Normalize(s)
	}

	var value uint64
	if s != "" {
		for _, name := range strings.Split(s, "+") {
			idx := slices.Index(m.Names, name)
			if idx < 0 {
				return nil, &FormatError{Kind: m.String(), Value: v, Reason: fmt.Sprintf("unknown flag %q", name)}
			}
			value |= 1 << idx
		}
	}
	return m.Base.Normalize(value)
}

func (m Flags) Format(v any) string {
	u, ok := v.(uint64)
	if !ok || u == 0 {
		return m.Base.Format(v)
	}

	var names []string
	for idx, name := range m.Names {
		if u&(1<<idx) != 0 {
			names = append(names, name)
			u &^= 1 << idx
		}
	}
	if u != 0 {
		names = append(names, fmt.Sprintf("%#x", u))
	}
	return strings.Join(names, "+")
}

func (m Flags) Decode(buf []byte) (any, int, error) {
	codec, ok := m.Base.(Codec)
	if !ok {
		return nil, 0, fmt.Errorf("%s is bit-packed", m)
	}
	return codec.Decode(buf)
}

func (m Flags) Append(dst []byte, v any) ([]byte, error) {
	codec, ok := m.Base.(Codec)
	if !ok {
		return nil, fmt.Errorf("%s is bit-packed", m)
	}
	nv, err := m.Normalize(v)
	if err != nil {
		return nil, err
	}
	return codec.Append(dst, nv)
}

// integer splits any Go integer into magnitude and sign.
func integer(v any) (mag uint64, neg bool, ok bool) {
	signed := func(x int64) (uint64, bool, bool) {
		if x < 0 {
			if x == math.MinInt64 {
				return 1 << 63, true, true
			}
			return uint64(-x), true, true
		}
		return uint64(x), false, true
	}

	switch x := v.(type) {
	case int:
		return signed(int64(x))
	case int8:
		return signed(int64(x))
	case int16:
		return signed(int64(x))
	case int32:
		return signed(int64(x))
	case int64:
		return signed(x)
	case uint:
		return uint64(x), false, true
	case uint8:
		return uint64(x), false, true
	case uint16:
		return uint64(x), false, true
	case uint32:
		return uint64(x), false, true
	case uint64:
		return x, false, true
	}
	return 0, false, false
}

// parseInteger accepts decimal, 0x, 0o and 0b prefixed integers with an
// optional leading minus sign.
func parseInteger(s string) (any, error) {
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer")
		}
		return v, nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("not an integer")
	}
	return v, nil
}
