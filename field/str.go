package field

import (
	"bytes"
	"fmt"
	"strconv"
)

// FixedString is a string occupying exactly Len bytes on the wire.
//
// Shorter values are padded with NUL bytes on encode and trailing NUL bytes
// are stripped on decode. A value longer than Len is rejected instead of
// being truncated, and so is a value ending in NUL, since it would not
// survive the decode side of a round trip.
type FixedString struct {
	Len int
}

func (m FixedString) String() string {
	return fmt.Sprintf("str%d", m.Len)
}

func (m FixedString) Zero() any {
	return ""
}

func (m FixedString) Normalize(v any) (any, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return nil, unsupported(m, v)
	}

	if len(s) > m.Len {
		return nil, &FormatError{
			Kind:   m.String(),
			Value:  v,
			Reason: fmt.Sprintf("%d bytes do not fit in %d", len(s), m.Len),
		}
	}
	if len(s) > 0 && s[len(s)-1] == 0 {
		return nil, &FormatError{Kind: m.String(), Value: v, Reason: "trailing NUL is reserved for padding"}
	}
	return s, nil
}

func (m FixedString) Format(v any) string {
	s, _ := v.(string)
	return strconv.Quote(s)
}

func (m FixedString) Decode(buf []byte) (any, int, error) {
	if len(buf) < m.Len {
		return nil, 0, &DecodeError{Kind: m.String(), Need: m.Len, Have: len(buf)}
	}
	return string(bytes.TrimRight(buf[:m.Len], "\x00")), m.Len, nil
}

func (m FixedString) Append(dst []byte, v any) ([]byte, error) {
	nv, err := m.Normalize(v)
	if err != nil {
		return nil, err
	}
	s := nv.(string)

	dst = append(dst, s...)
	for range m.Len - len(s) {
		dst = append(dst, 0)
	}
	return dst, nil
}

// VarString is an opaque byte string consuming the rest of the buffer. It
// may only be the last field of a layer.
type VarString struct{}

func (m VarString) String() string {
	return "bytes"
}

func (m VarString) Zero() any {
	return []byte{}
}

func (m VarString) Normalize(v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		return bytes.Clone(x), nil
	case string:
		return []byte(x), nil
	case nil:
		return []byte{}, nil
	}
	return nil, unsupported(m, v)
}

func (m VarString) Format(v any) string {
	b, _ := v.([]byte)
	return fmt.Sprintf("%q", b)
}

func (m VarString) Decode(buf []byte) (any, int, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, len(buf), nil
}

func (m VarString) Append(dst []byte, v any) ([]byte, error) {
	nv, err := m.Normalize(v)
	if err != nil {
		return nil, err
	}
	return append(dst, nv.([]byte)...), nil
}
