package field

import (
	"bytes"
	"net"
	"net/netip"
)

// MAC is a 6-byte hardware address.
type MAC struct{}

func (m MAC) String() string {
	return "mac"
}

func (m MAC) Zero() any {
	return net.HardwareAddr{0, 0, 0, 0, 0, 0}
}

func (m MAC) Normalize(v any) (any, error) {
	switch x := v.(type) {
	case string:
		hw, err := net.ParseMAC(x)
		if err != nil {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: err.Error()}
		}
		if len(hw) != 6 {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: "not a 48-bit address"}
		}
		return hw, nil
	case net.HardwareAddr:
		if len(x) != 6 {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: "not a 48-bit address"}
		}
		return net.HardwareAddr(bytes.Clone(x)), nil
	case [6]byte:
		return net.HardwareAddr(x[:]), nil
	}
	return nil, unsupported(m, v)
}

func (m MAC) Format(v any) string {
	hw, _ := v.(net.HardwareAddr)
	return hw.String()
}

func (m MAC) Decode(buf []byte) (any, int, error) {
	if len(buf) < 6 {
		return nil, 0, &DecodeError{Kind: m.String(), Need: 6, Have: len(buf)}
	}
	return net.HardwareAddr(bytes.Clone(buf[:6])), 6, nil
}

func (m MAC) Append(dst []byte, v any) ([]byte, error) {
	nv, err := m.Normalize(v)
	if err != nil {
		return nil, err
	}
	return append(dst, nv.(net.HardwareAddr)...), nil
}

// IPv4 is a 4-byte IPv4 address.
type IPv4 struct{}

func (m IPv4) String() string {
	return "ipv4"
}

func (m IPv4) Zero() any {
	return netip.IPv4Unspecified()
}

func (m IPv4) Normalize(v any) (any, error) {
	switch x := v.(type) {
	case string:
		addr, err := netip.ParseAddr(x)
		if err != nil {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: err.Error()}
		}
		if !addr.Is4() {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: "not an IPv4 address"}
		}
		return addr, nil
	case netip.Addr:
		if !x.Is4() {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: "not an IPv4 address"}
		}
		return x, nil
	case net.IP:
		ip4 := x.To4()
		if ip4 == nil {
			return nil, &FormatError{Kind: m.String(), Value: v, Reason: "not an IPv4 address"}
		}
		return netip.AddrFrom4([4]byte(ip4)), nil
	case [4]byte:
		return netip.AddrFrom4(x), nil
	}
	return nil, unsupported(m, v)
}

func (m IPv4) Format(v any) string {
	addr, _ := v.(netip.Addr)
	return addr.String()
}

func (m IPv4) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, &DecodeError{Kind: m.String(), Need: 4, Have: len(buf)}
	}
	return netip.AddrFrom4([4]byte(buf[:4])), 4, nil
}

func (m IPv4) Append(dst []byte, v any) ([]byte, error) {
	nv, err := m.Normalize(v)
	if err != nil {
		return nil, err
	}
	a4 := nv.(netip.Addr).As4()
	return append(dst, a4[:]...), nil
}
