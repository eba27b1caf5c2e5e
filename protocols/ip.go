package protocols

import (
	"github.com/yanet-platform/pktstack/checksum"
	"github.com/yanet-platform/pktstack/field"
	"github.com/yanet-platform/pktstack/layer"
)

const (
	ipv4HeaderLen = 20
	udpHeaderLen  = 8
)

// IP is the IPv4 header without options.
//
// Its hook sets "len" to the header plus payload length and fills the
// header checksum.
var IP = layer.MustDefinition("IP", []layer.FieldSpec{
	{Name: "version", Kind: field.Bits{Width: 4}, Default: 4},
	{Name: "ihl", Kind: field.Bits{Width: 4}, Default: 5},
	{Name: "tos", Kind: field.U8.AsHex()},
	{Name: "len", Kind: field.U16, Default: ipv4HeaderLen},
	{Name: "id", Kind: field.U16.AsHex()},
	{Name: "flags", Kind: field.Flags{Base: field.Bits{Width: 3}, Names: IPFlagNames}},
	{Name: "frag", Kind: field.Bits{Width: 13}},
	{Name: "ttl", Kind: field.U8, Default: 64},
	{Name: "proto", Kind: field.Enum{Base: field.U8, Names: IPProtoNames}, Default: IPProtoTCP},
	{Name: "chksum", Kind: field.U16.AsHex()},
	{Name: "src", Kind: field.IPv4{}, Default: "127.0.0.1"},
	{Name: "dst", Kind: field.IPv4{}, Default: "127.0.0.1"},
}, layer.WithProtocol("IPv4"), layer.WithHook(ipHook))

func ipHook(l *layer.Instance, _ *layer.Instance, payload []byte) error {
	if err := l.Set("len", ipv4HeaderLen+len(payload)); err != nil {
		return err
	}
	if err := l.Set("chksum", 0); err != nil {
		return err
	}
	hdr, err := l.Marshal()
	if err != nil {
		return err
	}
	return l.Set("chksum", checksum.Checksum(hdr))
}

// ICMP is the ICMP header with the echo identifier and sequence number.
var ICMP = layer.MustDefinition("ICMP", []layer.FieldSpec{
	{Name: "type", Kind: field.Enum{Base: field.U8, Names: ICMPTypeNames}, Default: ICMPEchoRequest},
	{Name: "code", Kind: field.U8},
	{Name: "chksum", Kind: field.U16.AsHex()},
	{Name: "id", Kind: field.U16.AsHex()},
	{Name: "seq", Kind: field.U16.AsHex()},
}, layer.WithHook(icmpHook))

func icmpHook(l *layer.Instance, _ *layer.Instance, payload []byte) error {
	if err := l.Set("chksum", 0); err != nil {
		return err
	}
	hdr, err := l.Marshal()
	if err != nil {
		return err
	}

	var acc checksum.Accumulator
	acc.Write(hdr)
	acc.Write(payload)
	return l.Set("chksum", acc.Sum16())
}

// TCP is the TCP header without options.
//
// The checksum covers the IPv4 pseudo-header and therefore needs an IP
// layer right below; without one it is left at zero.
var TCP = layer.MustDefinition("TCP", []layer.FieldSpec{
	{Name: "sport", Kind: field.U16, Default: 1024},
	{Name: "dport", Kind: field.U16, Default: 80},
	{Name: "seq", Kind: field.U32},
	{Name: "ack", Kind: field.U32},
	{Name: "dataofs", Kind: field.Bits{Width: 4}, Default: 5},
	{Name: "reserved", Kind: field.Bits{Width: 4}},
	{Name: "flags", Kind: field.Flags{Base: field.U8.AsHex(), Names: TCPFlagNames}, Default: "S"},
	{Name: "window", Kind: field.U16, Default: 8192},
	{Name: "chksum", Kind: field.U16.AsHex()},
	{Name: "urgptr", Kind: field.U16},
}, layer.WithHook(tcpHook))

func tcpHook(l *layer.Instance, under *layer.Instance, payload []byte) error {
	sum, err := transportChecksum(l, under, payload)
	if err != nil {
		return err
	}
	return l.Set("chksum", sum)
}

// UDP is the UDP header. Its hook sets "len" and, above IP, the checksum.
var UDP = layer.MustDefinition("UDP", []layer.FieldSpec{
	{Name: "sport", Kind: field.U16, Default: 53},
	{Name: "dport", Kind: field.U16, Default: 53},
	{Name: "len", Kind: field.U16, Default: udpHeaderLen},
	{Name: "chksum", Kind: field.U16.AsHex()},
}, layer.WithHook(udpHook))

func udpHook(l *layer.Instance, under *layer.Instance, payload []byte) error {
	if err := l.Set("len", udpHeaderLen+len(payload)); err != nil {
		return err
	}

	sum, err := transportChecksum(l, under, payload)
	if err != nil {
		return err
	}
	// Zero means "no checksum" in UDP, so a computed zero goes out as
	// all ones.
	if sum == 0 && isIPv4(under) {
		sum = 0xffff
	}
	return l.Set("chksum", sum)
}

// isIPv4 reports whether l is an IP layer. Layers are matched by name so
// that a registered replacement of IP still counts.
func isIPv4(l *layer.Instance) bool {
	return l != nil && l.Name() == IP.Name()
}

// transportChecksum computes the checksum of l over the IPv4 pseudo-header
// taken from under. It returns zero when under is not IP.
func transportChecksum(l *layer.Instance, under *layer.Instance, payload []byte) (uint16, error) {
	if err := l.Set("chksum", 0); err != nil {
		return 0, err
	}
	if !isIPv4(under) {
		return 0, nil
	}

	src, err := under.Addr("src")
	if err != nil {
		return 0, err
	}
	dst, err := under.Addr("dst")
	if err != nil {
		return 0, err
	}
	proto, err := under.Uint("proto")
	if err != nil {
		return 0, err
	}

	hdr, err := l.Marshal()
	if err != nil {
		return 0, err
	}

	var acc checksum.Accumulator
	acc.Write(checksum.PseudoHeaderIPv4(src, dst, uint8(proto), uint16(len(hdr)+len(payload))))
	acc.Write(hdr)
	acc.Write(payload)
	return acc.Sum16(), nil
}
