package protocols

import (
	"github.com/yanet-platform/pktstack/field"
	"github.com/yanet-platform/pktstack/layer"
)

// Ether is the Ethernet II header.
var Ether = layer.MustDefinition("Ether", []layer.FieldSpec{
	{Name: "dst", Kind: field.MAC{}, Default: "00:00:00:00:00:00"},
	{Name: "src", Kind: field.MAC{}, Default: "00:00:00:00:00:00"},
	{Name: "type", Kind: field.U16.AsHex(), Default: EtherTypeIPv4},
}, layer.WithProtocol("Ethernet"))

// Dot1Q is the 802.1Q VLAN tag.
var Dot1Q = layer.MustDefinition("Dot1Q", []layer.FieldSpec{
	{Name: "prio", Kind: field.Bits{Width: 3}},
	{Name: "id", Kind: field.Bits{Width: 1}},
	{Name: "vlan", Kind: field.Bits{Width: 12}, Default: 1},
	{Name: "type", Kind: field.U16.AsHex(), Default: EtherTypeIPv4},
}, layer.WithProtocol("802.1Q"))

// ARP is the Ethernet/IPv4 address resolution message.
var ARP = layer.MustDefinition("ARP", []layer.FieldSpec{
	{Name: "hwtype", Kind: field.U16.AsHex(), Default: 1},
	{Name: "ptype", Kind: field.U16.AsHex(), Default: EtherTypeIPv4},
	{Name: "hwlen", Kind: field.U8, Default: 6},
	{Name: "plen", Kind: field.U8, Default: 4},
	{Name: "op", Kind: field.Enum{Base: field.U16, Names: ARPOpNames}, Default: "who-has"},
	{Name: "hwsrc", Kind: field.MAC{}, Default: "00:00:00:00:00:00"},
	{Name: "psrc", Kind: field.IPv4{}, Default: "0.0.0.0"},
	{Name: "hwdst", Kind: field.MAC{}, Default: "00:00:00:00:00:00"},
	{Name: "pdst", Kind: field.IPv4{}, Default: "0.0.0.0"},
})
