package xpacket

import (
	"fmt"
	"maps"
	"net"
	"net/netip"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/yanet-platform/pktstack/layer"
)

// LayerTypes maps pktstack layer names to their gopacket counterparts.
var LayerTypes = map[string]gopacket.LayerType{
	"Ether": layers.LayerTypeEthernet,
	"Dot1Q": layers.LayerTypeDot1Q,
	"ARP":   layers.LayerTypeARP,
	"IP":    layers.LayerTypeIPv4,
	"ICMP":  layers.LayerTypeICMPv4,
	"TCP":   layers.LayerTypeTCP,
	"UDP":   layers.LayerTypeUDP,
}

// Mismatch is a disagreement between a pktstack layer and gopacket.
type Mismatch struct {
	Layer string
	// Field is empty when gopacket did not decode the layer at all.
	Field  string
	Ours   any
	Theirs any
}

func (m Mismatch) String() string {
	if m.Field == "" {
		return fmt.Sprintf("%s: layer missing in reference decoding", m.Layer)
	}
	return fmt.Sprintf("%s.%s: %v != %v", m.Layer, m.Field, m.Ours, m.Theirs)
}

var cmpValues = []cmp.Option{
	cmpopts.EquateComparable(netip.Addr{}),
	cmpopts.EquateEmpty(),
}

// Compare checks every layer of pkt that has a gopacket counterpart
// against the reference decoding. Layers of the same type are paired in
// order of appearance.
func Compare(pkt *layer.Packet, ref gopacket.Packet) []Mismatch {
	var out []Mismatch

	seen := map[gopacket.LayerType]int{}
	for _, l := range pkt.Layers() {
		layerType, ok := LayerTypes[l.Name()]
		if !ok {
			continue
		}

		nth := seen[layerType]
		seen[layerType]++

		theirs := nthLayer(ref, layerType, nth)
		if theirs == nil {
			out = append(out, Mismatch{Layer: l.Name()})
			continue
		}

		fields := referenceFields(theirs)
		for _, name := range slices.Sorted(maps.Keys(fields)) {
			want := fields[name]
			ours, err := l.Get(name)
			if err != nil {
				continue
			}
			if !cmp.Equal(ours, want, cmpValues...) {
				out = append(out, Mismatch{Layer: l.Name(), Field: name, Ours: ours, Theirs: want})
			}
		}
	}

	return out
}

func nthLayer(pkt gopacket.Packet, layerType gopacket.LayerType, nth int) gopacket.Layer {
	for _, l := range pkt.Layers() {
		if l.LayerType() != layerType {
			continue
		}
		if nth == 0 {
			return l
		}
		nth--
	}
	return nil
}

// referenceFields extracts the canonical pktstack values from a gopacket
// layer.
func referenceFields(l gopacket.Layer) map[string]any {
	switch l := l.(type) {
	case *layers.Ethernet:
		return map[string]any{
			"dst":  l.DstMAC,
			"src":  l.SrcMAC,
			"type": uint64(l.EthernetType),
		}
	case *layers.Dot1Q:
		return map[string]any{
			"prio": uint64(l.Priority),
			"id":   boolBit(l.DropEligible),
			"vlan": uint64(l.VLANIdentifier),
			"type": uint64(l.Type),
		}
	case *layers.ARP:
		return map[string]any{
			"hwtype": uint64(l.AddrType),
			"ptype":  uint64(l.Protocol),
			"hwlen":  uint64(l.HwAddressSize),
			"plen":   uint64(l.ProtAddressSize),
			"op":     uint64(l.Operation),
			"hwsrc":  net.HardwareAddr(l.SourceHwAddress),
			"psrc":   addr(l.SourceProtAddress),
			"hwdst":  net.HardwareAddr(l.DstHwAddress),
			"pdst":   addr(l.DstProtAddress),
		}
	case *layers.IPv4:
		return map[string]any{
			"version": uint64(l.Version),
			"ihl":     uint64(l.IHL),
			"tos":     uint64(l.TOS),
			"len":     uint64(l.Length),
			"id":      uint64(l.Id),
			"flags":   uint64(l.Flags),
			"frag":    uint64(l.FragOffset),
			"ttl":     uint64(l.TTL),
			"proto":   uint64(l.Protocol),
			"chksum":  uint64(l.Checksum),
			"src":     addr(l.SrcIP),
			"dst":     addr(l.DstIP),
		}
	case *layers.ICMPv4:
		return map[string]any{
			"type":   uint64(l.TypeCode.Type()),
			"code":   uint64(l.TypeCode.Code()),
			"chksum": uint64(l.Checksum),
			"id":     uint64(l.Id),
			"seq":    uint64(l.Seq),
		}
	case *layers.TCP:
		return map[string]any{
			"sport":   uint64(l.SrcPort),
			"dport":   uint64(l.DstPort),
			"seq":     uint64(l.Seq),
			"ack":     uint64(l.Ack),
			"dataofs": uint64(l.DataOffset),
			"flags":   tcpFlags(l),
			"window":  uint64(l.Window),
			"chksum":  uint64(l.Checksum),
			"urgptr":  uint64(l.Urgent),
		}
	case *layers.UDP:
		return map[string]any{
			"sport":  uint64(l.SrcPort),
			"dport":  uint64(l.DstPort),
			"len":    uint64(l.Length),
			"chksum": uint64(l.Checksum),
		}
	}
	return nil
}

func addr(ip []byte) netip.Addr {
	if v4 := net.IP(ip).To4(); v4 != nil {
		a, _ := netip.AddrFromSlice(v4)
		return a
	}
	return netip.Addr{}
}

func boolBit(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func tcpFlags(l *layers.TCP) uint64 {
	bits := []bool{l.FIN, l.SYN, l.RST, l.PSH, l.ACK, l.URG, l.ECE, l.CWR}

	var out uint64
	for idx, set := range bits {
		out |= boolBit(set) << idx
	}
	return out
}
