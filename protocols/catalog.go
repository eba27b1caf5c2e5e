// Package protocols holds the built-in protocol catalog: layer definitions
// with their pre-send hooks, the bindings that chain them and the default
// link-layer table.
package protocols

import (
	"fmt"

	"github.com/yanet-platform/pktstack/dissect"
	"github.com/yanet-platform/pktstack/layer"
)

// Definitions lists every built-in layer except Raw, which every registry
// carries on its own.
func Definitions() []*layer.Definition {
	return []*layer.Definition{
		Ether,
		Dot1Q,
		ARP,
		IP,
		ICMP,
		TCP,
		UDP,
		ClassicBSDLoopback,
		OpenBSDLoopback,
		Prism,
		RIFF,
		ANI,
	}
}

// Binding is a static exact-match binding. Where optionally restricts it
// further.
type Binding struct {
	Owner  string
	Field  string
	Value  any
	Target string
	Where  []dissect.Condition
}

// firstFragment holds for IP packets carrying the start of a transport
// header.
var firstFragment = []dissect.Condition{dissect.Where("frag", dissect.Equal(0))}

// Bindings lists the built-in bindings in registration order.
func Bindings() []Binding {
	return []Binding{
		{Owner: "Ether", Field: "type", Value: EtherTypeIPv4, Target: "IP"},
		{Owner: "Ether", Field: "type", Value: EtherTypeARP, Target: "ARP"},
		{Owner: "Ether", Field: "type", Value: EtherTypeDot1Q, Target: "Dot1Q"},
		{Owner: "Dot1Q", Field: "type", Value: EtherTypeIPv4, Target: "IP"},
		{Owner: "Dot1Q", Field: "type", Value: EtherTypeARP, Target: "ARP"},
		{Owner: "Dot1Q", Field: "type", Value: EtherTypeDot1Q, Target: "Dot1Q"},
		{Owner: "ClassicBSDLoopback", Field: "header", Value: BSDLoopbackIPv4, Target: "IP"},
		{Owner: "OpenBSDLoopback", Field: "header", Value: BSDLoopbackIPv4, Target: "IP"},
		{Owner: "IP", Field: "proto", Value: IPProtoICMP, Target: "ICMP", Where: firstFragment},
		{Owner: "IP", Field: "proto", Value: IPProtoTCP, Target: "TCP", Where: firstFragment},
		{Owner: "IP", Field: "proto", Value: IPProtoUDP, Target: "UDP", Where: firstFragment},
		{Owner: "RIFF", Field: "headerid", Value: "ACON", Target: "ANI"},
	}
}

// LinkTypes returns the default link-layer table.
//
// DLT_LOOP (108) carries the OpenBSD loopback header; DLT_RAW (12) and
// LINKTYPE_RAW (101) start directly with IP.
func LinkTypes() dissect.LinkTable {
	return dissect.LinkTable{
		LinkTypeNull:        "ClassicBSDLoopback",
		LinkTypeEthernet:    "Ether",
		LinkTypeRawBSD:      "IP",
		LinkTypeRaw:         "IP",
		LinkTypeLoop:        "OpenBSDLoopback",
		LinkTypePrismHeader: "Prism",
	}
}

// NewCatalog returns a registry populated with the built-in definitions,
// bindings and link table. Options are applied after the default link
// table, so WithLinkTable replaces it.
func NewCatalog(options ...dissect.RegistryOption) (*dissect.Registry, error) {
	options = append([]dissect.RegistryOption{dissect.WithLinkTable(LinkTypes())}, options...)
	registry := dissect.New(options...)

	for _, def := range Definitions() {
		registry.Register(def)
	}
	for _, b := range Bindings() {
		if err := registry.Bind(b.Owner, b.Field, dissect.Equal(b.Value), b.Target, b.Where...); err != nil {
			return nil, fmt.Errorf("failed to bind %s.%s to %s: %w", b.Owner, b.Field, b.Target, err)
		}
	}

	return registry, nil
}
