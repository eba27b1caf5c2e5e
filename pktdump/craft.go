package pktdump

import (
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/pktstack/dissect"
	"github.com/yanet-platform/pktstack/layer"
	"github.com/yanet-platform/pktstack/protocols"
)

// CraftSpec describes a packet to build, outermost layer first.
type CraftSpec struct {
	// LinkType is the link type of the crafted pcap file.
	LinkType uint32 `yaml:"link_type"`
	// Layers is the layer stack. Unset fields keep their defaults.
	Layers []CraftLayer `yaml:"layers"`
}

// CraftLayer is one layer of a CraftSpec.
type CraftLayer struct {
	Name   string         `yaml:"name"`
	Fields map[string]any `yaml:"fields"`
}

// LoadCraftSpec loads a packet description from a YAML file.
func LoadCraftSpec(path string) (*CraftSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read packet description: %w", err)
	}

	spec := &CraftSpec{LinkType: protocols.LinkTypeEthernet}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("failed to parse packet description: %w", err)
	}
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("packet description has no layers")
	}

	return spec, nil
}

// Craft builds and serializes the packet described by spec.
func Craft(registry *dissect.Registry, spec *CraftSpec) (*layer.Packet, []byte, error) {
	stack := make([]*layer.Instance, 0, len(spec.Layers))
	for idx, l := range spec.Layers {
		def, ok := registry.Lookup(l.Name)
		if !ok {
			return nil, nil, fmt.Errorf("layer #%d: %w", idx, &layer.LookupError{Layer: l.Name})
		}

		inst := def.New()
		for _, name := range slices.Sorted(maps.Keys(l.Fields)) {
			if err := inst.Set(name, l.Fields[name]); err != nil {
				return nil, nil, fmt.Errorf("layer #%d: %w", idx, err)
			}
		}
		stack = append(stack, inst)
	}

	pkt := layer.NewPacket(stack...)
	data, err := pkt.Serialize()
	if err != nil {
		return nil, nil, err
	}
	return pkt, data, nil
}

// WriteHex writes data as a canonical hex dump.
func WriteHex(w io.Writer, data []byte) error {
	dumper := hex.Dumper(w)
	if _, err := dumper.Write(data); err != nil {
		return err
	}
	return dumper.Close()
}

// WritePcap writes data as a single-packet pcap file.
func WritePcap(w io.Writer, linkType uint32, snaplen uint32, ts time.Time, data []byte) error {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(snaplen, layers.LinkType(linkType)); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	captured := data
	if uint32(len(captured)) > snaplen {
		captured = captured[:snaplen]
	}
	err := writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(captured),
		Length:        len(data),
	}, captured)
	if err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}
