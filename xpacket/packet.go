// Package xpacket bridges pktstack packets and gopacket: reference frame
// builders for tests and a field-level cross-check against gopacket's
// decoders.
package xpacket

import (
	"fmt"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var serializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// LayersToBytes serializes gopacket layers with lengths and checksums
// fixed up.
func LayersToBytes(lyrs ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOptions, lyrs...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// LayersToPacket serializes gopacket layers and decodes them back as a
// frame of the given link type, failing the test on any decoding error.
func LayersToPacket(t *testing.T, linkType layers.LinkType, lyrs ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()

	data, err := LayersToBytes(lyrs...)
	require.NoError(t, err)

	pkt := gopacket.NewPacket(data, linkType, gopacket.Default)
	require.Empty(t, pkt.ErrorLayer(), "%#+v", lyrs)
	return pkt
}

// Decode decodes data with gopacket, starting from the given capture link
// type.
func Decode(linkType uint32, data []byte) (gopacket.Packet, error) {
	pkt := gopacket.NewPacket(data, layers.LinkType(linkType), gopacket.Default)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		return pkt, fmt.Errorf("failed to parse packet: %w", errLayer.Error())
	}
	return pkt, nil
}
