package protocols

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yanet-platform/pktstack/checksum"
	"github.com/yanet-platform/pktstack/dissect"
	"github.com/yanet-platform/pktstack/layer"
)

var cmpValues = []cmp.Option{
	cmpopts.EquateComparable(netip.Addr{}),
}

func newCatalog(t *testing.T) *dissect.Registry {
	t.Helper()

	registry, err := NewCatalog(dissect.WithLog(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	require.Empty(t, registry.Conflicts())
	return registry
}

func mustSerialize(t *testing.T, layers ...*layer.Instance) []byte {
	t.Helper()

	wire, err := layer.NewPacket(layers...).Serialize()
	require.NoError(t, err)
	return wire
}

func TestDefinitions_RoundTrip(t *testing.T) {
	for _, def := range Definitions() {
		t.Run(def.Name(), func(t *testing.T) {
			inst := def.New()

			wire, err := inst.Marshal()
			require.NoError(t, err)

			decoded, n, err := def.Decode(wire)
			require.NoError(t, err)
			require.Equal(t, len(wire), n)

			if diff := cmp.Diff(inst.Values(), decoded.Values(), cmpValues...); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeaderSizes(t *testing.T) {
	sizes := map[string]int{
		"Ether":              14,
		"Dot1Q":              4,
		"ARP":                28,
		"IP":                 20,
		"ICMP":               8,
		"TCP":                20,
		"UDP":                8,
		"ClassicBSDLoopback": 4,
		"OpenBSDLoopback":    4,
		"Prism":              144,
		"RIFF":               12,
		"ANI":                44,
	}

	for _, def := range Definitions() {
		wire, err := def.New().Marshal()
		require.NoError(t, err)
		require.Len(t, wire, sizes[def.Name()], def.Name())
	}
}

// IP/TCP with all defaults, from loopback to loopback.
func TestSerialize_TCP(t *testing.T) {
	ip := IP.New()
	tcp := TCP.New()

	wire := mustSerialize(t, ip, tcp)
	require.Len(t, wire, 40)

	length, err := ip.Uint("len")
	require.NoError(t, err)
	require.Equal(t, uint64(40), length)

	ipSum, err := ip.Uint("chksum")
	require.NoError(t, err)
	require.Equal(t, uint64(0x7cce), ipSum)

	tcpSum, err := tcp.Uint("chksum")
	require.NoError(t, err)
	require.Equal(t, uint64(0x8d90), tcpSum)

	require.Equal(t, uint16(0x8d90), binary.BigEndian.Uint16(wire[36:38]))
	require.True(t, checksum.Verify(wire[:20]))

	loopback := netip.MustParseAddr("127.0.0.1")
	require.True(t, checksum.VerifyIPv4Transport(loopback, loopback, IPProtoTCP, wire[20:]))

	// Serialization is idempotent.
	require.Equal(t, wire, mustSerialize(t, ip, tcp))
}

func TestSerialize_TCPPayload(t *testing.T) {
	ip := IP.New()
	tcp := TCP.New()

	wire := mustSerialize(t, ip, tcp, layer.Raw([]byte("GET")))
	require.Len(t, wire, 43)
	require.Equal(t, []byte{0x7c, 0xcb}, wire[10:12])
	require.Equal(t, []byte{0xf2, 0x47}, wire[36:38])
}

func TestSerialize_UDP(t *testing.T) {
	ip, err := IP.Make(layer.With("proto", "udp"))
	require.NoError(t, err)
	udp := UDP.New()

	wire := mustSerialize(t, ip, udp)
	require.Len(t, wire, 28)
	require.Equal(t, []byte{0x7c, 0xcf}, wire[10:12])
	require.Equal(t, []byte{0x00, 0x08}, wire[24:26])
	require.Equal(t, []byte{0x01, 0x72}, wire[26:28])

	loopback := netip.MustParseAddr("127.0.0.1")
	require.True(t, checksum.VerifyIPv4Transport(loopback, loopback, IPProtoUDP, wire[20:]))
}

func TestSerialize_UDPZeroChecksum(t *testing.T) {
	ip, err := IP.Make(layer.With("proto", "udp"))
	require.NoError(t, err)
	udp := UDP.New()

	wire := mustSerialize(t, ip, udp, layer.Raw([]byte{0x01, 0x6e}))
	require.Equal(t, []byte{0xff, 0xff}, wire[26:28])
}

func TestSerialize_ICMP(t *testing.T) {
	ip, err := IP.Make(layer.With("proto", "icmp"))
	require.NoError(t, err)
	icmp := ICMP.New()

	wire := mustSerialize(t, ip, icmp)
	require.Len(t, wire, 28)
	require.Equal(t, []byte{0x7c, 0xdf}, wire[10:12])
	require.Equal(t, []byte{0xf7, 0xff}, wire[22:24])
	require.True(t, checksum.Verify(wire[20:]))
}

func TestSerialize_TransportWithoutIP(t *testing.T) {
	tcp, err := TCP.Make(layer.With("chksum", 0x1234))
	require.NoError(t, err)
	wire := mustSerialize(t, tcp)
	require.Equal(t, []byte{0x00, 0x00}, wire[16:18])

	udp, err := UDP.Make(layer.With("chksum", 0x1234))
	require.NoError(t, err)
	wire = mustSerialize(t, udp, layer.Raw([]byte("abc")))
	require.Equal(t, []byte{0x00, 0x0b, 0x00, 0x00}, wire[4:8])
}

func TestDissect_EtherTCP(t *testing.T) {
	registry := newCatalog(t)

	eth, err := Ether.Make(
		layer.With("dst", "02:00:00:00:00:02"),
		layer.With("src", "02:00:00:00:00:01"),
	)
	require.NoError(t, err)
	wire := mustSerialize(t, eth, IP.New(), TCP.New())

	pkt, err := registry.Dissect(LinkTypeEthernet, wire)
	require.NoError(t, err)
	require.Equal(t, "Ether / IP / TCP", pkt.String())

	v, err := pkt.Field("IP.len")
	require.NoError(t, err)
	require.Equal(t, uint64(40), v)

	v, err = pkt.Field("TCP.dport")
	require.NoError(t, err)
	require.Equal(t, uint64(80), v)

	tcp, err := pkt.Layer("TCP")
	require.NoError(t, err)
	flags, err := tcp.Display("flags")
	require.NoError(t, err)
	require.Equal(t, "S", flags)

	ip, err := pkt.Layer("IP")
	require.NoError(t, err)
	proto, err := ip.Display("proto")
	require.NoError(t, err)
	require.Equal(t, "tcp", proto)
	chksum, err := ip.Display("chksum")
	require.NoError(t, err)
	require.Equal(t, "0x7cce", chksum)

	// Re-serializing a dissected packet yields the same bytes.
	again, err := pkt.Serialize()
	require.NoError(t, err)
	require.Equal(t, wire, again)
}

func TestDissect_UnknownProto(t *testing.T) {
	registry := newCatalog(t)

	ip, err := IP.Make(layer.With("proto", 200))
	require.NoError(t, err)
	wire := mustSerialize(t, ip, layer.Raw([]byte{1, 2, 3, 4, 5}))

	pkt, err := registry.Dissect(LinkTypeRaw, wire)
	require.NoError(t, err)
	require.Equal(t, "IP / Raw", pkt.String())

	raw, err := pkt.Layer(layer.RawName)
	require.NoError(t, err)
	load, err := raw.Bytes("load")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, load)
}

func TestDissect_LinkTypes(t *testing.T) {
	registry := newCatalog(t)

	icmp := func() *layer.Instance {
		ip, err := IP.Make(layer.With("proto", "icmp"))
		require.NoError(t, err)
		return ip
	}

	tests := []struct {
		name     string
		linkType uint32
		outer    *layer.Instance
		layers   string
	}{
		{
			name:     "classic loopback",
			linkType: LinkTypeNull,
			outer:    ClassicBSDLoopback.New(),
			layers:   "ClassicBSDLoopback / IP / ICMP",
		},
		{
			name:     "openbsd loopback",
			linkType: LinkTypeLoop,
			outer:    OpenBSDLoopback.New(),
			layers:   "OpenBSDLoopback / IP / ICMP",
		},
		{
			name:     "raw",
			linkType: LinkTypeRawBSD,
			layers:   "IP / ICMP",
		},
		{
			name:     "prism",
			linkType: LinkTypePrismHeader,
			outer:    Prism.New(),
			layers:   "Prism / Raw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stack []*layer.Instance
			if tt.outer != nil {
				stack = append(stack, tt.outer)
			}
			stack = append(stack, icmp(), ICMP.New())

			pkt, err := registry.Dissect(tt.linkType, mustSerialize(t, stack...))
			require.NoError(t, err)
			require.Equal(t, tt.layers, pkt.String())
		})
	}

	_, err := registry.Dissect(105, []byte{0x00})
	var lookupErr *layer.LookupError
	require.ErrorAs(t, err, &lookupErr)
}

func TestDissect_VLAN(t *testing.T) {
	registry := newCatalog(t)

	eth, err := Ether.Make(layer.With("type", EtherTypeDot1Q))
	require.NoError(t, err)
	vlan, err := Dot1Q.Make(layer.With("vlan", 100), layer.With("prio", 5))
	require.NoError(t, err)
	ip, err := IP.Make(layer.With("proto", "udp"))
	require.NoError(t, err)

	wire := mustSerialize(t, eth, vlan, ip, UDP.New())
	require.Equal(t, []byte{0xa0, 0x64}, wire[14:16])

	pkt, err := registry.Dissect(LinkTypeEthernet, wire)
	require.NoError(t, err)
	require.Equal(t, "Ether / Dot1Q / IP / UDP", pkt.String())

	v, err := pkt.Field("Dot1Q.vlan")
	require.NoError(t, err)
	require.Equal(t, uint64(100), v)
}

func TestDissect_RIFF(t *testing.T) {
	registry := newCatalog(t)

	wire := mustSerialize(t, RIFF.New(), ANI.New())
	pkt, err := registry.DissectAs("RIFF", wire)
	require.NoError(t, err)
	require.Equal(t, "RIFF / ANI", pkt.String())

	v, err := pkt.Field("ANI.frames")
	require.NoError(t, err)
	require.Equal(t, uint64(2), v)

	other, err := RIFF.Make(layer.With("headerid", "WAVE"))
	require.NoError(t, err)
	pkt, err = registry.DissectAs("RIFF", mustSerialize(t, other, layer.Raw([]byte("fmt "))))
	require.NoError(t, err)
	assert.Equal(t, "RIFF / Raw", pkt.String())
}

func TestPrism_Fields(t *testing.T) {
	prism, err := Prism.Make(
		layer.With("dev", "wlan0"),
		layer.With("signal", -42),
		layer.With("channel", 11),
	)
	require.NoError(t, err)

	wire, err := prism.Marshal()
	require.NoError(t, err)
	require.Equal(t, []byte{68, 0, 0, 0, 144, 0, 0, 0}, wire[:8])
	require.Equal(t, []byte("wlan0\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"), wire[8:24])

	decoded, _, err := Prism.Decode(wire)
	require.NoError(t, err)

	signal, err := decoded.Int("signal")
	require.NoError(t, err)
	require.Equal(t, int64(-42), signal)

	dev, err := decoded.Str("dev")
	require.NoError(t, err)
	require.Equal(t, "wlan0", dev)
}

func TestDisplayNames(t *testing.T) {
	arp := ARP.New()
	op, err := arp.Display("op")
	require.NoError(t, err)
	require.Equal(t, "who-has", op)

	icmp := ICMP.New()
	typ, err := icmp.Display("type")
	require.NoError(t, err)
	require.Equal(t, "echo-request", typ)

	tcp, err := TCP.Make(layer.With("flags", "S+A"))
	require.NoError(t, err)
	flags, err := tcp.Uint("flags")
	require.NoError(t, err)
	require.Equal(t, uint64(0x12), flags)

	eth := Ether.New()
	typ, err = eth.Display("type")
	require.NoError(t, err)
	require.Equal(t, "0x0800", typ)
}

func TestSerialize_ReplacedIP(t *testing.T) {
	registry := newCatalog(t)
	registry.Register(layer.MustDefinition("IP", IP.Fields(), layer.WithProtocol("IPv4"), layer.WithHook(ipHook)))

	def, ok := registry.Lookup("IP")
	require.True(t, ok)
	require.NotSame(t, IP, def)

	tcp := TCP.New()
	mustSerialize(t, def.New(), tcp)
	sum, err := tcp.Uint("chksum")
	require.NoError(t, err)
	require.Equal(t, uint64(0x8d90), sum)

	ip := def.New()
	require.NoError(t, ip.Set("proto", "udp"))
	wire := mustSerialize(t, ip, UDP.New())
	require.Equal(t, []byte{0x01, 0x72}, wire[26:28])
}

func TestDissect_IPFragments(t *testing.T) {
	registry := newCatalog(t)

	tests := []struct {
		name   string
		frag   int
		layers string
	}{
		{name: "first fragment", frag: 0, layers: "IP / TCP / Raw"},
		{name: "later fragment", frag: 100, layers: "IP / Raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, err := IP.Make(layer.With("frag", tt.frag), layer.With("flags", "MF"))
			require.NoError(t, err)
			wire := mustSerialize(t, ip, layer.Raw(bytes.Repeat([]byte{0x5a}, 24)))

			pkt, err := registry.Dissect(LinkTypeRaw, wire)
			require.NoError(t, err)
			require.Equal(t, tt.layers, pkt.String())
		})
	}
}

// Frames shorter than the Ethernet minimum are zero padded; the padding
// stays in a Raw tail.
func TestDissect_EthernetPadding(t *testing.T) {
	registry := newCatalog(t)

	wire := mustSerialize(t, Ether.New(), IP.New(), TCP.New())
	wire = append(wire, make([]byte, 6)...)
	require.Len(t, wire, 60)

	pkt, err := registry.Dissect(LinkTypeEthernet, wire)
	require.NoError(t, err)
	require.Equal(t, "Ether / IP / TCP / Raw", pkt.String())

	v, err := pkt.Field("IP.len")
	require.NoError(t, err)
	require.Equal(t, uint64(40), v)

	load, err := pkt.Field("Raw.load")
	require.NoError(t, err)
	require.Equal(t, make([]byte, 6), load)
}

func TestDissect_ByteAccounting(t *testing.T) {
	registry := newCatalog(t)

	tcp := mustSerialize(t, Ether.New(), IP.New(), TCP.New())
	vlan, err := Ether.Make(layer.With("type", EtherTypeDot1Q))
	require.NoError(t, err)
	stacked := mustSerialize(t, vlan, Dot1Q.New(), IP.New(), UDP.New(), layer.Raw([]byte("payload")))

	garbage := make([]byte, 97)
	for idx := range garbage {
		garbage[idx] = byte(idx*37 + 11)
	}

	tests := []struct {
		name     string
		linkType uint32
		buf      []byte
	}{
		{name: "empty", linkType: LinkTypeEthernet, buf: nil},
		{name: "truncated ether", linkType: LinkTypeEthernet, buf: tcp[:10]},
		{name: "truncated ip", linkType: LinkTypeEthernet, buf: tcp[:24]},
		{name: "truncated tcp", linkType: LinkTypeEthernet, buf: tcp[:50]},
		{name: "full tcp", linkType: LinkTypeEthernet, buf: tcp},
		{name: "vlan udp", linkType: LinkTypeEthernet, buf: stacked},
		{name: "truncated vlan", linkType: LinkTypeEthernet, buf: stacked[:16]},
		{name: "nested vlan tags", linkType: LinkTypeEthernet, buf: append(make([]byte, 6), bytes.Repeat([]byte{0x81, 0x00}, 20)...)},
		{name: "garbage ether", linkType: LinkTypeEthernet, buf: garbage},
		{name: "garbage ip", linkType: LinkTypeRaw, buf: garbage},
		{name: "garbage loopback", linkType: LinkTypeNull, buf: garbage},
		{name: "garbage prism", linkType: LinkTypePrismHeader, buf: append(bytes.Clone(garbage), garbage...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := registry.Dissect(tt.linkType, tt.buf)
			require.NoError(t, err)

			total := 0
			var out []byte
			for _, l := range pkt.Layers() {
				wire, err := l.Marshal()
				require.NoError(t, err)
				total += len(wire)
				out = append(out, wire...)
			}
			require.Equal(t, len(tt.buf), total, pkt.String())
			require.True(t, bytes.Equal(tt.buf, out), "%x != %x", tt.buf, out)
		})
	}
}
