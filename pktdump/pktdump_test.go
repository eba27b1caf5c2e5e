package pktdump

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/yanet-platform/pktstack/layer"
	"github.com/yanet-platform/pktstack/protocols"
)

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func serialize(t *testing.T, stack ...*layer.Instance) []byte {
	t.Helper()

	data, err := layer.NewPacket(stack...).Serialize()
	require.NoError(t, err)
	return data
}

func makeLayer(t *testing.T, def *layer.Definition, assignments ...layer.Assignment) *layer.Instance {
	t.Helper()

	inst, err := def.Make(assignments...)
	require.NoError(t, err)
	return inst
}

// capture writes an Ethernet pcap with one packet per second starting at
// the epoch.
func capture(t *testing.T, packets ...[]byte) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	writer := pcapgo.NewWriter(buf)
	require.NoError(t, writer.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for idx, data := range packets {
		err := writer.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(int64(idx+1), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}, data)
		require.NoError(t, err)
	}
	return buf
}

func testPackets(t *testing.T) [][]byte {
	tcp := serialize(t, protocols.Ether.New(), protocols.IP.New(), protocols.TCP.New())
	unknown := serialize(t,
		protocols.Ether.New(),
		makeLayer(t, protocols.IP, layer.With("proto", 200)),
		layer.Raw([]byte{1, 2, 3}),
	)
	udp := serialize(t,
		protocols.Ether.New(),
		makeLayer(t, protocols.IP, layer.With("proto", "udp")),
		protocols.UDP.New(),
		layer.Raw([]byte("hello")),
	)
	return [][]byte{tcp, unknown, udp}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.CrossCheck = true
	return cfg
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "pktdump.yaml", `
logging:
  level: debug
snaplen: 64KB
workers: 2
layers: ["IP", "*Loopback"]
cross_check: true
bindings:
  - owner: UDP
    field: dport
    range: [5000, 5010]
    target: RIFF
  - owner: Ether
    field: type
    value: 0x88b5
    target: Raw
link_types:
  147: IP
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, cfg.Logging.Level)
	require.Equal(t, 64*datasize.KB, cfg.Snaplen)
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, []string{"IP", "*Loopback"}, cfg.Layers)
	require.True(t, cfg.CrossCheck)
	require.Len(t, cfg.Bindings, 2)

	dumper, err := NewDumper(cfg, WithLog(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	registry := dumper.Registry()
	require.Len(t, registry.Rules("UDP"), 1)
	require.Len(t, registry.Rules("Ether"), 4)
	require.Equal(t, "IP", registry.Links()[147])
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no workers",
			content: "workers: 0\n",
		},
		{
			name:    "malformed yaml",
			content: "workers: [\n",
		},
		{
			name:    "value and range",
			content: "bindings: [{owner: IP, field: proto, value: 1, range: [1, 2], target: ICMP}]\n",
		},
		{
			name:    "reversed range",
			content: "bindings: [{owner: UDP, field: dport, range: [9, 1], target: Raw}]\n",
		},
		{
			name:    "missing target",
			content: "bindings: [{owner: IP, field: proto, value: 1}]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "pktdump.yaml", tt.content))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNewDumper_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Layers = []string{"[IP"}
	_, err := NewDumper(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.Bindings = []BindingConfig{{Owner: "Ether", Field: "type", Value: 0x0842, Target: "Dot11"}}
	_, err = NewDumper(cfg)
	require.ErrorContains(t, err, "Dot11")

	cfg = testConfig()
	cfg.LinkTypes = map[uint32]string{105: "Dot11"}
	_, err = NewDumper(cfg)
	require.Error(t, err)
}

func TestDumper_Run(t *testing.T) {
	dumper, err := NewDumper(testConfig(), WithLog(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	stats, err := dumper.Run(context.Background(), capture(t, testPackets(t)...), out)
	require.NoError(t, err)

	require.Equal(t, []string{
		"#1 1970-01-01T00:00:01Z 54 bytes: Ether / IP / TCP",
		"#2 1970-01-01T00:00:02Z 37 bytes: Ether / IP / Raw",
		"#3 1970-01-01T00:00:03Z 47 bytes: Ether / IP / UDP / Raw",
	}, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"))

	require.Equal(t, Stats{
		Packets:     3,
		Bytes:       54 + 37 + 47,
		Undissected: 2,
	}, stats)
}

func TestDumper_Run_Padding(t *testing.T) {
	frame := serialize(t, protocols.Ether.New(), protocols.IP.New(), protocols.TCP.New())
	padded := append(bytes.Clone(frame), make([]byte, 6)...)
	trailer := append(bytes.Clone(frame), 0, 0, 0x42, 0, 0, 0)

	dumper, err := NewDumper(testConfig())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	stats, err := dumper.Run(context.Background(), capture(t, padded, trailer), out)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Packets)
	require.Equal(t, 1, stats.Undissected)
	require.Contains(t, out.String(), "#1 1970-01-01T00:00:01Z 60 bytes: Ether / IP / TCP / Raw\n")
}

func TestDumper_Run_ManyPackets(t *testing.T) {
	packets := make([][]byte, 0, 2*batchSize+3)
	for idx := range cap(packets) {
		tcp := makeLayer(t, protocols.TCP, layer.With("seq", idx))
		packets = append(packets, serialize(t, protocols.Ether.New(), protocols.IP.New(), tcp))
	}

	cfg := testConfig()
	cfg.Layers = []string{"TCP"}
	dumper, err := NewDumper(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	stats, err := dumper.Run(context.Background(), capture(t, packets...), out)
	require.NoError(t, err)
	require.Equal(t, len(packets), stats.Packets)
	require.Zero(t, stats.Mismatches)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, len(packets))
	for idx, line := range lines {
		require.Contains(t, line, "TCP(sport=1024, dport=80, seq="+strconv.Itoa(idx)+",")
		require.NotContains(t, line, "Ether")
	}
}

func TestDumper_Run_DumpAndFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Layers = []string{"I*"}
	cfg.Dump = true

	dumper, err := NewDumper(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	_, err = dumper.Run(context.Background(), capture(t, testPackets(t)[0]), out)
	require.NoError(t, err)

	require.Contains(t, out.String(), "IP(version=4, ihl=5,")
	require.Contains(t, out.String(), "###[ IPv4 ]###\n")
	require.Contains(t, out.String(), "  proto   = tcp\n")
	require.NotContains(t, out.String(), "Ethernet")
	require.NotContains(t, out.String(), "TCP(")
}

func TestDumper_Run_Snaplen(t *testing.T) {
	cfg := testConfig()
	cfg.Snaplen = 20

	dumper, err := NewDumper(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	stats, err := dumper.Run(context.Background(), capture(t, testPackets(t)[0]), out)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Truncated)
	require.Equal(t, 20, stats.Bytes)
	require.Equal(t, "#1 1970-01-01T00:00:01Z 20 bytes: Ether / Raw [truncated]\n", out.String())
}

func TestDumper_Run_Errors(t *testing.T) {
	dumper, err := NewDumper(testConfig())
	require.NoError(t, err)

	_, err = dumper.Run(context.Background(), bytes.NewReader([]byte("not a pcap")), &bytes.Buffer{})
	require.Error(t, err)

	buf := &bytes.Buffer{}
	writer := pcapgo.NewWriter(buf)
	require.NoError(t, writer.WriteFileHeader(65536, layers.LinkTypeIEEE802_11))
	_, err = dumper.Run(context.Background(), buf, &bytes.Buffer{})
	require.ErrorContains(t, err, "unsupported link type")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = dumper.Run(ctx, capture(t, testPackets(t)...), &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCraft(t *testing.T) {
	path := writeFile(t, "packet.yaml", `
layers:
  - name: Ether
    fields:
      dst: "02:00:00:00:00:02"
  - name: Scruby::IP
    fields:
      proto: udp
      dst: 10.0.0.1
  - name: UDP
    fields:
      dport: 5000
  - name: Raw
    fields:
      load: hello
`)

	spec, err := LoadCraftSpec(path)
	require.NoError(t, err)
	require.Equal(t, uint32(protocols.LinkTypeEthernet), spec.LinkType)

	cfg := testConfig()
	cfg.Layers = []string{"UDP"}
	dumper, err := NewDumper(cfg)
	require.NoError(t, err)

	pkt, data, err := Craft(dumper.Registry(), spec)
	require.NoError(t, err)
	require.Equal(t, "Ether / IP / UDP / Raw", pkt.String())
	require.Len(t, data, 14+20+8+5)

	v, err := pkt.Field("UDP.len")
	require.NoError(t, err)
	require.Equal(t, uint64(13), v)

	pcap := &bytes.Buffer{}
	require.NoError(t, WritePcap(pcap, spec.LinkType, 65536, time.Unix(1, 0), data))

	out := &bytes.Buffer{}
	stats, err := dumper.Run(context.Background(), pcap, out)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Packets)
	require.Zero(t, stats.Mismatches)
	require.Contains(t, out.String(), "UDP(sport=53, dport=5000, len=13,")
}

func TestCraft_Errors(t *testing.T) {
	dumper, err := NewDumper(testConfig())
	require.NoError(t, err)

	_, _, err = Craft(dumper.Registry(), &CraftSpec{Layers: []CraftLayer{{Name: "Dot11"}}})
	var lookupErr *layer.LookupError
	require.ErrorAs(t, err, &lookupErr)

	_, _, err = Craft(dumper.Registry(), &CraftSpec{Layers: []CraftLayer{
		{Name: "IP", Fields: map[string]any{"ttl": 256}},
	}})
	require.Error(t, err)

	_, err = LoadCraftSpec(writeFile(t, "empty.yaml", "link_type: 1\n"))
	require.Error(t, err)
}

func TestWriteHex(t *testing.T) {
	data := []byte("pktstack hex dump")

	out := &bytes.Buffer{}
	require.NoError(t, WriteHex(out, data))
	require.Equal(t, hex.Dump(data), out.String())
}

func TestWritePcap_Snaplen(t *testing.T) {
	data := bytes.Repeat([]byte{0xab}, 100)

	buf := &bytes.Buffer{}
	require.NoError(t, WritePcap(buf, protocols.LinkTypeRaw, 64, time.Unix(1, 0), data))

	reader, err := pcapgo.NewReader(buf)
	require.NoError(t, err)

	got, info, err := reader.ReadPacketData()
	require.NoError(t, err)
	require.Len(t, got, 64)
	require.Equal(t, 100, info.Length)
}
