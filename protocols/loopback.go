package protocols

import (
	"github.com/yanet-platform/pktstack/field"
	"github.com/yanet-platform/pktstack/layer"
)

// ClassicBSDLoopback is the DLT_NULL header used by NetBSD, FreeBSD and
// macOS: the address family in host byte order.
var ClassicBSDLoopback = layer.MustDefinition("ClassicBSDLoopback", []layer.FieldSpec{
	{Name: "header", Kind: field.Host32, Default: BSDLoopbackIPv4},
}, layer.WithProtocol("Classic BSD loopback"))

// OpenBSDLoopback is the OpenBSD loopback header.
var OpenBSDLoopback = layer.MustDefinition("OpenBSDLoopback", []layer.FieldSpec{
	{Name: "header", Kind: field.LE32, Default: BSDLoopbackIPv4},
}, layer.WithProtocol("OpenBSD loopback"))

// Prism is the 144-byte Prism monitoring header prepended by some 802.11
// drivers. Every item is a did/status/len/value quadruple.
var Prism = layer.MustDefinition("Prism", prismFields())

var prismItems = []string{
	"hosttime",
	"mactime",
	"channel",
	"rssi",
	"sq",
	"signal",
	"noise",
	"rate",
	"istx",
	"frmlen",
}

func prismFields() []layer.FieldSpec {
	fields := []layer.FieldSpec{
		{Name: "msgcode", Kind: field.LE32, Default: 68},
		{Name: "len", Kind: field.LE32, Default: 144},
		{Name: "dev", Kind: field.FixedString{Len: 16}},
	}

	for _, item := range prismItems {
		value := field.LE32
		if item == "signal" {
			value = field.SLE32
		}

		fields = append(fields,
			layer.FieldSpec{Name: item + "_did", Kind: field.LE32},
			layer.FieldSpec{Name: item + "_status", Kind: field.LE16},
			layer.FieldSpec{Name: item + "_len", Kind: field.LE16},
			layer.FieldSpec{Name: item, Kind: value},
		)
	}
	return fields
}
