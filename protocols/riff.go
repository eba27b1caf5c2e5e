package protocols

import (
	"github.com/yanet-platform/pktstack/field"
	"github.com/yanet-platform/pktstack/layer"
)

// RIFF is the RIFF file header.
var RIFF = layer.MustDefinition("RIFF", []layer.FieldSpec{
	{Name: "id", Kind: field.FixedString{Len: 4}, Default: "RIFF"},
	{Name: "size", Kind: field.LE32},
	{Name: "headerid", Kind: field.FixedString{Len: 4}, Default: "ACON"},
}, layer.WithProtocol("RIFF chunk"))

// ANI is the "anih" chunk of an animated cursor.
var ANI = layer.MustDefinition("ANI", []layer.FieldSpec{
	{Name: "id", Kind: field.FixedString{Len: 4}, Default: "anih"},
	{Name: "size", Kind: field.LE32, Default: 36},
	{Name: "headersize", Kind: field.LE32, Default: 36},
	{Name: "frames", Kind: field.LE32, Default: 2},
	{Name: "steps", Kind: field.LE32},
	{Name: "width", Kind: field.LE32},
	{Name: "height", Kind: field.LE32},
	{Name: "bitcount", Kind: field.LE32},
	{Name: "planes", Kind: field.LE32},
	{Name: "displayrate", Kind: field.LE32},
	{Name: "icon", Kind: field.Bits{Width: 1}},
	{Name: "sequence", Kind: field.Bits{Width: 1}},
	{Name: "reserved", Kind: field.Bits{Width: 30}},
}, layer.WithProtocol("ANI chunk"))
