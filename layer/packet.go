package layer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yanet-platform/pktstack/field"
)

// RawName is the name of the opaque tail layer.
const RawName = "Raw"

// RawDefinition is the opaque tail layer: a single "load" field holding
// whatever bytes no other layer claimed.
var RawDefinition = MustDefinition(
	RawName,
	[]FieldSpec{
		{Name: "load", Kind: field.VarString{}},
	},
	WithProtocol("Raw data"),
)

// Raw returns a Raw layer carrying a copy of data.
func Raw(data []byte) *Instance {
	inst := RawDefinition.New()
	// VarString accepts any byte slice.
	_ = inst.Set("load", data)
	return inst
}

// Packet is an ordered stack of layers, outermost first. Each layer owns
// the next one as its payload; the innermost layer is usually Raw.
type Packet struct {
	head *Instance
}

// NewPacket links the given layers, each carrying the next one, and
// returns the resulting stack. The payload of the last layer is kept.
func NewPacket(layers ...*Instance) *Packet {
	if len(layers) == 0 {
		return &Packet{}
	}
	for idx := 0; idx+1 < len(layers); idx++ {
		layers[idx].payload = layers[idx+1]
	}
	return &Packet{head: layers[0]}
}

// Head returns the outermost layer, or nil for an empty packet.
func (m *Packet) Head() *Instance {
	return m.head
}

// Layers returns the stack, outermost first.
func (m *Packet) Layers() []*Instance {
	var out []*Instance
	for l := m.head; l != nil; l = l.payload {
		out = append(out, l)
	}
	return out
}

// Layer returns the first layer with the given name.
func (m *Packet) Layer(name string) (*Instance, error) {
	for l := m.head; l != nil; l = l.payload {
		if l.def.name == name {
			return l, nil
		}
	}
	return nil, &LookupError{Layer: name}
}

// LayerAt returns the layer at index idx, zero being the outermost.
func (m *Packet) LayerAt(idx int) (*Instance, error) {
	if idx >= 0 {
		i := 0
		for l := m.head; l != nil; l = l.payload {
			if i == idx {
				return l, nil
			}
			i++
		}
	}
	return nil, &LookupError{Layer: strconv.Itoa(idx)}
}

// Has reports whether the stack contains the named layer.
func (m *Packet) Has(name string) bool {
	_, err := m.Layer(name)
	return err == nil
}

// Field resolves a "layer.field" path, where layer is either a layer name
// or a zero-based index, e.g. "IP.src" or "1.src".
func (m *Packet) Field(path string) (any, error) {
	l, name, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	return l.Get(name)
}

// SetField assigns a value through a "layer.field" path.
func (m *Packet) SetField(path string, v any) error {
	l, name, err := m.resolve(path)
	if err != nil {
		return err
	}
	return l.Set(name, v)
}

func (m *Packet) resolve(path string) (*Instance, string, error) {
	layerName, fieldName, ok := strings.Cut(path, ".")
	if !ok {
		return nil, "", &LookupError{Layer: path, Field: "?"}
	}

	if idx, err := strconv.Atoi(layerName); err == nil {
		l, err := m.LayerAt(idx)
		return l, fieldName, err
	}
	l, err := m.Layer(layerName)
	return l, fieldName, err
}

// Serialize encodes the stack bottom-up.
//
// The innermost layer is encoded first; every enclosing layer then gets the
// already encoded bytes as payload, along with its own enclosing layer, so
// that length and checksum hooks observe final values. Hooks mutate the
// instances they manage.
func (m *Packet) Serialize() ([]byte, error) {
	layers := m.Layers()

	var payload []byte
	for idx := len(layers) - 1; idx >= 0; idx-- {
		var under *Instance
		if idx > 0 {
			under = layers[idx-1]
		}

		hdr, err := layers[idx].Encode(under, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize layer #%d: %w", idx, err)
		}
		payload = append(hdr, payload...)
	}

	if payload == nil {
		payload = []byte{}
	}
	return payload, nil
}

// String renders the layer names, e.g. "Ether / IP / TCP / Raw".
func (m *Packet) String() string {
	names := make([]string, 0, 4)
	for l := m.head; l != nil; l = l.payload {
		names = append(names, l.def.name)
	}
	return strings.Join(names, " / ")
}

// Dump renders every field of every layer, one per line.
func (m *Packet) Dump() string {
	var b strings.Builder
	for l := m.head; l != nil; l = l.payload {
		l.dump(&b)
	}
	return b.String()
}
