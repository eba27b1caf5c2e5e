package layer

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/yanet-platform/pktstack/field"
)

// Instance holds concrete field values for one Definition and owns the
// layer it carries as payload.
type Instance struct {
	def     *Definition
	values  []any
	payload *Instance
}

// Definition returns the template of the instance.
func (m *Instance) Definition() *Definition {
	return m.def
}

// Name returns the layer name.
func (m *Instance) Name() string {
	return m.def.name
}

// Payload returns the carried layer, or nil.
func (m *Instance) Payload() *Instance {
	return m.payload
}

// SetPayload replaces the carried layer.
func (m *Instance) SetPayload(payload *Instance) {
	m.payload = payload
}

func (m *Instance) lookup(name string) (int, error) {
	idx, ok := m.def.index[name]
	if !ok {
		return 0, &LookupError{Layer: m.def.name, Field: name}
	}
	return idx, nil
}

// Get returns the canonical value of the named field.
func (m *Instance) Get(name string) (any, error) {
	idx, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	return m.values[idx], nil
}

// Set normalizes v under the field's kind and stores it.
func (m *Instance) Set(name string, v any) error {
	idx, err := m.lookup(name)
	if err != nil {
		return err
	}

	nv, err := m.def.fields[idx].Kind.Normalize(v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", m.def.name, name, err)
	}
	m.values[idx] = nv
	return nil
}

// Uint returns an unsigned integer field.
func (m *Instance) Uint(name string) (uint64, error) {
	return get[uint64](m, name)
}

// Int returns a signed integer field.
func (m *Instance) Int(name string) (int64, error) {
	return get[int64](m, name)
}

// Str returns a fixed-length string field.
func (m *Instance) Str(name string) (string, error) {
	return get[string](m, name)
}

// Bytes returns a variable-length field.
func (m *Instance) Bytes(name string) ([]byte, error) {
	return get[[]byte](m, name)
}

// MAC returns a hardware address field.
func (m *Instance) MAC(name string) (net.HardwareAddr, error) {
	return get[net.HardwareAddr](m, name)
}

// Addr returns an IP address field.
func (m *Instance) Addr(name string) (netip.Addr, error) {
	return get[netip.Addr](m, name)
}

func get[T any](m *Instance, name string) (T, error) {
	var zero T

	v, err := m.Get(name)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s.%s is %T, not %T: %w", m.def.name, name, v, zero, ErrFieldType)
	}
	return out, nil
}

// Display returns the display form of the named field, resolving enum and
// flag names.
func (m *Instance) Display(name string) (string, error) {
	idx, err := m.lookup(name)
	if err != nil {
		return "", err
	}
	return m.def.fields[idx].Kind.Format(m.values[idx]), nil
}

// Values returns a copy of the field map.
func (m *Instance) Values() map[string]any {
	out := make(map[string]any, len(m.values))
	for idx, spec := range m.def.fields {
		out[spec.Name] = m.values[idx]
	}
	return out
}

// Marshal encodes the fields of this layer only, without running the
// pre-send hook.
func (m *Instance) Marshal() ([]byte, error) {
	var buf []byte
	var err error

	for _, u := range m.def.units {
		if u.widths == nil {
			idx := u.fields[0]
			codec := m.def.fields[idx].Kind.(field.Codec)
			buf, err = codec.Append(buf, m.values[idx])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.def.name, m.def.fields[idx].Name, err)
			}
			continue
		}

		values := make([]uint64, len(u.fields))
		for i, idx := range u.fields {
			nv, err := m.def.fields[idx].Kind.Normalize(m.values[idx])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", m.def.name, m.def.fields[idx].Name, err)
			}
			values[i] = nv.(uint64)
		}
		buf, err = field.AppendGroup(buf, u.widths, values)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.def.name, m.def.fields[u.fields[0]].Name, err)
		}
	}

	return buf, nil
}

// Encode runs the pre-send hook, if any, with the enclosing layer and the
// encoded payload, then marshals the layer.
func (m *Instance) Encode(under *Instance, payload []byte) ([]byte, error) {
	if m.def.hook != nil {
		if err := m.def.hook(m, under, payload); err != nil {
			return nil, fmt.Errorf("%s: pre-send hook: %w", m.def.name, err)
		}
	}
	return m.Marshal()
}

// Clone returns a copy of the instance without its payload.
func (m *Instance) Clone() *Instance {
	out := &Instance{
		def:    m.def,
		values: make([]any, len(m.values)),
	}
	for idx, spec := range m.def.fields {
		v, err := spec.Kind.Normalize(m.values[idx])
		if err != nil {
			v = m.values[idx]
		}
		out.values[idx] = v
	}
	return out
}

// Dump renders every field of the layer, one per line, under a header
// naming the protocol.
func (m *Instance) Dump() string {
	var b strings.Builder
	m.dump(&b)
	return b.String()
}

func (m *Instance) dump(b *strings.Builder) {
	fmt.Fprintf(b, "###[ %s ]###\n", m.def.protocol)

	width := 0
	for _, spec := range m.def.fields {
		width = max(width, len(spec.Name))
	}
	for idx, spec := range m.def.fields {
		fmt.Fprintf(b, "  %-*s = %s\n", width, spec.Name, spec.Kind.Format(m.values[idx]))
	}
}

// String renders the instance in a single line, e.g.
// "TCP(sport=1024, dport=80, ...)".
func (m *Instance) String() string {
	var b strings.Builder
	b.WriteString(m.def.name)
	b.WriteByte('(')
	for idx, spec := range m.def.fields {
		if idx > 0 {
			b.WriteString(", ")
		}
		b.WriteString(spec.Name)
		b.WriteByte('=')
		b.WriteString(spec.Kind.Format(m.values[idx]))
	}
	b.WriteByte(')')
	return b.String()
}
