// Package layer implements protocol layer templates, their instances and
// stacks of instances (packets).
package layer

import (
	"fmt"

	"github.com/yanet-platform/pktstack/field"
)

// FieldSpec declares one field of a layer.
type FieldSpec struct {
	Name string
	Kind field.Kind
	// Default is normalized under Kind when the definition is built. A nil
	// Default means Kind.Zero().
	Default any
}

// Hook computes derived fields of l right before it is encoded.
//
// under is the enclosing layer, or nil for the outermost one, and payload
// holds the already encoded bytes of everything l carries. Hooks must be
// idempotent and must always assign the fields they manage, even when the
// computed value is zero.
type Hook func(l *Instance, under *Instance, payload []byte) error

// unit is the decoding step for a single byte-aligned field or for a group
// of consecutive bit-packed fields.
type unit struct {
	fields []int
	// widths holds the bit widths of a packed group; nil for a single
	// byte-aligned field.
	widths []int
}

// Definition is an immutable protocol template: an ordered field list plus
// an optional pre-send hook.
type Definition struct {
	name     string
	protocol string
	fields   []FieldSpec
	index    map[string]int
	units    []unit
	hook     Hook
}

// DefinitionOption configures a Definition.
type DefinitionOption func(*Definition)

// WithProtocol sets the human readable protocol name, e.g. "IPv4" for the
// "IP" layer.
func WithProtocol(protocol string) DefinitionOption {
	return func(d *Definition) {
		d.protocol = protocol
	}
}

// WithHook sets the pre-send hook.
func WithHook(hook Hook) DefinitionOption {
	return func(d *Definition) {
		d.hook = hook
	}
}

// NewDefinition builds a layer definition.
//
// Consecutive bit-packed fields are grouped until they reach a byte
// boundary; a group that never does, or that is wider than
// field.MaxGroupBits, is rejected. A VarString may only be the last field.
func NewDefinition(name string, fields []FieldSpec, options ...DefinitionOption) (*Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("layer name is empty")
	}

	d := &Definition{
		name:     name,
		protocol: name,
		fields:   make([]FieldSpec, 0, len(fields)),
		index:    make(map[string]int, len(fields)),
	}
	for _, o := range options {
		o(d)
	}

	var group unit
	groupBits := 0

	for idx, spec := range fields {
		if spec.Name == "" {
			return nil, fmt.Errorf("%s: field #%d has no name", name, idx)
		}
		if spec.Kind == nil {
			return nil, fmt.Errorf("%s.%s: field has no kind", name, spec.Name)
		}
		if _, ok := d.index[spec.Name]; ok {
			return nil, fmt.Errorf("%s.%s: duplicate field", name, spec.Name)
		}

		def := spec.Default
		if def == nil {
			def = spec.Kind.Zero()
		}
		def, err := spec.Kind.Normalize(def)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: invalid default: %w", name, spec.Name, err)
		}
		spec.Default = def

		if _, ok := spec.Kind.(field.VarString); ok && idx != len(fields)-1 {
			return nil, fmt.Errorf("%s.%s: variable length field must be the last one", name, spec.Name)
		}

		d.index[spec.Name] = idx
		d.fields = append(d.fields, spec)

		if width, ok := field.BitWidth(spec.Kind); ok {
			group.fields = append(group.fields, idx)
			group.widths = append(group.widths, width)
			groupBits += width
			if groupBits > field.MaxGroupBits {
				return nil, fmt.Errorf("%s.%s: bit group exceeds %d bits", name, spec.Name, field.MaxGroupBits)
			}
			if groupBits%8 == 0 {
				d.units = append(d.units, group)
				group = unit{}
				groupBits = 0
			}
			continue
		}

		if groupBits != 0 {
			return nil, fmt.Errorf("%s.%s: bit group ends on a %d bit boundary", name, spec.Name, groupBits)
		}
		if _, ok := spec.Kind.(field.Codec); !ok {
			return nil, fmt.Errorf("%s.%s: kind %s cannot be encoded", name, spec.Name, spec.Kind)
		}
		d.units = append(d.units, unit{fields: []int{idx}})
	}

	if groupBits != 0 {
		return nil, fmt.Errorf("%s: trailing bit group ends on a %d bit boundary", name, groupBits)
	}

	return d, nil
}

// MustDefinition is like NewDefinition but panics on error. It is meant
// for static protocol catalogs.
func MustDefinition(name string, fields []FieldSpec, options ...DefinitionOption) *Definition {
	d, err := NewDefinition(name, fields, options...)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the layer name, e.g. "IP".
func (m *Definition) Name() string {
	return m.name
}

// Protocol returns the human readable protocol name, e.g. "IPv4".
func (m *Definition) Protocol() string {
	return m.protocol
}

// Fields returns a copy of the field list.
func (m *Definition) Fields() []FieldSpec {
	out := make([]FieldSpec, len(m.fields))
	copy(out, m.fields)
	return out
}

// Field returns the spec of the named field.
func (m *Definition) Field(name string) (FieldSpec, bool) {
	idx, ok := m.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return m.fields[idx], true
}

// HasHook reports whether the definition carries a pre-send hook.
func (m *Definition) HasHook() bool {
	return m.hook != nil
}

// New returns an instance holding the default values.
func (m *Definition) New() *Instance {
	inst := &Instance{
		def:    m,
		values: make([]any, len(m.fields)),
	}
	for idx, spec := range m.fields {
		// Defaults are already normalized; normalizing again yields a
		// private copy of slice-backed values.
		v, _ := spec.Kind.Normalize(spec.Default)
		inst.values[idx] = v
	}
	return inst
}

// Assignment is a field value for Make.
type Assignment struct {
	Name  string
	Value any
}

// With returns an assignment of value to the named field.
func With(name string, value any) Assignment {
	return Assignment{Name: name, Value: value}
}

// Make returns an instance with defaults overridden by the assignments.
func (m *Definition) Make(assignments ...Assignment) (*Instance, error) {
	inst := m.New()
	for _, a := range assignments {
		if err := inst.Set(a.Name, a.Value); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Decode decodes one instance from the head of buf and returns it along
// with the number of bytes consumed, which is where the payload starts.
func (m *Definition) Decode(buf []byte) (*Instance, int, error) {
	inst := &Instance{
		def:    m,
		values: make([]any, len(m.fields)),
	}

	off := 0
	for _, u := range m.units {
		if u.widths != nil {
			values, n, err := field.DecodeGroup(buf[off:], u.widths)
			if err != nil {
				return nil, 0, fmt.Errorf("%s.%s at offset %d: %w", m.name, m.fields[u.fields[0]].Name, off, err)
			}
			for i, idx := range u.fields {
				inst.values[idx] = values[i]
			}
			off += n
			continue
		}

		idx := u.fields[0]
		codec := m.fields[idx].Kind.(field.Codec)
		v, n, err := codec.Decode(buf[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("%s.%s at offset %d: %w", m.name, m.fields[idx].Name, off, err)
		}
		inst.values[idx] = v
		off += n
	}

	return inst, off, nil
}
