package dissect

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yanet-platform/pktstack/layer"
)

// Dissect decodes buf starting from the layer mapped to linkType.
//
// Malformed input never fails: whatever cannot be decoded, or is not
// claimed by any binding, ends up in a trailing Raw layer. The only error
// is an unknown link type.
func (m *Registry) Dissect(linkType uint32, buf []byte) (*layer.Packet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.links[linkType]
	if !ok {
		return nil, &layer.LookupError{Layer: fmt.Sprintf("linktype %d", linkType)}
	}
	def, ok := m.lookup(name)
	if !ok {
		return nil, &layer.LookupError{Layer: name}
	}
	return m.dissect(def, buf), nil
}

// DissectAs decodes buf starting from the named layer.
func (m *Registry) DissectAs(name string, buf []byte) (*layer.Packet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	def, ok := m.lookup(name)
	if !ok {
		return nil, &layer.LookupError{Layer: name}
	}
	return m.dissect(def, buf), nil
}

func (m *Registry) dissect(def *layer.Definition, buf []byte) *layer.Packet {
	var stack []*layer.Instance

	offset := 0
	for def != nil && offset < len(buf) {
		inst, n, err := def.Decode(buf[offset:])
		if err != nil {
			m.log.Debugw("failed to decode layer, keeping the rest as raw",
				zap.String("layer", def.Name()),
				zap.Int("offset", offset),
				zap.Error(err),
			)
			break
		}
		// Layers that consume nothing would loop forever.
		if n == 0 {
			break
		}

		stack = append(stack, inst)
		offset += n
		def = m.next(inst)
	}

	if offset < len(buf) {
		stack = append(stack, layer.Raw(buf[offset:]))
	}
	return layer.NewPacket(stack...)
}

// next picks the payload definition of inst: the first binding, in
// registration order, whose discriminant and conditions match.
func (m *Registry) next(inst *layer.Instance) *layer.Definition {
	for _, rule := range m.rules[inst.Name()] {
		if !rule.matches(inst) {
			continue
		}
		if def, ok := m.lookup(rule.Target); ok {
			return def
		}
	}
	return nil
}
