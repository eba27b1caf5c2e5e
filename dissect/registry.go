// Package dissect keeps the catalog of layer definitions and the binding
// table that chains them, and turns raw buffers into layer stacks.
package dissect

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yanet-platform/pktstack/layer"
)

// LinkTable maps a capture link type (pcap DLT) to the name of the
// outermost layer.
type LinkTable map[uint32]string

// Condition is an additional requirement on another field of the owner.
type Condition struct {
	Field string
	Match Match
}

// Where returns a condition on the named field.
func Where(fieldName string, match Match) Condition {
	return Condition{Field: fieldName, Match: match}
}

func (m Condition) String() string {
	return fmt.Sprintf("%s %s", m.Field, m.Match)
}

// BindingRule chains Owner to Target when Owner's Field satisfies Match
// and every condition in Where holds.
type BindingRule struct {
	Owner  string
	Field  string
	Match  Match
	Where  []Condition
	Target string
}

func (m BindingRule) String() string {
	var where strings.Builder
	for _, c := range m.Where {
		fmt.Fprintf(&where, ", %s.%s", m.Owner, c)
	}
	return fmt.Sprintf("%s.%s %s%s -> %s", m.Owner, m.Field, m.Match, where.String(), m.Target)
}

func (m BindingRule) matches(inst *layer.Instance) bool {
	v, err := inst.Get(m.Field)
	if err != nil || !m.Match.Matches(v) {
		return false
	}
	for _, c := range m.Where {
		v, err := inst.Get(c.Field)
		if err != nil || !c.Match.Matches(v) {
			return false
		}
	}
	return true
}

// sameKey reports whether both rules are exact bindings of the same value
// under the same conditions.
func (m BindingRule) sameKey(other BindingRule) bool {
	a, ok := m.Match.(equalMatch)
	if !ok {
		return false
	}
	b, ok := other.Match.(equalMatch)
	if !ok || m.Field != other.Field || !sameValue(a.value, b.value) {
		return false
	}
	if len(m.Where) != len(other.Where) {
		return false
	}
	for idx, c := range m.Where {
		if c.String() != other.Where[idx].String() {
			return false
		}
	}
	return true
}

// BindingConflict describes a binding that was ignored because an earlier
// one already covers the same owner, field and value. It is a warning, not
// a failure.
type BindingConflict struct {
	Ignored  BindingRule
	Existing BindingRule
}

// Error implements the error interface.
func (e *BindingConflict) Error() string {
	return fmt.Sprintf("binding %s ignored: already bound by %s", e.Ignored, e.Existing)
}

type options struct {
	Log   *zap.SugaredLogger
	Links LinkTable
}

func newOptions() *options {
	return &options{
		Log:   zap.NewNop().Sugar(),
		Links: LinkTable{},
	}
}

// RegistryOption is a function that configures the registry.
type RegistryOption func(*options)

// WithLog sets the logger for the registry.
func WithLog(log *zap.SugaredLogger) RegistryOption {
	return func(o *options) {
		o.Log = log
	}
}

// WithLinkTable sets the link-layer demultiplexing table.
func WithLinkTable(links LinkTable) RegistryOption {
	return func(o *options) {
		o.Links = LinkTable{}
		maps.Copy(o.Links, links)
	}
}

// Registry is the protocol catalog.
//
// It is meant to be populated once at startup and then used read-only, but
// it is safe for concurrent use: dissection takes a read lock, so it may
// run from many goroutines while registration remains possible.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]*layer.Definition
	rules     map[string][]BindingRule
	conflicts []BindingConflict
	links     LinkTable
	log       *zap.SugaredLogger
}

// New creates a registry holding only the Raw layer.
func New(options ...RegistryOption) *Registry {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	m := &Registry{
		defs:  map[string]*layer.Definition{},
		rules: map[string][]BindingRule{},
		links: opts.Links,
		log:   opts.Log,
	}
	m.Register(layer.RawDefinition)
	return m
}

// Register adds a definition under its name, replacing any previous one.
func (m *Registry) Register(def *layer.Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.defs[def.Name()]; ok {
		m.log.Infow("replacing layer definition", zap.String("layer", def.Name()))
	} else {
		m.log.Debugw("registering layer definition", zap.String("layer", def.Name()))
	}
	m.defs[def.Name()] = def
}

// Lookup resolves a short name ("IP") or a qualified one ("Scruby::IP",
// "layers.IP"), matching on the trailing component.
func (m *Registry) Lookup(name string) (*layer.Definition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lookup(name)
}

func (m *Registry) lookup(name string) (*layer.Definition, bool) {
	if def, ok := m.defs[name]; ok {
		return def, true
	}
	def, ok := m.defs[shortName(name)]
	return def, ok
}

func shortName(name string) string {
	if idx := strings.LastIndex(name, "::"); idx >= 0 {
		name = name[idx+2:]
	}
	if idx := strings.LastIndexAny(name, "./"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// Names returns the registered layer names in lexical order.
func (m *Registry) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.defs))
}

// Bind adds a binding rule.
//
// Owner, field and target must already be registered: a binding towards a
// layer nobody defined is a catalog error. A second exact binding for the
// same owner, field, value and conditions is ignored; the conflict is
// logged and kept for Conflicts.
func (m *Registry) Bind(owner string, fieldName string, match Match, target string, where ...Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ownerDef, ok := m.lookup(owner)
	if !ok {
		return fmt.Errorf("failed to bind %s.%s: %w", owner, fieldName, &layer.LookupError{Layer: owner})
	}
	targetDef, ok := m.lookup(target)
	if !ok {
		return fmt.Errorf("failed to bind %s.%s: unknown target: %w", owner, fieldName, &layer.LookupError{Layer: target})
	}
	spec, ok := ownerDef.Field(fieldName)
	if !ok {
		return fmt.Errorf("failed to bind %s.%s: %w", owner, fieldName, &layer.LookupError{Layer: owner, Field: fieldName})
	}

	match, err := normalizeMatch(spec, match)
	if err != nil {
		return fmt.Errorf("failed to bind %s.%s: %w", owner, fieldName, err)
	}

	conditions := make([]Condition, 0, len(where))
	for _, c := range where {
		spec, ok := ownerDef.Field(c.Field)
		if !ok {
			return fmt.Errorf("failed to bind %s.%s: condition: %w", owner, fieldName, &layer.LookupError{Layer: owner, Field: c.Field})
		}
		cm, err := normalizeMatch(spec, c.Match)
		if err != nil {
			return fmt.Errorf("failed to bind %s.%s: condition on %s: %w", owner, fieldName, c.Field, err)
		}
		conditions = append(conditions, Condition{Field: c.Field, Match: cm})
	}

	rule := BindingRule{
		Owner:  ownerDef.Name(),
		Field:  fieldName,
		Match:  match,
		Where:  conditions,
		Target: targetDef.Name(),
	}

	if _, ok := match.(equalMatch); ok {
		for _, existing := range m.rules[rule.Owner] {
			if !rule.sameKey(existing) {
				continue
			}

			conflict := BindingConflict{Ignored: rule, Existing: existing}
			m.conflicts = append(m.conflicts, conflict)
			m.log.Warnw("ignoring duplicate binding",
				zap.Stringer("ignored", rule),
				zap.Stringer("existing", existing),
			)
			return nil
		}
	}

	m.rules[rule.Owner] = append(m.rules[rule.Owner], rule)
	m.log.Debugw("registered binding", zap.Stringer("rule", rule))
	return nil
}

// normalizeMatch converts the value of an Equal match to the canonical form
// of the field it is compared against.
func normalizeMatch(spec layer.FieldSpec, match Match) (Match, error) {
	eq, ok := match.(equalMatch)
	if !ok {
		return match, nil
	}
	v, err := spec.Kind.Normalize(eq.value)
	if err != nil {
		return nil, err
	}
	return equalMatch{value: v}, nil
}

// Rules returns the bindings of owner in registration order.
func (m *Registry) Rules(owner string) []BindingRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if def, ok := m.lookup(owner); ok {
		owner = def.Name()
	}
	return slices.Clone(m.rules[owner])
}

// Conflicts returns the ignored duplicate bindings.
func (m *Registry) Conflicts() []BindingConflict {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.conflicts)
}

// SetLink maps a link type to a registered layer.
func (m *Registry) SetLink(linkType uint32, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	def, ok := m.lookup(name)
	if !ok {
		return fmt.Errorf("failed to set link type %d: %w", linkType, &layer.LookupError{Layer: name})
	}
	m.links[linkType] = def.Name()
	return nil
}

// Links returns a copy of the link-layer table.
func (m *Registry) Links() LinkTable {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.links)
}
