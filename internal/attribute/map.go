// Package attribute holds the static attribute schema of the instrument and
// the bidirectional mapping between attribute names and protocol addresses.
//
// A Map is built once at startup and never mutated afterwards, so it is
// safe to share between the acquisition goroutines and the API handlers
// without locking.
package attribute

import (
	"fmt"
	"strings"
)

// Address is an opaque protocol node address, e.g. "ns=2;s=heartbeat".
type Address string

// Definition declares one instrument attribute.
type Definition struct {
	Name    string  `yaml:"name" json:"name"`
	Address Address `yaml:"address" json:"address"`
	Kind    Kind    `yaml:"kind" json:"kind"`
	Group   Group   `yaml:"group,omitempty" json:"group,omitempty"`
}

// Graphable reports whether the attribute's values can be plotted.
func (d Definition) Graphable() bool {
	return d.Kind.Graphable()
}

// Map is the validated, injective attribute↔address mapping.
type Map struct {
	defs      []Definition
	byName    map[string]int // upper-cased name -> index
	byAddress map[Address]int
}

// NewMap validates defs and builds the lookup tables.
//
// Validation rejects empty names or addresses, duplicate names (compared
// case-insensitively, because the projector case-folds) and addresses
// shared by two attributes. Any violation is a startup configuration error.
//
// Parameters:
//   - defs: Attribute definitions in the desired iteration order
//
// Returns:
//   - *Map: Immutable map ready for lookups
//   - error: ErrEmptyMap, ErrInvalidDefinition, ErrDuplicateName or ErrDuplicateAddress
func NewMap(defs []Definition) (*Map, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyMap
	}

	m := &Map{
		defs:      make([]Definition, len(defs)),
		byName:    make(map[string]int, len(defs)),
		byAddress: make(map[Address]int, len(defs)),
	}
	copy(m.defs, defs)

	for i, d := range m.defs {
		if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(string(d.Address)) == "" {
			return nil, fmt.Errorf("%w: entry %d has empty name or address", ErrInvalidDefinition, i)
		}

		key := foldName(d.Name)
		if prev, ok := m.byName[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q", ErrDuplicateName, m.defs[prev].Name, d.Name)
		}
		if prev, ok := m.byAddress[d.Address]; ok {
			return nil, fmt.Errorf("%w: %s used by %q and %q",
				ErrDuplicateAddress, d.Address, m.defs[prev].Name, d.Name)
		}

		m.byName[key] = i
		m.byAddress[d.Address] = i
	}

	return m, nil
}

// Address returns the protocol address for an attribute name.
// The lookup is case-insensitive.
func (m *Map) Address(name string) (Address, bool) {
	i, ok := m.byName[foldName(name)]
	if !ok {
		return "", false
	}
	return m.defs[i].Address, true
}

// Attribute returns the canonical attribute name for a protocol address.
func (m *Map) Attribute(addr Address) (string, bool) {
	i, ok := m.byAddress[addr]
	if !ok {
		return "", false
	}
	return m.defs[i].Name, true
}

// Definition returns the full definition for an attribute name (case-insensitive).
func (m *Map) Definition(name string) (Definition, bool) {
	i, ok := m.byName[foldName(name)]
	if !ok {
		return Definition{}, false
	}
	return m.defs[i], true
}

// Canonical returns the declared spelling of an attribute name.
func (m *Map) Canonical(name string) (string, bool) {
	i, ok := m.byName[foldName(name)]
	if !ok {
		return "", false
	}
	return m.defs[i].Name, true
}

// Len returns the number of attributes.
func (m *Map) Len() int {
	return len(m.defs)
}

// First returns the first declared attribute. The session prober reads it
// to test liveness.
func (m *Map) First() Definition {
	return m.defs[0]
}

// Definitions returns a copy of all definitions in declaration order.
func (m *Map) Definitions() []Definition {
	out := make([]Definition, len(m.defs))
	copy(out, m.defs)
	return out
}

// Names returns all attribute names in declaration order.
func (m *Map) Names() []string {
	out := make([]string, len(m.defs))
	for i, d := range m.defs {
		out[i] = d.Name
	}
	return out
}

// Addresses returns all addresses in declaration order. Batched reads
// rely on this order being stable.
func (m *Map) Addresses() []Address {
	out := make([]Address, len(m.defs))
	for i, d := range m.defs {
		out[i] = d.Address
	}
	return out
}

// Graphable returns the names of attributes whose kind is boolean, integer
// or float, in declaration order.
//
// When no attribute qualifies, fallback names that exist in the map are
// returned instead so a chart always has something to show.
func (m *Map) Graphable(fallback ...string) []string {
	var out []string
	for _, d := range m.defs {
		if d.Graphable() {
			out = append(out, d.Name)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, name := range fallback {
		if canonical, ok := m.Canonical(name); ok {
			out = append(out, canonical)
		}
	}
	return out
}

// foldName normalises an attribute name for lookups.
func foldName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
