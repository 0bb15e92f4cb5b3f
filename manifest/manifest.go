// Package manifest reads and writes the YAML form of an ownership
// registration, so tier topology can live in configuration instead of
// code. A manifest names the placement strategy, the unmatched-key
// policy, the pattern declarations and the edges between them:
//
//	version: 1
//	policy: restrictive
//	strategy: edge-optimized
//	patterns:
//	  - pattern: "user:*"
//	    layer: server
//	    role: owner
//	  - pattern: "user:*"
//	    layer: client
//	    role: borrower
//	  - pattern: "catalog:*"
//	    layer: edge
//	    role: borrower
//	    constraints:
//	      region: eu-west
//	edges:
//	  - from: "user:*"
//	    to: "profile:*"
//	    kind: invalidates
//
// Loading maps names to the engine's types; pattern syntax and graph
// shape are validated by ownership.Build, not here.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
	"github.com/saint0x/stateless/pattern"
	"github.com/saint0x/stateless/strategy"
)

// Version is the current manifest schema version. A manifest omitting the
// field is read as current.
const Version = 1

// Manifest is the on-disk form of a registration.
type Manifest struct {
	Version  int       `yaml:"version,omitempty"`
	Policy   string    `yaml:"policy,omitempty"`   // restrictive (default) or permissive
	Strategy string    `yaml:"strategy,omitempty"` // built-in strategy name, default client-first
	Patterns []Pattern `yaml:"patterns"`
	Edges    []Edge    `yaml:"edges,omitempty"`
}

// Pattern is one declaration row: a pattern text, the tier declaring it and
// the tier's role over the key space.
type Pattern struct {
	Pattern     string            `yaml:"pattern"`
	Layer       string            `yaml:"layer"`
	Role        string            `yaml:"role"` // owner or borrower
	Constraints map[string]string `yaml:"constraints,omitempty"`
}

// Edge is a declared relation between two pattern texts. Manifests declare
// invalidates and derives edges; owns and borrows rows appear only in
// snapshots, where they mirror the pattern roles.
type Edge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Kind string `yaml:"kind"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML into a manifest and checks the schema version.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if m.Version > Version {
		return nil, fmt.Errorf("manifest: unsupported version %d", m.Version)
	}
	return &m, nil
}

// Encode renders the manifest as YAML.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return data, nil
}

// Registration converts the manifest into graph input. Unknown policy, role
// or edge kind names fail here. Owns and borrows edge rows are skipped:
// they are implied by the pattern roles, so a snapshot loads back into the
// registration it was taken from.
func (m *Manifest) Registration() (ownership.Registration, error) {
	var reg ownership.Registration
	switch m.Policy {
	case "", ownership.Restrictive.String():
		reg.Policy = ownership.Restrictive
	case ownership.Permissive.String():
		reg.Policy = ownership.Permissive
	default:
		return ownership.Registration{}, fmt.Errorf("manifest: unknown policy %q", m.Policy)
	}
	for _, p := range m.Patterns {
		kind, err := roleKind(p.Role)
		if err != nil {
			return ownership.Registration{}, fmt.Errorf("manifest: pattern %q: %w", p.Pattern, err)
		}
		decl := pattern.Pattern{
			Text:      p.Pattern,
			Layer:     layer.ID(p.Layer),
			Ownership: kind,
		}
		for _, name := range sortedNames(p.Constraints) {
			decl.Constraints = append(decl.Constraints, pattern.Constraint{Name: name, Value: p.Constraints[name]})
		}
		reg.Patterns = append(reg.Patterns, decl)
	}
	for _, e := range m.Edges {
		if e.Kind == ownership.Owns.String() || e.Kind == ownership.Borrows.String() {
			continue
		}
		kind, err := edgeKind(e.Kind)
		if err != nil {
			return ownership.Registration{}, fmt.Errorf("manifest: edge %q -> %q: %w", e.From, e.To, err)
		}
		reg.Edges = append(reg.Edges, ownership.Edge{From: e.From, To: e.To, Kind: kind})
	}
	return reg, nil
}

// Placement resolves the manifest's strategy name. An absent name means
// client-first.
func (m *Manifest) Placement() (strategy.Strategy, error) {
	if m.Strategy == "" {
		return strategy.ClientFirst{}, nil
	}
	s, ok := strategy.ByName(m.Strategy)
	if !ok {
		return nil, fmt.Errorf("manifest: unknown strategy %q", m.Strategy)
	}
	return s, nil
}

// Snapshot renders a built graph back into manifest form. Patterns keep
// their declaration order. The edge list carries the owns and borrows
// relations the graph derived from pattern roles ahead of the declared
// edges, so the full graph is visible in one document.
func Snapshot(g *ownership.Graph, strategyName string) *Manifest {
	m := &Manifest{
		Version:  Version,
		Policy:   g.Policy().String(),
		Strategy: strategyName,
	}
	for _, p := range g.Matcher().Patterns() {
		row := Pattern{Pattern: p.Text, Layer: p.Layer.String(), Role: p.Ownership.String()}
		for _, c := range p.Constraints {
			if row.Constraints == nil {
				row.Constraints = make(map[string]string, len(p.Constraints))
			}
			if _, dup := row.Constraints[c.Name]; !dup {
				row.Constraints[c.Name] = c.Value
			}
		}
		m.Patterns = append(m.Patterns, row)
	}
	for _, n := range g.Nodes() {
		if n.Owner != nil {
			m.Edges = append(m.Edges, Edge{From: n.Owner.Layer.String(), To: n.Text, Kind: ownership.Owns.String()})
		}
		for _, b := range n.Borrows {
			m.Edges = append(m.Edges, Edge{From: b.Layer.String(), To: n.Text, Kind: ownership.Borrows.String()})
		}
	}
	for _, e := range g.Edges() {
		m.Edges = append(m.Edges, Edge{From: e.From, To: e.To, Kind: e.Kind.String()})
	}
	return m
}

func roleKind(role string) (pattern.Kind, error) {
	switch role {
	case pattern.Owner.String():
		return pattern.Owner, nil
	case pattern.Borrower.String():
		return pattern.Borrower, nil
	default:
		return 0, fmt.Errorf("unknown role %q", role)
	}
}

func edgeKind(kind string) (ownership.EdgeKind, error) {
	switch kind {
	case ownership.Invalidates.String():
		return ownership.Invalidates, nil
	case ownership.Derives.String():
		return ownership.Derives, nil
	default:
		return 0, fmt.Errorf("unknown edge kind %q", kind)
	}
}

func sortedNames(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
