// Package strategy decides where an authorized cache operation is
// physically served. Ownership governs who may read or write a key space;
// placement governs which tier holds the bytes. Strategies never widen
// access: every built-in places entries only on tiers the validated grant
// already covers.
package strategy

import (
	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
	"github.com/saint0x/stateless/pattern"
)

// Strategy is the placement plug-in point. Implementations must be
// stateless with respect to any particular graph: they receive the
// validated request and grant per call, which keeps them safe across
// atomic registration swaps.
type Strategy interface {
	// Name identifies the strategy in configuration and logs.
	Name() string

	// DetermineLocation resolves the tier that should physically serve an
	// already-authorized operation. It must be a pure decision: no I/O, no
	// retries, no access widening.
	DetermineLocation(req ownership.Request, grant ownership.Grant) (layer.ID, error)

	// HandleInvalidation maps a written pattern text to the pattern texts
	// whose spaces should be invalidated at the strategy level. The
	// planner expands each returned text through the graph's Invalidates
	// edges afterwards; returning just the input means "no extra fan-out".
	HandleInvalidation(text string) []string
}

// Built-in strategy names, as written in manifests.
const (
	NameClientFirst      = "client-first"
	NameEdgeOptimized    = "edge-optimized"
	NameGlobalConsistent = "global-consistent"
)

// ByName resolves a built-in strategy from its configuration name.
func ByName(name string) (Strategy, bool) {
	switch name {
	case NameClientFirst:
		return ClientFirst{}, true
	case NameEdgeOptimized:
		return EdgeOptimized{}, true
	case NameGlobalConsistent:
		return GlobalConsistent{}, true
	default:
		return nil, false
	}
}

// ownerOrLocal is the shared fallback: the owning tier when one exists,
// otherwise the requesting tier (free-read zones and permissive unmatched
// keys have no owner and serve locally).
func ownerOrLocal(req ownership.Request, grant ownership.Grant) layer.ID {
	if grant.Owner.Valid() {
		return grant.Owner
	}
	return req.From
}

// ClientFirst keeps data as close to the caller as its grant allows: the
// requesting tier serves the operation whenever it owns or borrows the key
// space, otherwise the owner does. Patterns pinned by a strong consistency
// constraint always resolve to the owner.
type ClientFirst struct{}

var _ Strategy = ClientFirst{}

func (ClientFirst) Name() string { return NameClientFirst }

func (ClientFirst) DetermineLocation(req ownership.Request, grant ownership.Grant) (layer.ID, error) {
	if !grant.Matched() {
		return req.From, nil
	}
	if grant.Pattern.StrongConsistency() {
		return ownerOrLocal(req, grant), nil
	}
	if grant.OwnedBy(req.From) {
		return req.From, nil
	}
	if req.Mode == ownership.Read && grant.BorrowedBy(req.From) {
		return req.From, nil
	}
	return ownerOrLocal(req, grant), nil
}

func (ClientFirst) HandleInvalidation(text string) []string { return []string{text} }

// EdgeOptimized homes region-tagged patterns on an edge tier holding a
// grant over the key space; everything else resolves to the owner. The
// placement is mode-independent so reads find what writes stored. The zero
// value targets the standard edge tier.
type EdgeOptimized struct {
	// Edge overrides the tier treated as the edge. Empty means layer.Edge.
	Edge layer.ID
}

var _ Strategy = EdgeOptimized{}

func (EdgeOptimized) Name() string { return NameEdgeOptimized }

func (s EdgeOptimized) DetermineLocation(req ownership.Request, grant ownership.Grant) (layer.ID, error) {
	if !grant.Matched() {
		return req.From, nil
	}
	if !grant.Pattern.StrongConsistency() {
		if _, regional := grant.Pattern.Constraint(pattern.ConstraintRegion); regional {
			if edge := s.edge(); grant.Readable(edge) {
				return edge, nil
			}
		}
	}
	return ownerOrLocal(req, grant), nil
}

func (EdgeOptimized) HandleInvalidation(text string) []string { return []string{text} }

func (s EdgeOptimized) edge() layer.ID {
	if s.Edge.Valid() {
		return s.Edge
	}
	return layer.Edge
}

// GlobalConsistent never deviates from the owner: every operation, read or
// write, is served by the owning tier. The strategy of choice when strong
// consistency matters more than locality.
type GlobalConsistent struct{}

var _ Strategy = GlobalConsistent{}

func (GlobalConsistent) Name() string { return NameGlobalConsistent }

func (GlobalConsistent) DetermineLocation(req ownership.Request, grant ownership.Grant) (layer.ID, error) {
	return ownerOrLocal(req, grant), nil
}

func (GlobalConsistent) HandleInvalidation(text string) []string { return []string{text} }
