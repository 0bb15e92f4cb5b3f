package strategy

import (
	"testing"

	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
	"github.com/saint0x/stateless/pattern"
)

func buildGraph(t *testing.T, reg ownership.Registration) *ownership.Graph {
	t.Helper()
	g, err := ownership.Build(reg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func validated(t *testing.T, g *ownership.Graph, key string, mode ownership.Mode, from layer.ID) (ownership.Request, ownership.Grant) {
	t.Helper()
	req := ownership.Request{Key: key, Mode: mode, From: from}
	grant, err := g.ValidateAccess(req)
	if err != nil {
		t.Fatalf("ValidateAccess(%q, %v, %v): %v", key, mode, from, err)
	}
	return req, grant
}

func place(t *testing.T, s Strategy, req ownership.Request, grant ownership.Grant) layer.ID {
	t.Helper()
	id, err := s.DetermineLocation(req, grant)
	if err != nil {
		t.Fatalf("%s.DetermineLocation: %v", s.Name(), err)
	}
	return id
}

func regional(region string) pattern.Constraint {
	return pattern.Constraint{Name: pattern.ConstraintRegion, Value: region}
}

func strong() pattern.Constraint {
	return pattern.Constraint{Name: pattern.ConstraintConsistency, Value: pattern.ConsistencyStrong}
}

func TestClientFirstPlacement(t *testing.T) {
	g := buildGraph(t, ownership.Registration{Patterns: []pattern.Pattern{
		{Text: "user:*", Layer: layer.Server, Ownership: pattern.Owner},
		{Text: "user:*", Layer: layer.Edge, Ownership: pattern.Borrower},
	}})
	s := ClientFirst{}

	// borrower reads stay local
	req, grant := validated(t, g, "user:42", ownership.Read, layer.Edge)
	if got := place(t, s, req, grant); got != layer.Edge {
		t.Fatalf("borrower read placed on %v, want edge", got)
	}

	// the owner serves itself for both reads and writes
	req, grant = validated(t, g, "user:42", ownership.Write, layer.Server)
	if got := place(t, s, req, grant); got != layer.Server {
		t.Fatalf("owner write placed on %v, want server", got)
	}
	req, grant = validated(t, g, "user:42", ownership.Read, layer.Server)
	if got := place(t, s, req, grant); got != layer.Server {
		t.Fatalf("owner read placed on %v, want server", got)
	}
}

func TestClientFirstHonorsStrongConsistency(t *testing.T) {
	g := buildGraph(t, ownership.Registration{Patterns: []pattern.Pattern{
		{Text: "ledger:*", Layer: layer.Server, Ownership: pattern.Owner, Constraints: []pattern.Constraint{strong()}},
		{Text: "ledger:*", Layer: layer.Client, Ownership: pattern.Borrower},
	}})
	req, grant := validated(t, g, "ledger:acct:1", ownership.Read, layer.Client)
	if got := place(t, ClientFirst{}, req, grant); got != layer.Server {
		t.Fatalf("strong-consistency read placed on %v, want owner", got)
	}
}

func TestClientFirstUnmatchedAndFreeRead(t *testing.T) {
	g := buildGraph(t, ownership.Registration{
		Patterns: []pattern.Pattern{
			{Text: "pub:*", Layer: layer.Client, Ownership: pattern.Borrower,
				Constraints: []pattern.Constraint{{Name: pattern.ConstraintFreeRead}}},
		},
		Policy: ownership.Permissive,
	})
	s := ClientFirst{}

	// free-read zones have no owner; serve where the grant lives
	req, grant := validated(t, g, "pub:banner", ownership.Read, layer.Client)
	if got := place(t, s, req, grant); got != layer.Client {
		t.Fatalf("free-read placed on %v, want client", got)
	}

	// permissive unmatched keys serve locally
	req, grant = validated(t, g, "misc:1", ownership.Read, layer.Edge)
	if grant.Matched() {
		t.Fatalf("unexpected match for unregistered key")
	}
	if got := place(t, s, req, grant); got != layer.Edge {
		t.Fatalf("unmatched key placed on %v, want requester", got)
	}
}

func TestEdgeOptimizedPlacement(t *testing.T) {
	g := buildGraph(t, ownership.Registration{Patterns: []pattern.Pattern{
		{Text: "cdn:assets:*", Layer: layer.Server, Ownership: pattern.Owner, Constraints: []pattern.Constraint{regional("us-east")}},
		{Text: "cdn:assets:*", Layer: layer.Edge, Ownership: pattern.Borrower},
		{Text: "cdn:assets:*", Layer: layer.Client, Ownership: pattern.Borrower},
		{Text: "orders:*", Layer: layer.Server, Ownership: pattern.Owner},
		{Text: "orders:*", Layer: layer.Client, Ownership: pattern.Borrower},
	}})
	s := EdgeOptimized{}

	// regional read from the client is served by the edge, which is
	// neither requester nor owner
	req, grant := validated(t, g, "cdn:assets:logo", ownership.Read, layer.Client)
	if got := place(t, s, req, grant); got != layer.Edge {
		t.Fatalf("regional read placed on %v, want edge", got)
	}

	// owner writes land on the edge too, so reads find what writes stored
	req, grant = validated(t, g, "cdn:assets:logo", ownership.Write, layer.Server)
	if got := place(t, s, req, grant); got != layer.Edge {
		t.Fatalf("write placed on %v, want edge", got)
	}

	// untagged patterns resolve to the owner
	req, grant = validated(t, g, "orders:9", ownership.Read, layer.Client)
	if got := place(t, s, req, grant); got != layer.Server {
		t.Fatalf("untagged read placed on %v, want owner", got)
	}
}

// TestEdgeOptimizedNeverWidensAccess: a regional tag alone is not enough;
// the edge tier must hold a grant before bytes may live there.
func TestEdgeOptimizedNeverWidensAccess(t *testing.T) {
	g := buildGraph(t, ownership.Registration{Patterns: []pattern.Pattern{
		{Text: "cdn:assets:*", Layer: layer.Server, Ownership: pattern.Owner, Constraints: []pattern.Constraint{regional("us-east")}},
		{Text: "cdn:assets:*", Layer: layer.Client, Ownership: pattern.Borrower},
	}})
	req, grant := validated(t, g, "cdn:assets:logo", ownership.Read, layer.Client)
	if got := place(t, EdgeOptimized{}, req, grant); got != layer.Server {
		t.Fatalf("read placed on %v, want owner (edge holds no grant)", got)
	}
}

func TestEdgeOptimizedCustomEdgeTier(t *testing.T) {
	g := buildGraph(t, ownership.Registration{Patterns: []pattern.Pattern{
		{Text: "cdn:assets:*", Layer: layer.Server, Ownership: pattern.Owner, Constraints: []pattern.Constraint{regional("eu-west")}},
		{Text: "cdn:assets:*", Layer: layer.Client, Ownership: pattern.Borrower},
	}})
	s := EdgeOptimized{Edge: layer.Client}
	req, grant := validated(t, g, "cdn:assets:logo", ownership.Read, layer.Client)
	if got := place(t, s, req, grant); got != layer.Client {
		t.Fatalf("read placed on %v, want the configured edge tier", got)
	}
}

func TestGlobalConsistentPlacement(t *testing.T) {
	g := buildGraph(t, ownership.Registration{Patterns: []pattern.Pattern{
		{Text: "user:*", Layer: layer.Server, Ownership: pattern.Owner},
		{Text: "user:*", Layer: layer.Edge, Ownership: pattern.Borrower},
	}})
	s := GlobalConsistent{}

	req, grant := validated(t, g, "user:42", ownership.Read, layer.Edge)
	if got := place(t, s, req, grant); got != layer.Server {
		t.Fatalf("borrower read placed on %v, want owner", got)
	}
	req, grant = validated(t, g, "user:42", ownership.Write, layer.Server)
	if got := place(t, s, req, grant); got != layer.Server {
		t.Fatalf("owner write placed on %v, want owner", got)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{NameClientFirst, NameEdgeOptimized, NameGlobalConsistent} {
		s, ok := ByName(name)
		if !ok || s.Name() != name {
			t.Fatalf("ByName(%q) = %v ok=%v", name, s, ok)
		}
	}
	if _, ok := ByName("round-robin"); ok {
		t.Fatalf("unknown strategy name should not resolve")
	}
}

func TestBuiltinsReportIdentityFanOut(t *testing.T) {
	for _, s := range []Strategy{ClientFirst{}, EdgeOptimized{}, GlobalConsistent{}} {
		got := s.HandleInvalidation("user:*")
		if len(got) != 1 || got[0] != "user:*" {
			t.Fatalf("%s.HandleInvalidation = %v, want identity", s.Name(), got)
		}
	}
}

// replicating fans writes out to a mirror space; it exists to pin the
// extension contract for custom strategies.
type replicating struct {
	ClientFirst
	mirror string
}

var _ Strategy = replicating{}

func (r replicating) Name() string { return "replicating" }

func (r replicating) HandleInvalidation(text string) []string {
	return []string{text, r.mirror}
}

func TestCustomStrategyFanOut(t *testing.T) {
	r := replicating{mirror: "mirror:*"}
	got := r.HandleInvalidation("user:*")
	if len(got) != 2 || got[0] != "user:*" || got[1] != "mirror:*" {
		t.Fatalf("HandleInvalidation = %v, want written space plus mirror", got)
	}
}
