package ownership

import (
	"errors"
	"testing"

	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/pattern"
)

func owner(text string, l layer.ID) pattern.Pattern {
	return pattern.Pattern{Text: text, Layer: l, Ownership: pattern.Owner}
}

func borrower(text string, l layer.ID, cs ...pattern.Constraint) pattern.Pattern {
	return pattern.Pattern{Text: text, Layer: l, Ownership: pattern.Borrower, Constraints: cs}
}

func freeRead() pattern.Constraint {
	return pattern.Constraint{Name: pattern.ConstraintFreeRead}
}

func mustBuild(t *testing.T, reg Registration) *Graph {
	t.Helper()
	g, err := Build(reg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func mustFail(t *testing.T, reg Registration) *BuildError {
	t.Helper()
	_, err := Build(reg)
	if err == nil {
		t.Fatalf("Build: expected rejection")
	}
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("Build error type %T, want *BuildError", err)
	}
	return be
}

func TestBuildAcceptsWellFormedRegistration(t *testing.T) {
	g := mustBuild(t, Registration{
		Patterns: []pattern.Pattern{
			owner("user:*", layer.Server),
			borrower("user:*", layer.Edge),
			owner("session:{sid}", layer.Client),
			owner("profile:*", layer.Server),
		},
		Edges: []Edge{
			{From: "user:*", To: "profile:*", Kind: Invalidates},
			{From: "profile:*", To: "user:*", Kind: Derives},
		},
	})

	if got := len(g.Nodes()); got != 4 {
		t.Fatalf("nodes = %d, want 4", got)
	}
	n, ok := g.Node("user:*")
	if !ok || n.Owner == nil || n.Owner.Layer != layer.Server {
		t.Fatalf("user:* node = %+v, want server owner", n)
	}
	if len(n.Borrows) != 1 || n.Borrows[0].Layer != layer.Edge {
		t.Fatalf("user:* borrows = %v, want edge borrower", n.Borrows)
	}
	if got := len(g.Edges()); got != 2 {
		t.Fatalf("edges = %d, want 2", got)
	}
	if got := g.EdgesFrom("user:*", Invalidates); len(got) != 1 || got[0].To != "profile:*" {
		t.Fatalf("EdgesFrom(user:*, invalidates) = %v", got)
	}
	if g.Policy() != Restrictive {
		t.Fatalf("default policy = %v, want restrictive", g.Policy())
	}
}

// TestBuildRejectsCrossLayerOwnerOverlap pins the core conflict rule: two
// owners over intersecting key spaces on different tiers, reported naming
// both declarations.
func TestBuildRejectsCrossLayerOwnerOverlap(t *testing.T) {
	be := mustFail(t, Registration{Patterns: []pattern.Pattern{
		owner("a:*", layer.Client),
		owner("a:*", layer.Server),
	}})
	if len(be.Violations) != 1 {
		t.Fatalf("violations = %v, want one conflict", be.Violations)
	}
	var ce *ConflictError
	if !errors.As(be.Violations[0], &ce) {
		t.Fatalf("violation type %T, want *ConflictError", be.Violations[0])
	}
	if ce.A.Layer != layer.Client || ce.B.Layer != layer.Server {
		t.Fatalf("conflict names %s and %s, want both declarations", ce.A, ce.B)
	}
}

func TestBuildOwnerNesting(t *testing.T) {
	// strict nesting on one tier is a re-registration, not a conflict
	mustBuild(t, Registration{Patterns: []pattern.Pattern{
		owner("user:*", layer.Server),
		owner("user:{id}:posts", layer.Server),
	}})

	// the same nesting across tiers is ambiguous authority
	be := mustFail(t, Registration{Patterns: []pattern.Pattern{
		owner("user:*", layer.Server),
		owner("user:{id}:posts", layer.Client),
	}})
	var ce *ConflictError
	if !errors.As(be.Violations[0], &ce) {
		t.Fatalf("violation = %v, want conflict", be.Violations[0])
	}

	// equal spaces under different texts are not strict nesting
	be = mustFail(t, Registration{Patterns: []pattern.Pattern{
		owner("a:{x}", layer.Server),
		owner("a:{y}", layer.Server),
	}})
	if !errors.As(be.Violations[0], &ce) {
		t.Fatalf("violation = %v, want conflict", be.Violations[0])
	}
}

func TestBuildRejectsDanglingBorrow(t *testing.T) {
	be := mustFail(t, Registration{Patterns: []pattern.Pattern{
		borrower("ext:*", layer.Edge),
	}})
	var db *DanglingBorrowError
	if !errors.As(be.Violations[0], &db) || db.Borrow.Text != "ext:*" {
		t.Fatalf("violation = %v, want dangling borrow of ext:*", be.Violations[0])
	}

	// the free-read constraint legitimizes an ownerless borrow
	mustBuild(t, Registration{Patterns: []pattern.Pattern{
		borrower("ext:*", layer.Edge, freeRead()),
	}})
}

func TestBuildResolvesLenders(t *testing.T) {
	g := mustBuild(t, Registration{Patterns: []pattern.Pattern{
		owner("user:*", layer.Server),
		owner("user:{id}:posts", layer.Server),
		borrower("user:{id}:posts", layer.Edge),
		borrower("pub:*", layer.Client, freeRead()),
	}})

	n, _ := g.Node("user:{id}:posts")
	lender, ok := g.Lender(n.Borrows[0])
	if !ok || lender.Text != "user:{id}:posts" {
		t.Fatalf("lender = %v ok=%v, want the most specific covering owner", lender, ok)
	}

	pub, _ := g.Node("pub:*")
	if _, ok := g.Lender(pub.Borrows[0]); ok {
		t.Fatalf("free-read borrow should have no lender")
	}
}

// TestBuildRejectsInvalidationCycle covers A→B→C→A plus the self-loop
// degenerate.
func TestBuildRejectsInvalidationCycle(t *testing.T) {
	be := mustFail(t, Registration{
		Patterns: []pattern.Pattern{
			owner("a:*", layer.Server),
			owner("b:*", layer.Server),
			owner("c:*", layer.Server),
		},
		Edges: []Edge{
			{From: "a:*", To: "b:*", Kind: Invalidates},
			{From: "b:*", To: "c:*", Kind: Invalidates},
			{From: "c:*", To: "a:*", Kind: Invalidates},
		},
	})
	var cyc *CycleError
	if !errors.As(be.Violations[0], &cyc) {
		t.Fatalf("violation type %T, want *CycleError", be.Violations[0])
	}
	want := []string{"a:*", "b:*", "c:*"}
	if len(cyc.Texts) != len(want) {
		t.Fatalf("cycle members = %v, want %v", cyc.Texts, want)
	}
	for i := range want {
		if cyc.Texts[i] != want[i] {
			t.Fatalf("cycle members = %v, want %v", cyc.Texts, want)
		}
	}

	be = mustFail(t, Registration{
		Patterns: []pattern.Pattern{owner("a:*", layer.Server)},
		Edges:    []Edge{{From: "a:*", To: "a:*", Kind: Invalidates}},
	})
	if !errors.As(be.Violations[0], &cyc) || len(cyc.Texts) != 1 {
		t.Fatalf("violation = %v, want single-member cycle", be.Violations[0])
	}
}

func TestBuildAllowsDerivesLoops(t *testing.T) {
	// only the Invalidates subgraph must be acyclic
	mustBuild(t, Registration{
		Patterns: []pattern.Pattern{
			owner("a:*", layer.Server),
			owner("b:*", layer.Server),
		},
		Edges: []Edge{
			{From: "a:*", To: "b:*", Kind: Derives},
			{From: "b:*", To: "a:*", Kind: Derives},
		},
	})
}

func TestBuildRejectsDanglingAndInvalidEdges(t *testing.T) {
	be := mustFail(t, Registration{
		Patterns: []pattern.Pattern{owner("a:*", layer.Server)},
		Edges: []Edge{
			{From: "a:*", To: "ghost:*", Kind: Invalidates},
			{From: "a:*", To: "a:*", Kind: Owns},
		},
	})
	var dangling, invalid int
	for _, v := range be.Violations {
		var de *DanglingEdgeError
		var ie *InvalidEdgeError
		switch {
		case errors.As(v, &de):
			dangling++
			if de.Missing != "ghost:*" {
				t.Fatalf("dangling edge missing = %q, want ghost:*", de.Missing)
			}
		case errors.As(v, &ie):
			invalid++
		default:
			t.Fatalf("unexpected violation %v", v)
		}
	}
	if dangling != 1 || invalid != 1 {
		t.Fatalf("violation mix = %d dangling / %d invalid, want 1/1", dangling, invalid)
	}
}

func TestBuildRejectsKindlessPattern(t *testing.T) {
	be := mustFail(t, Registration{Patterns: []pattern.Pattern{
		{Text: "user:*"},
	}})
	var se *pattern.SyntaxError
	if !errors.As(be.Violations[0], &se) || se.Reason != "ownership kind unspecified" {
		t.Fatalf("violation = %v, want kindless-pattern rejection", be.Violations[0])
	}
}

// TestBuildReportsEveryViolation verifies rejection is exhaustive rather
// than fail-fast: one bad registration surfaces each problem class at once.
func TestBuildReportsEveryViolation(t *testing.T) {
	be := mustFail(t, Registration{
		Patterns: []pattern.Pattern{
			owner("bad::text", layer.Server),   // syntax
			owner("a:*", layer.Client),         // conflict pair...
			owner("a:*", layer.Server),         // ...with this
			borrower("lost:*", layer.Edge),     // dangling borrow
			owner("loop:*", layer.Server),      // cycle below
		},
		Edges: []Edge{
			{From: "loop:*", To: "loop:*", Kind: Invalidates},
			{From: "a:*", To: "ghost:*", Kind: Invalidates}, // dangling edge
		},
	})

	var syntax, conflict, borrow, cycle, edge int
	for _, v := range be.Violations {
		var (
			se *pattern.SyntaxError
			ce *ConflictError
			db *DanglingBorrowError
			cy *CycleError
			de *DanglingEdgeError
		)
		switch {
		case errors.As(v, &se):
			syntax++
		case errors.As(v, &ce):
			conflict++
		case errors.As(v, &db):
			borrow++
		case errors.As(v, &cy):
			cycle++
		case errors.As(v, &de):
			edge++
		default:
			t.Fatalf("unexpected violation %v", v)
		}
	}
	if syntax != 1 || conflict != 1 || borrow != 1 || cycle != 1 || edge != 1 {
		t.Fatalf("violation mix = syntax %d, conflict %d, borrow %d, cycle %d, edge %d; want one of each (all: %v)",
			syntax, conflict, borrow, cycle, edge, be.Violations)
	}
}

func TestBuildEmptyRegistration(t *testing.T) {
	g := mustBuild(t, Registration{})
	if len(g.Nodes()) != 0 || g.Matcher().Len() != 0 {
		t.Fatalf("empty registration should build an empty graph")
	}
}
