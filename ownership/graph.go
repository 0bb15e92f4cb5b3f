// Package ownership validates a registration of key patterns and edges into
// a graph that can authorize cache operations and plan invalidation fan-out.
//
// A registration declares which tier owns which key space, which tiers
// borrow read access, and how writes propagate between spaces. Build checks
// the whole declaration set eagerly and reports every violation at once;
// after a successful build the graph is immutable and safe for concurrent
// use.
package ownership

import (
	"fmt"

	"github.com/saint0x/stateless/pattern"
)

// Policy decides what happens to a key matching no registered pattern.
// The source material is ambiguous here, so the choice is explicit
// configuration: the zero value denies.
type Policy uint8

const (
	// Restrictive denies operations on unmatched keys. Default.
	Restrictive Policy = iota

	// Permissive allows operations on unmatched keys; they carry an empty
	// grant and route to the requesting tier.
	Permissive
)

func (p Policy) String() string {
	switch p {
	case Restrictive:
		return "restrictive"
	case Permissive:
		return "permissive"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Registration is the declaration set a graph is built from.
type Registration struct {
	// Patterns declares the key spaces and each tier's relation to them.
	// Every entry must carry a layer and an ownership kind.
	Patterns []pattern.Pattern

	// Edges declares Invalidates and Derives relations between pattern
	// texts. Owns and Borrows relations come from Patterns.
	Edges []Edge

	// Policy for keys matching no pattern.
	Policy Policy
}

// Node aggregates every declaration over one pattern text: at most one
// owner plus any borrowers.
type Node struct {
	Text    string
	Owner   *pattern.Pattern
	Borrows []*pattern.Pattern

	space *pattern.Pattern
}

// Space returns a compiled pattern for the node's text, usable for
// matching and prefix computation regardless of which declaration it came
// from.
func (n *Node) Space() *pattern.Pattern { return n.space }

// Graph is a validated registration. Zero value is not usable; obtain one
// from Build.
type Graph struct {
	matcher *pattern.Matcher
	nodes   map[string]*Node
	order   []*Node
	edges   []Edge
	invOut  map[string][]string
	lenders map[*pattern.Pattern]*pattern.Pattern
	policy  Policy
}

// Build validates reg and assembles the graph. On failure the returned
// error is a *BuildError listing every violation: malformed or duplicate
// declarations, owner conflicts, dangling borrows, invalid or dangling
// edges, and invalidation cycles.
func Build(reg Registration) (*Graph, error) {
	compiled, violations := pattern.PrepareSet(reg.Patterns)

	if reg.Policy != Restrictive && reg.Policy != Permissive {
		violations = append(violations, fmt.Errorf("ownership: unknown policy %d", reg.Policy))
	}

	g := &Graph{
		nodes:   make(map[string]*Node),
		invOut:  make(map[string][]string),
		lenders: make(map[*pattern.Pattern]*pattern.Pattern),
		policy:  reg.Policy,
	}

	var declared, owners, borrows []*pattern.Pattern
	for _, p := range compiled {
		if !p.Ownership.Valid() {
			violations = append(violations, &pattern.SyntaxError{Text: p.Text, Reason: "ownership kind unspecified"})
			continue
		}
		declared = append(declared, p)

		n := g.nodes[p.Text]
		if n == nil {
			n = &Node{Text: p.Text, space: p}
			g.nodes[p.Text] = n
			g.order = append(g.order, n)
		}
		switch p.Ownership {
		case pattern.Owner:
			if n.Owner == nil {
				n.Owner = p
			}
			owners = append(owners, p)
		case pattern.Borrower:
			n.Borrows = append(n.Borrows, p)
			borrows = append(borrows, p)
		}
	}

	// Owner pairs may overlap only as a same-tier re-registration: one
	// strictly inside the other, both on one layer. Everything else,
	// including equal spaces, is ambiguous authority.
	for i := 0; i < len(owners); i++ {
		for j := i + 1; j < len(owners); j++ {
			a, b := owners[i], owners[j]
			if !a.Overlaps(b) {
				continue
			}
			if a.Layer == b.Layer && strictlyNested(a, b) {
				continue
			}
			violations = append(violations, &ConflictError{A: a, B: b})
		}
	}

	// Each borrower lends from the most specific owner covering it. In a
	// conflict-free set the covering owners form a nested same-tier chain,
	// so the lender is unique. No cover and no free-read tag is a dangling
	// borrow.
	for _, b := range borrows {
		if lender := mostSpecificCover(owners, b); lender != nil {
			g.lenders[b] = lender
			continue
		}
		if !b.FreeRead() {
			violations = append(violations, &DanglingBorrowError{Borrow: b})
		}
	}

	for _, e := range reg.Edges {
		switch e.Kind {
		case Invalidates, Derives:
		case Owns, Borrows:
			violations = append(violations, &InvalidEdgeError{Edge: e, Reason: "declared through patterns, not explicit edges"})
			continue
		default:
			violations = append(violations, &InvalidEdgeError{Edge: e, Reason: "unknown edge kind"})
			continue
		}
		ok := true
		if g.nodes[e.From] == nil {
			violations = append(violations, &DanglingEdgeError{Edge: e, Missing: e.From})
			ok = false
		}
		if g.nodes[e.To] == nil {
			violations = append(violations, &DanglingEdgeError{Edge: e, Missing: e.To})
			ok = false
		}
		if !ok {
			continue
		}
		g.edges = append(g.edges, e)
		if e.Kind == Invalidates {
			g.invOut[e.From] = append(g.invOut[e.From], e.To)
		}
	}

	for _, cyc := range findCycles(g.order, g.invOut) {
		violations = append(violations, &CycleError{Texts: cyc})
	}

	if len(violations) > 0 {
		return nil, &BuildError{Violations: violations}
	}

	g.matcher = pattern.NewMatcher(declared)
	return g, nil
}

func strictlyNested(a, b *pattern.Pattern) bool {
	ab, ba := a.Covers(b), b.Covers(a)
	return ab != ba
}

func mostSpecificCover(owners []*pattern.Pattern, b *pattern.Pattern) *pattern.Pattern {
	var best *pattern.Pattern
	for _, o := range owners {
		if !o.Covers(b) {
			continue
		}
		if best == nil || pattern.MoreSpecific(o, best) {
			best = o
		}
	}
	return best
}

// Policy returns the unmatched-key policy the graph was built with.
func (g *Graph) Policy() Policy { return g.policy }

// Matcher returns the compiled matcher over every declaration.
func (g *Graph) Matcher() *pattern.Matcher { return g.matcher }

// Node returns the declarations over an exact pattern text.
func (g *Graph) Node(text string) (*Node, bool) {
	n, ok := g.nodes[text]
	return n, ok
}

// Nodes returns every node in first-declaration order. The slice is shared;
// callers must not mutate it.
func (g *Graph) Nodes() []*Node { return g.order }

// Edges returns the validated Invalidates and Derives edges in declaration
// order. The slice is shared; callers must not mutate it.
func (g *Graph) Edges() []Edge { return g.edges }

// EdgesFrom returns the declared edges of one kind leaving text, in
// declaration order.
func (g *Graph) EdgesFrom(text string, kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == text && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Lender returns the owner pattern a borrower declaration lends from, when
// it has one (free-read borrows have none).
func (g *Graph) Lender(b *pattern.Pattern) (*pattern.Pattern, bool) {
	o, ok := g.lenders[b]
	return o, ok
}

// findCycles locates the cyclic strongly connected components of the
// Invalidates subgraph (Tarjan) and reconstructs one representative cycle
// path per component, starting from its first-declared member.
func findCycles(order []*Node, adj map[string][]string) [][]string {
	declIdx := make(map[string]int, len(order))
	for i, n := range order {
		declIdx[n.Text] = i
	}

	var (
		index   int
		indices = make(map[string]int, len(order))
		low     = make(map[string]int, len(order))
		onStack = make(map[string]bool, len(order))
		stack   []string
		comps   [][]string
	)
	var strong func(v string)
	strong = func(v string) {
		indices[v] = index
		low[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				strong(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && indices[w] < low[v] {
				low[v] = indices[w]
			}
		}
		if low[v] != indices[v] {
			return
		}
		var comp []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		comps = append(comps, comp)
	}
	for _, n := range order {
		if _, seen := indices[n.Text]; !seen {
			strong(n.Text)
		}
	}

	var cycles [][]string
	for _, comp := range comps {
		if len(comp) == 1 && !selfLoop(adj, comp[0]) {
			continue
		}
		cycles = append(cycles, cyclePath(comp, adj, declIdx))
	}
	return cycles
}

func selfLoop(adj map[string][]string, v string) bool {
	for _, w := range adj[v] {
		if w == v {
			return true
		}
	}
	return false
}

func cyclePath(comp []string, adj map[string][]string, declIdx map[string]int) []string {
	start := comp[0]
	in := make(map[string]bool, len(comp))
	for _, v := range comp {
		in[v] = true
		if declIdx[v] < declIdx[start] {
			start = v
		}
	}
	for _, w := range adj[start] {
		if !in[w] {
			continue
		}
		if w == start {
			return []string{start}
		}
		if p := shortestPath(w, start, adj, in); p != nil {
			return append([]string{start}, p[:len(p)-1]...)
		}
	}
	// not reachable for a genuine component; report membership instead
	return comp
}

// shortestPath runs a BFS from from to to inside the component and returns
// the node sequence from..to inclusive, or nil when unreachable.
func shortestPath(from, to string, adj map[string][]string, in map[string]bool) []string {
	parent := map[string]string{from: from}
	queue := []string{from}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if v == to {
			var rev []string
			for v != from {
				rev = append(rev, v)
				v = parent[v]
			}
			rev = append(rev, from)
			path := make([]string, len(rev))
			for i, w := range rev {
				path[len(rev)-1-i] = w
			}
			return path
		}
		for _, w := range adj[v] {
			if !in[w] {
				continue
			}
			if _, seen := parent[w]; seen {
				continue
			}
			parent[w] = v
			queue = append(queue, w)
		}
	}
	return nil
}
