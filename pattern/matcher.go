package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/saint0x/stateless/layer"
)

// Match pairs a pattern with the segment bindings its captures took for a
// given key. Bindings is nil when the pattern has no captures.
type Match struct {
	Pattern  *Pattern
	Bindings map[string]string
}

// Matcher resolves keys against a fixed set of compiled patterns. Lookups
// walk a segment trie, so cost follows the key length rather than the number
// of registered patterns. A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	root   *node
	all    []*Pattern
	byText map[string][]*Pattern
}

// node branches on one key segment. Literal children take precedence only in
// the result ordering; the walk itself explores literal, capture and
// wildcard arms alike.
type node struct {
	literals map[string]*node
	variable *node
	stars    []*Pattern // declarations whose '*' consumes from this depth
	terminal []*Pattern // declarations ending exactly at this depth
}

// CompileError aggregates every declaration rejected by Compile.
type CompileError struct {
	Errors []error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern: compile rejected %d declaration(s)", len(e.Errors))
}

// Unwrap exposes the individual rejections to errors.Is / errors.As.
func (e *CompileError) Unwrap() []error { return e.Errors }

// DuplicateError reports a declaration registered twice: same text, same
// layer, same ownership kind.
type DuplicateError struct {
	Text      string
	Layer     layer.ID
	Ownership Kind
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("pattern %q: duplicate %s declaration on layer %q", e.Text, e.Ownership, e.Layer)
}

// PrepareSet compiles a declaration list, validating each entry and
// rejecting duplicates. It returns the compiled valid subset in declaration
// order together with every violation found; callers that must report all
// registration problems at once (the ownership graph build) layer their own
// checks on top of the valid subset.
func PrepareSet(ps []Pattern) ([]*Pattern, []error) {
	var (
		valid []*Pattern
		errs  []error
		seen  = make(map[string]struct{}, len(ps))
	)
	for i, p := range ps {
		cp, err := Prepare(p, i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[cp.key()]; dup {
			errs = append(errs, &DuplicateError{Text: cp.Text, Layer: cp.Layer, Ownership: cp.Ownership})
			continue
		}
		seen[cp.key()] = struct{}{}
		valid = append(valid, cp)
	}
	return valid, errs
}

// Compile builds a Matcher from a declaration list. Every declaration is
// validated; if any is rejected the returned error is a *CompileError
// carrying all rejections.
func Compile(ps []Pattern) (*Matcher, error) {
	valid, errs := PrepareSet(ps)
	if len(errs) > 0 {
		return nil, &CompileError{Errors: errs}
	}
	return NewMatcher(valid), nil
}

// NewMatcher indexes already-compiled patterns. Callers are expected to have
// obtained them from Prepare or PrepareSet.
func NewMatcher(ps []*Pattern) *Matcher {
	m := &Matcher{
		root:   &node{},
		all:    ps,
		byText: make(map[string][]*Pattern, len(ps)),
	}
	for _, p := range ps {
		m.insert(p)
		m.byText[p.Text] = append(m.byText[p.Text], p)
	}
	return m
}

func (m *Matcher) insert(p *Pattern) {
	n := m.root
	for _, seg := range p.segs {
		if seg == starSeg {
			n.stars = append(n.stars, p)
			return
		}
		if isVar(seg) {
			if n.variable == nil {
				n.variable = &node{}
			}
			n = n.variable
			continue
		}
		if n.literals == nil {
			n.literals = make(map[string]*node)
		}
		child := n.literals[seg]
		if child == nil {
			child = &node{}
			n.literals[seg] = child
		}
		n = child
	}
	n.terminal = append(n.terminal, p)
}

// Match returns every pattern whose key space contains key, most specific
// first: exact texts beat wildcards, captures beat '*', longer literal
// prefixes beat shorter, and declaration order breaks remaining ties.
func (m *Matcher) Match(key string) []Match {
	segs := strings.Split(key, Separator)
	var hits []*Pattern

	var walk func(n *node, i int)
	walk = func(n *node, i int) {
		if i < len(segs) {
			hits = append(hits, n.stars...)
		}
		if i == len(segs) {
			hits = append(hits, n.terminal...)
			return
		}
		if child := n.literals[segs[i]]; child != nil {
			walk(child, i+1)
		}
		if n.variable != nil {
			walk(n.variable, i+1)
		}
	}
	walk(m.root, 0)

	if len(hits) == 0 {
		return nil
	}
	sortBySpecificity(hits)

	out := make([]Match, len(hits))
	for i, p := range hits {
		out[i] = Match{Pattern: p, Bindings: bind(p, segs)}
	}
	return out
}

// Best returns the most specific match for key, if any.
func (m *Matcher) Best(key string) (Match, bool) {
	ms := m.Match(key)
	if len(ms) == 0 {
		return Match{}, false
	}
	return ms[0], true
}

// Lookup returns the declarations registered under an exact pattern text, in
// declaration order.
func (m *Matcher) Lookup(text string) []*Pattern { return m.byText[text] }

// Patterns returns every compiled declaration in registration order. The
// returned slice is shared; callers must not mutate it.
func (m *Matcher) Patterns() []*Pattern { return m.all }

// Len returns the number of registered declarations.
func (m *Matcher) Len() int { return len(m.all) }

func bind(p *Pattern, ksegs []string) map[string]string {
	if p.vars == 0 {
		return nil
	}
	b := make(map[string]string, p.vars)
	for i, seg := range p.segs {
		if isVar(seg) {
			b[varName(seg)] = ksegs[i]
		}
	}
	return b
}

// MoreSpecific reports whether a resolves before b: fully literal texts
// first, then fewer wildcards, fewer captures, longer literal prefixes, and
// finally earlier declaration. Both patterns must be compiled.
func MoreSpecific(a, b *Pattern) bool {
	if ae, be := a.star || a.vars > 0, b.star || b.vars > 0; ae != be {
		return be // fully literal first
	}
	if a.star != b.star {
		return b.star // '*' is the least specific segment kind
	}
	if a.vars != b.vars {
		return a.vars < b.vars
	}
	if a.litPrefix != b.litPrefix {
		return a.litPrefix > b.litPrefix
	}
	return a.order < b.order
}

func sortBySpecificity(ps []*Pattern) {
	sort.SliceStable(ps, func(i, j int) bool { return MoreSpecific(ps[i], ps[j]) })
}
