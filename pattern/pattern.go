// Package pattern implements the key-pattern model of the engine: a pattern
// describes a family of cache keys, declares which tier relates to that
// family (as owner or borrower), and compiles into a trie-backed matcher
// that resolves concrete keys to the patterns covering them.
//
// Syntax. A pattern is a sequence of segments separated by ':'. A segment is
// either a literal, the wildcard '*' (terminal only; matches that segment and
// the whole remaining suffix of the key), or a capture '{name}' (matches
// exactly one segment of any content and binds it). '*' and braces may not be
// embedded inside a literal segment.
package pattern

import (
	"fmt"
	"strings"

	"github.com/saint0x/stateless/layer"
)

// Separator splits keys and pattern texts into segments.
const Separator = ":"

const starSeg = "*"

// Kind says how a tier relates to a pattern's key space.
type Kind uint8

const (
	// Owner grants the declaring tier exclusive write authority over every
	// key the pattern matches, including keys under more specific nested
	// patterns unless those are re-declared by the same tier or borrowed.
	Owner Kind = iota + 1

	// Borrower grants the declaring tier read-only access to the pattern's
	// key space. Borrows nest under exactly one owner, or carry the
	// free-read constraint to stand alone.
	Borrower
)

func (k Kind) String() string {
	switch k {
	case Owner:
		return "owner"
	case Borrower:
		return "borrower"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k == Owner || k == Borrower }

// Well-known constraint names. Constraints are open-ended; these are the
// names the engine and built-in strategies interpret.
const (
	// ConstraintRegion tags a read-mostly pattern with a serving region.
	// The EdgeOptimized strategy routes reads of such patterns to the edge.
	ConstraintRegion = "region"

	// ConstraintConsistency with value "strong" pins every operation on the
	// pattern to the owning tier regardless of strategy preference.
	ConstraintConsistency = "consistency"

	// ConstraintFreeRead marks a Borrower pattern as a free-read zone: it
	// needs no enclosing owner. The value is ignored.
	ConstraintFreeRead = "free-read"

	// ConstraintTTL documents a suggested entry lifetime for tooling. The
	// engine does not act on it; per-call TTLs win.
	ConstraintTTL = "ttl"
)

// ConsistencyStrong is the ConstraintConsistency value the engine interprets.
const ConsistencyStrong = "strong"

// Constraint is a named tag attached to a pattern declaration.
type Constraint struct {
	Name  string
	Value string
}

// Pattern is one declaration in a registration set: a key template plus the
// tier and ownership kind declaring it. The zero value is not usable;
// declarations are validated and compiled by Prepare (directly or through
// Compile / the ownership graph build).
type Pattern struct {
	Text        string
	Layer       layer.ID
	Ownership   Kind
	Constraints []Constraint

	// compiled state, set by Prepare; nil segs means "not compiled".
	segs      []string
	star      bool // terminal '*' present
	vars      int  // number of '{name}' segments
	litPrefix int  // leading literal segments before the first '*' or '{..}'
	order     int  // registration index, tie-breaker for specificity
}

// SyntaxError reports a malformed pattern text.
type SyntaxError struct {
	Text   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pattern %q: %s", e.Text, e.Reason)
}

// New parses text into a standalone pattern with no tier attached. It is the
// constructor for match-only uses such as watch filters.
func New(text string) (*Pattern, error) {
	p := Pattern{Text: text}
	return Prepare(p, 0)
}

// Prepare validates a declaration and returns a compiled copy. order is the
// registration index; it breaks specificity ties, so callers compiling a set
// must hand out increasing values in declaration order. A Layer/Ownership of
// zero is only acceptable for match-only patterns (both zero); a declaration
// carrying either must carry both.
func Prepare(p Pattern, order int) (*Pattern, error) {
	segs, err := parseText(p.Text)
	if err != nil {
		return nil, err
	}
	if (p.Layer != layer.None || p.Ownership != 0) && !p.Ownership.Valid() {
		return nil, &SyntaxError{Text: p.Text, Reason: "ownership kind unspecified"}
	}
	if p.Ownership.Valid() && !p.Layer.Valid() {
		return nil, &SyntaxError{Text: p.Text, Reason: "declaring layer unspecified"}
	}

	cp := p
	cp.Constraints = append([]Constraint(nil), p.Constraints...)
	cp.segs = segs
	cp.order = order
	cp.litPrefix = len(segs)
	for i, s := range segs {
		switch {
		case s == starSeg:
			cp.star = true
		case isVar(s):
			cp.vars++
		default:
			continue
		}
		if cp.litPrefix == len(segs) {
			cp.litPrefix = i
		}
	}
	return &cp, nil
}

func parseText(text string) ([]string, error) {
	if text == "" {
		return nil, &SyntaxError{Text: text, Reason: "empty pattern"}
	}
	segs := strings.Split(text, Separator)
	for i, s := range segs {
		switch {
		case s == "":
			return nil, &SyntaxError{Text: text, Reason: "empty segment"}
		case s == starSeg:
			if i != len(segs)-1 {
				return nil, &SyntaxError{Text: text, Reason: "wildcard must be the terminal segment"}
			}
		case strings.Contains(s, starSeg):
			return nil, &SyntaxError{Text: text, Reason: "wildcard must stand alone in its segment"}
		case isVar(s):
			if len(s) == 2 {
				return nil, &SyntaxError{Text: text, Reason: "empty capture name"}
			}
			if strings.ContainsAny(s[1:len(s)-1], "{}") {
				return nil, &SyntaxError{Text: text, Reason: "unmatched brace"}
			}
		case strings.ContainsAny(s, "{}"):
			return nil, &SyntaxError{Text: text, Reason: "unmatched brace"}
		}
	}
	return segs, nil
}

func isVar(seg string) bool {
	return len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func varName(seg string) string { return seg[1 : len(seg)-1] }

// segments returns the compiled segment list, parsing on the fly for
// patterns built as plain literals. It never mutates p, so concurrent use of
// a shared compiled pattern is safe.
func (p *Pattern) segments() []string {
	if p.segs != nil {
		return p.segs
	}
	segs, err := parseText(p.Text)
	if err != nil {
		return nil
	}
	return segs
}

// Exact reports whether the pattern is fully literal, i.e. matches exactly
// one key.
func (p *Pattern) Exact() bool {
	segs := p.segments()
	if segs == nil {
		return false
	}
	for _, s := range segs {
		if s == starSeg || isVar(s) {
			return false
		}
	}
	return true
}

// Matches reports whether key belongs to the pattern's key space.
func (p *Pattern) Matches(key string) bool {
	psegs := p.segments()
	if psegs == nil {
		return false
	}
	ksegs := strings.Split(key, Separator)
	for i, s := range psegs {
		if s == starSeg {
			// the wildcard consumes this segment and the rest; it needs
			// at least one segment to consume
			return len(ksegs) > i
		}
		if i >= len(ksegs) {
			return false
		}
		if isVar(s) {
			continue
		}
		if s != ksegs[i] {
			return false
		}
	}
	return len(ksegs) == len(psegs)
}

// Covers reports whether every key matching q also matches p.
func (p *Pattern) Covers(q *Pattern) bool {
	ps, qs := p.segments(), q.segments()
	if ps == nil || qs == nil {
		return false
	}
	for i := 0; ; i++ {
		pEnd, qEnd := i >= len(ps), i >= len(qs)
		switch {
		case pEnd && qEnd:
			return true
		case pEnd:
			return false // q admits longer keys than p
		}
		if ps[i] == starSeg {
			// p absorbs any suffix; q just has to guarantee one exists
			return !qEnd
		}
		if qEnd {
			return false // q's keys stop here, p requires more segments
		}
		switch {
		case qs[i] == starSeg:
			return false // unbounded q suffix, bounded p segment
		case isVar(ps[i]):
			// one segment of any content covers literal and capture alike
		case isVar(qs[i]):
			return false
		case ps[i] != qs[i]:
			return false
		}
	}
}

// Overlaps reports whether some key matches both p and q.
func (p *Pattern) Overlaps(q *Pattern) bool {
	ps, qs := p.segments(), q.segments()
	if ps == nil || qs == nil {
		return false
	}
	for i := 0; ; i++ {
		pEnd, qEnd := i >= len(ps), i >= len(qs)
		switch {
		case pEnd && qEnd:
			return true
		case pEnd || qEnd:
			// the shorter side's keys have exactly i segments, the longer
			// side demands at least one more (even through '*')
			return false
		}
		switch {
		case ps[i] == starSeg || qs[i] == starSeg:
			return true
		case isVar(ps[i]) || isVar(qs[i]):
			// one unconstrained segment on either side is compatible
		case ps[i] != qs[i]:
			return false
		}
	}
}

// KeyPrefix returns the literal key prefix shared by every key the pattern
// matches: the full text for exact patterns, otherwise the leading literal
// segments with a trailing separator ("user:" for "user:{id}:posts"). An
// empty prefix means the pattern constrains no leading literal.
func (p *Pattern) KeyPrefix() string {
	segs := p.segments()
	if segs == nil {
		return ""
	}
	if p.Exact() {
		return p.Text
	}
	lead := 0
	for _, s := range segs {
		if s == starSeg || isVar(s) {
			break
		}
		lead++
	}
	if lead == 0 {
		return ""
	}
	return strings.Join(segs[:lead], Separator) + Separator
}

// Constraint returns the value of the named constraint and whether it is
// declared. The first declaration wins when a name repeats.
func (p *Pattern) Constraint(name string) (string, bool) {
	for _, c := range p.Constraints {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// FreeRead reports whether the pattern is declared as a free-read zone.
func (p *Pattern) FreeRead() bool {
	_, ok := p.Constraint(ConstraintFreeRead)
	return ok
}

// StrongConsistency reports whether operations on the pattern are pinned to
// the owning tier.
func (p *Pattern) StrongConsistency() bool {
	v, ok := p.Constraint(ConstraintConsistency)
	return ok && v == ConsistencyStrong
}

// Order returns the registration index assigned at compile time.
func (p *Pattern) Order() int { return p.order }

func (p *Pattern) String() string {
	if !p.Ownership.Valid() {
		return p.Text
	}
	return fmt.Sprintf("%s(%s@%s)", p.Ownership, p.Text, p.Layer)
}

// key identifies a declaration for duplicate detection: the same tier may
// not declare the same text with the same kind twice, but the same text may
// be declared by different tiers or with a different kind (e.g. an owner and
// a borrower of the same space).
func (p *Pattern) key() string {
	return p.Text + "\x00" + string(p.Layer) + "\x00" + p.Ownership.String()
}
