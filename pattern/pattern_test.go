package pattern

import (
	"errors"
	"testing"

	"github.com/saint0x/stateless/layer"
)

func mustNew(t *testing.T, text string) *Pattern {
	t.Helper()
	p, err := New(text)
	if err != nil {
		t.Fatalf("New(%q): %v", text, err)
	}
	return p
}

func TestPrepareRejectsMalformedTexts(t *testing.T) {
	cases := []struct {
		text   string
		reason string
	}{
		{"", "empty pattern"},
		{"user:", "empty segment"},
		{":user", "empty segment"},
		{"user::posts", "empty segment"},
		{"user:*:posts", "wildcard must be the terminal segment"},
		{"user:po*st", "wildcard must stand alone in its segment"},
		{"user:{}", "empty capture name"},
		{"user:{id", "unmatched brace"},
		{"user:id}", "unmatched brace"},
		{"user:{i{d}}", "unmatched brace"},
	}
	for _, tc := range cases {
		_, err := New(tc.text)
		if err == nil {
			t.Fatalf("New(%q): expected syntax error", tc.text)
		}
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("New(%q): error type %T, want *SyntaxError", tc.text, err)
		}
		if se.Reason != tc.reason {
			t.Fatalf("New(%q): reason %q, want %q", tc.text, se.Reason, tc.reason)
		}
	}
}

func TestPrepareRequiresKindAndLayerTogether(t *testing.T) {
	// layer without kind
	if _, err := Prepare(Pattern{Text: "a", Layer: layer.Client}, 0); err == nil {
		t.Fatalf("expected error for layer without ownership kind")
	}
	// kind without layer
	if _, err := Prepare(Pattern{Text: "a", Ownership: Owner}, 0); err == nil {
		t.Fatalf("expected error for ownership kind without layer")
	}
	// out-of-range kind
	if _, err := Prepare(Pattern{Text: "a", Layer: layer.Client, Ownership: Kind(9)}, 0); err == nil {
		t.Fatalf("expected error for out-of-range kind")
	}
	// both zero is the match-only form
	if _, err := Prepare(Pattern{Text: "a"}, 0); err != nil {
		t.Fatalf("match-only pattern: %v", err)
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"user:*", "user:42", true},
		{"user:*", "user:42:posts", true},
		{"user:*", "user", false}, // '*' consumes at least one segment
		{"user:*", "account:42", false},
		{"user:{id}", "user:42", true},
		{"user:{id}", "user:42:posts", false},
		{"user:{id}:posts", "user:42:posts", true},
		{"session:{sid}:data", "session:abc:data", true},
		{"session:{sid}:data", "session:abc:meta", false},
		{"config:app", "config:app", true},
		{"config:app", "config:app:x", false},
		{"config:app", "config", false},
	}
	for _, tc := range cases {
		p := mustNew(t, tc.pattern)
		if got := p.Matches(tc.key); got != tc.want {
			t.Fatalf("%q.Matches(%q) = %v, want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}

func TestCovers(t *testing.T) {
	cases := []struct {
		p, q string
		want bool
	}{
		{"user:*", "user:42", true},
		{"user:*", "user:{id}:posts", true},
		{"user:*", "user:*", true},
		{"user:*", "account:*", false},
		{"user:*", "user", false}, // the one-segment key "user" matches q but not p
		{"user:{id}", "user:42", true},
		{"user:42", "user:{id}", false},
		{"user:{id}", "user:*", false},
		{"user:{id}:posts", "user:42:posts", true},
		{"user:{id}:posts", "user:*", false},
		{"a", "a", true},
		{"a", "a:b", false},
		{"*", "anything:at:all", true},
	}
	for _, tc := range cases {
		p, q := mustNew(t, tc.p), mustNew(t, tc.q)
		if got := p.Covers(q); got != tc.want {
			t.Fatalf("%q.Covers(%q) = %v, want %v", tc.p, tc.q, got, tc.want)
		}
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		p, q string
		want bool
	}{
		{"user:*", "user:*", true},
		{"user:*", "user:{id}:posts", true},
		{"user:{id}", "user:42", true},
		{"user:42", "user:43", false},
		{"user:*", "account:*", false},
		{"a:b", "a:b:c", false}, // fixed lengths differ, no wildcard to absorb
		{"a:*", "a", false},
		{"{x}:b", "a:{y}", true},
	}
	for _, tc := range cases {
		p, q := mustNew(t, tc.p), mustNew(t, tc.q)
		if got := p.Overlaps(q); got != tc.want {
			t.Fatalf("%q.Overlaps(%q) = %v, want %v", tc.p, tc.q, got, tc.want)
		}
		// overlap is symmetric
		if got := q.Overlaps(p); got != tc.want {
			t.Fatalf("%q.Overlaps(%q) = %v, want %v", tc.q, tc.p, got, tc.want)
		}
	}
}

func TestKeyPrefix(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
	}{
		{"user:*", "user:"},
		{"user:{id}:posts", "user:"},
		{"config:app", "config:app"},
		{"api:v1:responses:*", "api:v1:responses:"},
		{"*", ""},
		{"{tenant}:cfg", ""},
	}
	for _, tc := range cases {
		if got := mustNew(t, tc.pattern).KeyPrefix(); got != tc.want {
			t.Fatalf("%q.KeyPrefix() = %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestExact(t *testing.T) {
	if !mustNew(t, "config:app:feature").Exact() {
		t.Fatalf("literal pattern should be exact")
	}
	if mustNew(t, "config:{env}").Exact() {
		t.Fatalf("capture pattern should not be exact")
	}
	if mustNew(t, "config:*").Exact() {
		t.Fatalf("wildcard pattern should not be exact")
	}
}

func TestConstraintAccessors(t *testing.T) {
	p, err := Prepare(Pattern{
		Text:      "cdn:assets:*",
		Layer:     layer.Edge,
		Ownership: Owner,
		Constraints: []Constraint{
			{Name: ConstraintRegion, Value: "us-east"},
			{Name: ConstraintConsistency, Value: ConsistencyStrong},
			{Name: ConstraintFreeRead},
			{Name: ConstraintRegion, Value: "eu-west"}, // repeat, first wins
		},
	}, 0)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if v, ok := p.Constraint(ConstraintRegion); !ok || v != "us-east" {
		t.Fatalf("region constraint: got %q ok=%v", v, ok)
	}
	if !p.StrongConsistency() {
		t.Fatalf("expected strong consistency")
	}
	if !p.FreeRead() {
		t.Fatalf("expected free-read")
	}
	if _, ok := p.Constraint(ConstraintTTL); ok {
		t.Fatalf("ttl constraint should be absent")
	}

	// compiled copy must not alias the caller's slice
	base := Pattern{Text: "x", Constraints: []Constraint{{Name: "a", Value: "1"}}}
	cp, err := Prepare(base, 0)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	base.Constraints[0].Value = "2"
	if v, _ := cp.Constraint("a"); v != "1" {
		t.Fatalf("compiled constraints alias caller slice: got %q", v)
	}
}
