package ownership

import "fmt"

// EdgeKind classifies a relationship in the ownership graph.
type EdgeKind uint8

const (
	// Owns links a tier to a pattern it has write authority over. Owns
	// edges are derived from Owner pattern declarations; they cannot be
	// supplied explicitly.
	Owns EdgeKind = iota + 1

	// Borrows links a tier to a pattern it may read. Like Owns, derived
	// from Borrower declarations only.
	Borrows

	// Invalidates links two patterns: a write into the source's key space
	// invalidates entries under the target. Invalidates edges form the
	// subgraph walked by invalidation planning and must be acyclic.
	Invalidates

	// Derives marks the source pattern's entries as computed from the
	// target's. Documentary: validated for dangling endpoints and exposed
	// to tooling, never walked automatically.
	Derives
)

func (k EdgeKind) String() string {
	switch k {
	case Owns:
		return "owns"
	case Borrows:
		return "borrows"
	case Invalidates:
		return "invalidates"
	case Derives:
		return "derives"
	default:
		return fmt.Sprintf("edge(%d)", uint8(k))
	}
}

// Edge is a directed relationship between two registered pattern texts.
// Registrations may declare Invalidates and Derives edges; Owns and Borrows
// edges exist only in snapshots, synthesized from the pattern declarations.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

func (e Edge) String() string {
	return fmt.Sprintf("%s %s %s", e.From, e.Kind, e.To)
}
