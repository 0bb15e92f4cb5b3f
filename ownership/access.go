package ownership

import (
	"fmt"

	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/pattern"
)

// Mode is the access class of one operation. Delete carries the same
// authority requirement as Write: only the owning tier may remove entries.
type Mode uint8

const (
	Read Mode = iota + 1
	Write
	Delete
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool { return m >= Read && m <= Delete }

// Request describes one cache operation to authorize: which key, what kind
// of access, and which tier is asking. Requests are built per call,
// validated, and discarded.
type Request struct {
	Key  string
	Mode Mode
	From layer.ID
}

// Grant is the successful outcome of validation: the most specific matched
// declaration, its capture bindings, and the authority picture for the key.
// Strategies place entries from this. A zero Grant (Pattern nil) means the
// key matched nothing under the permissive policy.
type Grant struct {
	// Pattern is the most specific declaration matching the key.
	Pattern  *pattern.Pattern
	Bindings map[string]string

	// Owner is the tier holding write authority over the key. None when
	// the key lives in a pure free-read zone or matched nothing.
	Owner        layer.ID
	OwnerPattern *pattern.Pattern

	// Borrows are the borrower declarations covering the key, most
	// specific first.
	Borrows []*pattern.Pattern
}

// Matched reports whether the key matched any declaration.
func (g Grant) Matched() bool { return g.Pattern != nil }

// OwnedBy reports whether id holds write authority over the key.
func (g Grant) OwnedBy(id layer.ID) bool { return g.Owner.Valid() && g.Owner == id }

// BorrowedBy reports whether id holds a borrow grant covering the key.
func (g Grant) BorrowedBy(id layer.ID) bool {
	for _, b := range g.Borrows {
		if b.Layer == id {
			return true
		}
	}
	return false
}

// Readable reports whether id may read the key.
func (g Grant) Readable(id layer.ID) bool { return g.OwnedBy(id) || g.BorrowedBy(id) }

// ValidateAccess authorizes one operation against the graph. Reads pass for
// the owner and for tiers borrowing a space that covers the key; writes and
// deletes pass for the owner alone. Denials are *AccessError values whose
// cause is one of the package sentinels.
//
// The owner of a key is the tier of the most specific Owner declaration
// matching it. Conflict-free construction guarantees every Owner
// declaration covering one key belongs to the same tier, so the choice is
// unambiguous.
func (g *Graph) ValidateAccess(req Request) (Grant, error) {
	if req.Key == "" {
		return Grant{}, fmt.Errorf("ownership: empty key")
	}
	if !req.From.Valid() {
		return Grant{}, fmt.Errorf("ownership: request from unspecified layer")
	}
	if !req.Mode.Valid() {
		return Grant{}, fmt.Errorf("ownership: unknown access mode %d", req.Mode)
	}

	ms := g.matcher.Match(req.Key)
	if len(ms) == 0 {
		if g.policy == Permissive {
			return Grant{}, nil
		}
		return Grant{}, &AccessError{Key: req.Key, From: req.From, Mode: req.Mode, Err: ErrNoMatchingPattern}
	}

	grant := grantFor(ms)
	switch req.Mode {
	case Read:
		if grant.Readable(req.From) {
			return grant, nil
		}
		return Grant{}, &AccessError{
			Key: req.Key, From: req.From, Mode: req.Mode,
			Pattern: grant.Pattern.Text, Owner: grant.Owner,
			Err: ErrBorrowViolation,
		}
	default: // Write, Delete
		if grant.OwnedBy(req.From) {
			return grant, nil
		}
		return Grant{}, &AccessError{
			Key: req.Key, From: req.From, Mode: req.Mode,
			Pattern: grant.Pattern.Text, Owner: grant.Owner,
			Err: ErrOwnershipViolation,
		}
	}
}

func grantFor(ms []pattern.Match) Grant {
	g := Grant{Pattern: ms[0].Pattern, Bindings: ms[0].Bindings}
	for _, m := range ms {
		switch m.Pattern.Ownership {
		case pattern.Owner:
			if g.OwnerPattern == nil {
				g.OwnerPattern = m.Pattern
				g.Owner = m.Pattern.Layer
			}
		case pattern.Borrower:
			g.Borrows = append(g.Borrows, m.Pattern)
		}
	}
	return g
}
