package ownership

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/pattern"
)

// Sentinel causes carried by AccessError. Match with errors.Is.
var (
	// ErrOwnershipViolation: a write or delete from a tier that does not
	// own the key's space.
	ErrOwnershipViolation = errors.New("write outside owned key space")

	// ErrBorrowViolation: a read from a tier holding neither ownership nor
	// a borrow grant covering the key.
	ErrBorrowViolation = errors.New("no read grant for key space")

	// ErrNoMatchingPattern: the key matches no registered pattern and the
	// graph runs the restrictive unmatched-key policy.
	ErrNoMatchingPattern = errors.New("no registered pattern matches key")
)

// BuildError carries every violation found while validating a registration.
// Validation is eager and exhaustive: one build reports all conflicts,
// dangling borrows, cycles, malformed texts and dangling edges at once.
type BuildError struct {
	Violations []error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("ownership: registration rejected, %d violation(s)", len(e.Violations))
}

// Unwrap exposes the individual violations to errors.Is / errors.As.
func (e *BuildError) Unwrap() []error { return e.Violations }

// ConflictError reports two Owner declarations whose key spaces overlap
// without being a same-tier re-registration (strict nesting on one layer).
type ConflictError struct {
	A *pattern.Pattern
	B *pattern.Pattern
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting owners: %s overlaps %s", e.A, e.B)
}

// DanglingBorrowError reports a Borrower declaration covered by no Owner
// pattern and not marked as a free-read zone.
type DanglingBorrowError struct {
	Borrow *pattern.Pattern
}

func (e *DanglingBorrowError) Error() string {
	return fmt.Sprintf("%s borrows from nothing: no owner covers it and free-read is not declared", e.Borrow)
}

// CycleError reports one cycle in the Invalidates subgraph. Texts holds the
// cycle members in traversal order; the edge from the last back to the first
// closes the loop.
type CycleError struct {
	Texts []string
}

func (e *CycleError) Error() string {
	if len(e.Texts) == 0 {
		return "invalidation cycle"
	}
	return fmt.Sprintf("invalidation cycle: %s -> %s", strings.Join(e.Texts, " -> "), e.Texts[0])
}

// DanglingEdgeError reports an edge endpoint naming no registered pattern.
type DanglingEdgeError struct {
	Edge    Edge
	Missing string
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("edge %q references unregistered pattern %q", e.Edge, e.Missing)
}

// InvalidEdgeError reports an edge that cannot be declared explicitly.
type InvalidEdgeError struct {
	Edge   Edge
	Reason string
}

func (e *InvalidEdgeError) Error() string {
	return fmt.Sprintf("edge %q: %s", e.Edge, e.Reason)
}

// AccessError reports a denied operation. The cause is one of the sentinel
// errors above; Pattern and Owner carry the matched declaration and the
// authoritative tier when a match existed.
type AccessError struct {
	Key     string
	From    layer.ID
	Mode    Mode
	Pattern string
	Owner   layer.ID
	Err     error
}

func (e *AccessError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ownership: %s %q from layer %q: %v", e.Mode, e.Key, e.From, e.Err)
	if e.Pattern != "" {
		fmt.Fprintf(&b, " (pattern %q", e.Pattern)
		if e.Owner.Valid() {
			fmt.Fprintf(&b, ", owner %q", e.Owner)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (e *AccessError) Unwrap() error { return e.Err }
