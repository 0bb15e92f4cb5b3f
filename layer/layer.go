// Package layer names the physical cache tiers and defines the storage
// collaborator each tier must provide.
//
// The engine never stores bytes itself: every tier registers a Store, and all
// reads, writes, deletes and key enumeration go through that interface. A
// tier identifier is an open set — Client, Edge and Server are the
// conventional three, but custom tiers (e.g. a regional edge ring) are just
// additional IDs with their own Store.
package layer

// ID identifies a cache tier.
type ID string

// Conventional tiers. Custom IDs are allowed anywhere an ID is accepted.
const (
	Client ID = "client"
	Edge   ID = "edge"
	Server ID = "server"
)

// None is the zero ID, used where no tier applies (e.g. ownerless zones).
const None ID = ""

func (id ID) String() string { return string(id) }

// Valid reports whether the ID is non-empty.
func (id ID) Valid() bool { return id != None }
