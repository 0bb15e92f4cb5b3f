package stateless

import (
	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The coordinator calls them on hot paths.
type Hooks interface {
	// A single entry was deleted by the coordinator on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// An operation failed ownership validation.
	AccessDenied(key string, from layer.ID, mode ownership.Mode)

	// The strategy placed an operation on a tier with no registered store.
	RoutingDenied(key string, target layer.ID)

	// Store returned ok=false on Set (backpressure/eviction).
	StoreSetRejected(target layer.ID, storageKey string)

	// A planned invalidation delete failed on one tier (likely backend outage).
	InvalidateFailed(target layer.ID, storageKey string, err error)

	// A watcher's queue was full and an event was dropped.
	WatchDropped(pattern string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                       {}
func (NopHooks) AccessDenied(string, layer.ID, ownership.Mode) {}
func (NopHooks) RoutingDenied(string, layer.ID)                {}
func (NopHooks) StoreSetRejected(layer.ID, string)             {}
func (NopHooks) InvalidateFailed(layer.ID, string, error)      {}
func (NopHooks) WatchDropped(string)                           {}
