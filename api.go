package stateless

import (
	"context"
	"time"

	c "github.com/saint0x/stateless/codec"
	"github.com/saint0x/stateless/layer"
	"github.com/saint0x/stateless/ownership"
	"github.com/saint0x/stateless/strategy"
)

// SetCostFunc prices one framed entry for stores with cost-based admission.
type SetCostFunc func(key string, raw []byte) int64

// Aliases so common call sites only import the root package.
type (
	Registration = ownership.Registration
	Operation    = ownership.Request
	Grant        = ownership.Grant
)

// Access modes, re-exported for building Operation values.
const (
	Read   = ownership.Read
	Write  = ownership.Write
	Delete = ownership.Delete
)

// Entry is a decoded value together with its provenance frame.
type Entry[V any] struct {
	Value     V
	Origin    layer.ID  // tier that authored the write
	WrittenAt time.Time // stamp taken when the write was framed
	Stored    layer.ID  // tier the bytes were served from
}

type Cache[V any] = Coordinator[V] // just an alias -> stateless.Cache[User] or stateless.Coordinator[User]

// Coordinator is the high-level, store-agnostic cache API for a tiered
// deployment. Every operation is validated against the ownership graph and
// placed by the strategy before any store is touched; a denied operation
// never reaches storage. V is the caller's value type. Serialization is
// handled by a pluggable Codec[V].
type Coordinator[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Keyed operations. from names the tier making the call.
	Get(ctx context.Context, from layer.ID, key string) (v V, ok bool, err error)
	GetEntry(ctx context.Context, from layer.ID, key string) (e Entry[V], ok bool, err error)
	Exists(ctx context.Context, from layer.ID, key string) (bool, error)
	Set(ctx context.Context, from layer.ID, key string, value V) error
	SetTTL(ctx context.Context, from layer.ID, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, from layer.ID, key string) error

	// Decision surface. Route answers where an operation would land
	// without touching storage. PlanInvalidation reads stores to resolve
	// concrete keys but never writes.
	Route(op Operation) (layer.ID, error)
	PlanInvalidation(ctx context.Context, key string) ([]InvalidationTask, error)

	// Pattern-space operations.
	InvalidatePattern(ctx context.Context, from layer.ID, text string) ([]InvalidationTask, error)
	Keys(ctx context.Context, from layer.ID, text string) ([]string, error)

	// Watch registers fn for storage events on keys matching text. The
	// returned cancel releases the watcher.
	Watch(text string, fn WatchFunc) (cancel func(), err error)

	// Registration lifecycle.
	Graph() *ownership.Graph
	Reload(reg Registration) error
}

// Options tune the behavior of the generic coordinator.
// Namespace, Stores, Codec and Registration are required; others have
// sensible defaults.
type Options[V any] struct {
	// Required
	Namespace    string                   // store-key prefix so engines can share a physical store. e.g. "app", "billing"
	Stores       map[layer.ID]layer.Store // one byte store per participating tier
	Codec        c.Codec[V]
	Registration Registration // ownership declarations; rejected whole on any violation

	Strategy       strategy.Strategy // nil => strategy.ClientFirst
	Logger         Logger            // if nil, NopLogger is used
	Hooks          Hooks             // if nil, NopHooks is used
	DefaultTTL     time.Duration     // 0 => 10m
	WatchQueue     int               // watcher delivery buffer; 0 => 256
	Disabled       bool              // default false (enabled)
	ComputeSetCost SetCostFunc       // default: framed length in bytes
	Clock          func() time.Time  // provenance stamps; nil => time.Now
}

func New[V any](opts Options[V]) (Coordinator[V], error) {
	return newEngine[V](opts)
}
