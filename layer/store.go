package layer

import (
	"context"
	"time"
)

// Store is the minimal byte store a tier contributes to the engine.
//
// Implementations MUST be safe for concurrent use and MUST be byte-for-byte
// transparent: Get must return exactly the []byte previously passed to Set
// for the same key (no prepended metadata, no transcoding, no mutation).
// The engine frames values itself and treats any altered bytes as corruption.
//
// Keys handed to a Store are already namespaced by the engine; external code
// MUST NOT write under the engine's namespace prefix. Foreign writes fail
// strict frame validation on read and are deleted.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// IO/remote errors come back as (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	// Cost may be ignored by stores without cost-based admission.
	// ok=false with err=nil reports an intentional refusal under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Keys returns every stored key that begins with prefix. The engine
	// re-filters the result through the pattern matcher, so returning a
	// superset is fine; omitting live keys under prefix is not.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources held by the store.
	Close(ctx context.Context) error
}
