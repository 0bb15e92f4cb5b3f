// Package stateless implements a validation and routing engine for tiered
// caches. Tiers (client, edge, server, or custom) declare ownership of key
// spaces through patterns; every operation is checked against those
// declarations and placed on a tier by a pluggable strategy before any
// store is touched. A denied operation never reaches storage.
//
// Components:
//   - layer.Store: byte store with TTL per tier (e.g. in-memory, Ristretto,
//     BigCache, Redis).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - ownership.Registration: pattern declarations plus Invalidates edges;
//     validated eagerly and rejected whole with every violation reported.
//   - strategy.Strategy: placement policy (ClientFirst, EdgeOptimized,
//     GlobalConsistent, or your own).
//
// Patterns are ":"-delimited, with "{name}" captures and a terminal "*"
// wildcard: "user:{id}:posts" matches "user:42:posts", "user:*" matches
// any longer user key. The most specific registered pattern governs a key.
//
// Writes are framed with provenance (authoring tier, write time) before
// they reach a store; reads that hit bytes failing frame or value decode
// delete the entry in place and report a miss.
//
// Invalidation pattern:
//
//	_ = cache.Set(ctx, layer.Server, "user:42", u) // owner writes
//	tasks, _ := cache.PlanInvalidation(ctx, "user:42")
//	// tasks name the derived spaces (per Invalidates edges) whose
//	// entries are now stale, resolved to concrete keys per tier.
package stateless
