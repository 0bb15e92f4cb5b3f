// Package keyspace builds and splits the store keys the engine hands to
// tier stores. Cache keys are namespaced so unrelated engines can share one
// physical store; because enumeration has to strip the namespace back off,
// namespaces must not contain the separator.
package keyspace

import "strings"

const sep = ":"

// Valid reports whether ns can namespace a store: non-empty and free of
// the separator.
func Valid(ns string) bool {
	return ns != "" && !strings.Contains(ns, sep)
}

// Join builds the store key for one cache key.
func Join(ns, key string) string {
	return ns + sep + key
}

// Prefix builds the store-key prefix covering every cache key that starts
// with keyPrefix. An empty keyPrefix covers the whole namespace.
func Prefix(ns, keyPrefix string) string {
	return ns + sep + keyPrefix
}

// Strip removes the namespace from a store key produced by Join. ok is
// false when the store key belongs to a different namespace.
func Strip(ns, storeKey string) (key string, ok bool) {
	p := ns + sep
	if !strings.HasPrefix(storeKey, p) {
		return "", false
	}
	return storeKey[len(p):], true
}
