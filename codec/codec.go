// Package codec serializes cache values. The engine frames codec output
// with provenance before it reaches a tier store and unframes it on the way
// back; codecs only see the payload bytes.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
