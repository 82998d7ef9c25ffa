// Package crypto provides the primitive operations the rest of parrhesia-core
// is built on: post-quantum KEM and signatures, AEAD, and key derivation.
// Nothing here understands rooms, peers, or trees — it only wraps circl and
// the standard library with the exact parameter choices the protocol needs.
package crypto
