// Package internal holds shared helpers that must not leak into the public
// API surface: token identifier generation, signing key material generation,
// and one-way token hashing.
package internal
