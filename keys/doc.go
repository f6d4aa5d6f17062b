// Package keys manages the signing key lifecycle: durable storage, in-memory
// current-key selection, interval-based rotation, and pruning of historical
// keys beyond the retention window.
//
// The durable [Store] owns key records exclusively; [Manager] holds a
// read-through snapshot ordered by creation time and swaps it atomically so
// concurrent readers never observe a partially-updated view. Rotation in a
// multi-instance deployment is guarded by a non-blocking distributed [Lessor]
// lease so exactly one process performs the generate-persist-prune sequence
// per interval; losing the lease race is a silent skip, not an error.
//
// Tokens signed by a key that has been pruned fail verification with
// [ErrUnknownKey] on their next use. This is intended: the retention window
// bounds the exposure of old key material.
package keys
