// Package token issues, validates, rotates and revokes JWT access and
// refresh tokens.
//
// Signing keys come from the keys package; a kid header on every token binds
// it to the key that signed it. Durable token records live in a [Store];
// a Redis-backed [RevocationCache] makes the hot revocation check cheap
// without weakening the durable truth. Revocation state is fail-closed: a
// missing access token record counts as revoked.
//
// Refresh tokens are persisted as a SHA-256 hash only; the raw token string
// exists nowhere but in the caller's hands. At most one live token of each
// type exists per (subject, device) pair: saving a new record revokes its
// live siblings in the same store operation.
package token
