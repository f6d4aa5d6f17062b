// Package password provides Argon2id password hashing in PHC string
// format, parameter upgrades, and a timing-equalized dummy verification
// for unknown-user login paths.
package password
