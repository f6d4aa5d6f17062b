// Package goWarden is an embeddable authentication and authorization core:
// rotating-key JWT issuance and validation, durable token revocation,
// brute force lockout, token-level rate limiting and a hybrid role, group
// and attribute based policy engine.
//
// The host application owns account storage and exposes it through
// [UserProvider]; goWarden owns everything from credential verification to
// the authorization decision. State that must be shared across instances
// lives in PostgreSQL (signing keys, tokens, policy rules) and Redis
// (lockout counters, rate limit windows, revocation cache, rotation lease,
// policy change notifications), so any number of instances can serve the
// same deployment.
//
// Build an [Engine] with the [Builder]:
//
//	engine, err := goWarden.New().
//	    WithRedis(redisClient).
//	    WithKeyStore(keys.NewPGStore(db)).
//	    WithTokenStore(token.NewPGStore(db)).
//	    WithPolicyStore(policy.NewPGStore(db)).
//	    WithUserProvider(users).
//	    Build(ctx)
//
// Then drive it with Login, Refresh, Authorize, Logout and LogoutAll, or
// mount the middleware package in front of an http.Handler.
package goWarden
