// Package middleware adapts HTTP requests to goWarden.Engine authorization.
//
// [Guard] reads the bearer token from the Authorization header, calls
// Engine.Authorize with the request path and method as the policy object
// and action, and injects the resulting principal into the request
// context. Rejections map to 401 for token problems, 403 for policy
// denials and 429 with a Retry-After header for rate limiting.
//
// This package only translates HTTP semantics; every decision is the
// engine's.
package middleware
