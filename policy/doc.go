// Package policy decides authorization requests with a hybrid of role,
// group and attribute based rules.
//
// Rules live in a durable [Store] in the classic ptype/v0..v5 layout. The
// [Engine] compiles them into an immutable snapshot that request-path
// Enforce calls read lock-free; snapshots are rebuilt on explicit reload,
// on a change notification over Redis pub/sub, and on a periodic timer as
// a safety net.
//
// A p rule is (subject, object pattern, action pattern, condition, effect).
// The subject matches a principal's exact username, a held role as
// "role:NAME", or a held group as "group:NAME". Conditions are evaluated by
// a sandboxed expression interpreter; see [EvalCondition]. Decisions are
// allow-only: a request is granted when at least one allow rule matches,
// and there is no deny override.
package policy
