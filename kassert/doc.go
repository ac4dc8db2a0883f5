// Package kassert (Kestrel assert) gates runtime protocol-misuse checks.
//
// The watchdog contracts have a handful of caller obligations that cannot
// be expressed in the type system, such as pairing every suspend with
// exactly one resume.
// Violations are programming errors: in production they are defensively
// clamped and ignored, but during development it is far more useful for
// them to fail loudly at the call site.
//
// Enabling the checks is a two-step process.
// First, assertion functionality is only compiled in under the "debug"
// build tag, i.e. "go build -tags debug" or "go test -tags debug".
// Second, some set of checks must be enabled by producing an [Env]
// via [EnvironmentFromString] (only available in debug builds).
//
// Rule behavior:
//   - Components call [*Environment.Enabled] with a dot-separated path
//     naming the check they may make, e.g. "heartbeat.resume_balanced".
//   - No rules are enabled by default.
//   - "*" enables everything; a trailing ".*" enables a subtree,
//     so "heartbeat.*" is valid but "*.resume_balanced" is not.
//   - A leading "!" excludes an exact path from a wildcard match.
//   - Exact paths match only themselves.
//   - [EnvironmentFromString] takes a comma-separated list of rules.
package kassert
