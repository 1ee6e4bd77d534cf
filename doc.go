// Package fortress is an embeddable authentication engine built around
// split tokens (selector:verifier credentials), Argon2id password hashing,
// pluggable rate limiting, and injected storage, email and OAuth ports.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// fortress is the domain core, not a web framework. It exposes [Engine],
// [Builder], [Config], the entity value types and the [Repository],
// [EmailProvider] and [OAuthProvider] ports. Persistence, HTTP transport,
// cookie handling and concrete provider clients live in the host
// application; the engine returns sentinel errors that hosts translate to
// wire codes via [CodeOf].
//
// # What this package must NOT do
//
//   - Perform network I/O of its own. Every external effect goes through an
//     injected port.
//   - Leak secrets. Password hashes, token verifiers and PKCE verifiers
//     never appear in serialized output or returned values beyond the
//     one-time raw token at mint time.
//   - Reveal account existence. Failure codes and latency are shaped so
//     lookups, password mismatches and unknown emails are indistinguishable
//     where the design demands it.
//
// # Security contract
//
// Session and one-time tokens cross the wire as "selector:verifier"; only
// the SHA-256 hash of the verifier is stored, and comparison is constant
// time. SignIn performs a dummy hash-verify cycle when the user does not
// exist, consumes a rate-limit token on every attempt, and locks accounts
// after repeated failures before any account lookup can act as an oracle.
package fortress
