// Package security provides the security primitives shared by the OAuth
// protocol core: opaque token generation, a deterministic clock abstraction
// for expiry checks, per-identifier rate limiting and request correlation.
package security
