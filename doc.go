// Package identity provides authentication primitives (JWT issuance, Bun
// backed user repositories, HTTP helpers) plus the account flows built on top
// of them: registration, password recovery, email verification, and provider
// based sign in.
//
// Sessions:
//   - Session tokens are stateless JWTs whose subject carries a "user|<id>"
//     reference. TokenService signs and validates them; SessionFromToken turns
//     a raw token into a Session without touching storage, and UserFromSession
//     re-reads the account record for anything that can change after issuance
//     (lockout, role, verification state).
//
// Recovery tokens:
//   - TokenLifecycle issues, inspects, and redeems single-use password reset
//     and email verification tokens. Redemption is a single conditional update
//     against the stored token and its expiration, so concurrent redeemers
//     cannot double-spend. Status checks are read-only and return valid,
//     invalid, or expired as data.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther,
//     TokenLifecycle, CredentialService, and the OAuth resolver to describe
//     login, registration, recovery, and linking events. Sinks run best-effort
//     (errors are logged) so you can forward to a database or queue without
//     blocking authentication.
//
// Guards:
//   - Guard composes per-request authorization checks (session present,
//     account active, email verified, admin, account ownership) over freshly
//     loaded records. RouteAuthenticator.RequireGuards wires them into HTTP
//     middleware behind the JWT layer.
package identity
