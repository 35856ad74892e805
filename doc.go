// Package accounts issues, validates, and revokes short-lived, single-use,
// purpose-scoped tokens that drive a multi-role account lifecycle: signup
// confirmation, login sessions, password change, password reset, and email
// change.
//
// Token engine:
//   - TokenIssuer creates tokens with a fixed TTL per type and a globally
//     unique secret value. Validation is type-checked: a token minted to
//     confirm an email can never be replayed as a login credential. Consuming
//     a token is a conditional delete, so under a race on the same value only
//     one caller gets to apply the staged mutation.
//
// Authentication gate:
//   - Gate resolves a presented credential into an account and enforces role
//     constraints (RequireAdmin, RequireNonAdmin). Checks are stateless per
//     call; a revocation or suspension takes effect on the next request.
//
// Account state machine:
//   - Transitions are pure functions over value snapshots; StateMachine
//     persists the result and emits ActivityEvents. Transitions trust their
//     caller: the flow handlers perform the matching token validation before
//     invoking them.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the flows and the
//     state machine to describe signup, login, standing, and credential
//     events. Sinks run best-effort (errors are logged) so you can forward to
//     a database or queue without blocking authentication.
package accounts
