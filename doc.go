// Package accounts provides account lifecycle primitives (registration,
// login, suspension, soft deletion), credential management (bcrypt hashing,
// single use email verification and password reset tokens), JWT session
// issuance, and an authorization gate that revalidates live account state on
// every request.
//
// Account lifecycle:
//   - Users carry a UserStatus field persisted via Bun. Statuses cover
//     active, suspended, and deleted; deleted is terminal and the email stays
//     reserved. UserStateMachine centralizes the transition graph, suspension
//     metadata handling, hooks, and persistence.
//   - Lifecycle use cases are message/handler pairs (RegisterUserMessage,
//     SuspendUserMessage, ...) that run inside a repository transaction and
//     return structured errors with stable text codes.
//
// Ephemeral tokens:
//   - EphemeralTokens issues 256 bit opaque bearer secrets scoped to one
//     account and one purpose. Consumption is a single conditional UPDATE so
//     concurrent attempts yield exactly one success.
//
// Authorization:
//   - Gate verifies a session token, reloads the backing account, and
//     requires active status before a request proceeds. Suspending an account
//     therefore revokes access immediately even though outstanding JWTs stay
//     cryptographically valid. Role checks run only after authentication.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used across login,
//     lifecycle, and credential events. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     request handling.
package accounts
