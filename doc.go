// Package auth governs who is signed in to the talent back office and what
// they may see.
//
// Sign in:
//   - CredentialVerifier checks the admins table first and only asks the
//     hosted IdentityProvider when no admin row matches the email. A bad admin
//     password never reaches the provider.
//   - LockoutGuard counts failed attempts in client Storage. Five failures block
//     further attempts for fifteen minutes, the block survives restarts and is
//     released lazily once the window has passed.
//
// Sessions:
//   - SessionStore is the single source of truth for the signed in principal
//     and its profile. Initialize, SignIn and SignOut race freely, the most
//     recently started call wins and stale results are dropped. Subscribe to
//     observe each committed snapshot.
//   - ProfileResolver maps a principal id to its role and role specific
//     profile, and applies validated patches for UpdateProfile.
//
// Navigation:
//   - RouteGuard decides allow, defer, redirect or not found for a path given a
//     session snapshot. It is pure, the fiber middleware in middleware/routeguard
//     and the SessionController adapt it to HTTP.
//
// Activity sinks:
//   - ActivitySink receives login, lockout, logout and profile events. Sinks
//     run best effort, errors are logged and never fail the operation.
package auth
