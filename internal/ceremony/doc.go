// Package ceremony orchestrates WebAuthn registration and login ceremonies.
//
// # Lifecycle
//
// A username moves through three states:
//
//	nonexistent -> pending -> registered
//
// StartRegistration creates a pending record bound to a fresh challenge and
// arms an expiry. CompleteRegistration commits the first credential and flips
// the record to registered; any failure while pending deletes the record, so
// registration is all-or-nothing. Registered records are only ever mutated
// (credentials appended, counters bumped, login stats updated), never deleted
// here.
//
// # Challenges
//
// Each user has at most one live challenge, overwritten on every ceremony
// start and consumed by completion. A completion with no matching live
// challenge (never issued, already consumed, or replayed) fails with
// ErrChallengeMismatch.
//
// # Expiry
//
// The expiry scheduled by StartRegistration re-reads the record by username
// at fire time, under the same per-username lock the ceremony operations use,
// and deletes it only if it still exists and is still pending. It never
// trusts a captured snapshot, so a registration that completed between
// scheduling and firing is left alone.
//
// # Concurrency
//
// Every operation's read-modify-persist sequence holds a per-username lock.
// Ceremonies for different usernames proceed in parallel; two operations on
// the same username serialize, so racing completions cannot both commit the
// same counter value.
//
// # Counters
//
// Credential counters are strictly increasing across successful logins. A
// nonzero reported counter at or below the stored value fails with
// ErrVerificationFailed and commits nothing. Authenticators that never
// report a counter (the assertion carries a zero count) are handled per the
// configured CounterPolicy on every login: lenient increments the stored
// value by one, strict rejects.
package ceremony
