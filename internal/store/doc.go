// Package store provides persistent storage for passgate user records.
//
// # Data Model
//
// The store maps normalized usernames to UserRecord values:
//
//   - UserRecord: identity plus credential state for one username. A record
//     is Pending from creation until its first credential is committed.
//   - Credential: one registered authenticator (credential ID, public key,
//     sign counter).
//
// # Persistence
//
// FileStore keeps the full mapping in memory and mirrors it to a single JSON
// file (an array of records, sorted by username). Writes go to a temp file in
// the same directory followed by a rename, so a crash mid-save leaves the
// previous file intact. A mutation is reported as successful only after the
// file write succeeds; on write failure the in-memory state is rolled back.
//
// Loading never fails the process for data reasons: a missing file starts
// empty, and an unparseable file is reset to empty with a warning.
//
// # Concurrency
//
// All FileStore methods serialize on an internal mutex. Records are handed
// out and accepted as deep copies, so callers may mutate them freely and
// commit with Put. Higher-level read-modify-write ordering (for example
// per-username ceremony serialization) is the ceremony manager's job.
package store
