// ABOUTME: Error taxonomy for ceremony operations
// ABOUTME: Sentinel errors matched with errors.Is at the HTTP boundary

package ceremony

import "errors"

var (
	// ErrInvalidUsername is returned when a username is empty or malformed
	// after normalization. Rejected before any state change.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidResponse is returned when a completion payload is missing.
	ErrInvalidResponse = errors.New("invalid ceremony response")

	// ErrUsernameTaken is returned by StartRegistration when a record
	// (pending or registered) already exists for the username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrUserNotFound is returned by completion operations when no record
	// exists for the username.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserNotRegistered is returned by StartLogin when the user does not
	// exist or has no committed credentials.
	ErrUserNotRegistered = errors.New("user not registered")

	// ErrCredentialNotFound is returned when a login references a credential
	// the user does not have.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialTaken is returned when a registration presents a
	// credential ID already owned by another user.
	ErrCredentialTaken = errors.New("credential already registered")

	// ErrChallengeMismatch is returned when a completion does not match the
	// user's live challenge, including replays of consumed challenges.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrVerificationFailed is returned when the verification boundary
	// rejects the cryptographic proof or the counter check fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrPersistenceFailed is returned when the store cannot durably commit
	// a mutation. The operation is aborted with no partial state.
	ErrPersistenceFailed = errors.New("persistence failed")
)
