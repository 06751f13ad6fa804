// ABOUTME: Verification boundary contract for WebAuthn ceremonies
// ABOUTME: Defines the Boundary interface, expected-parameter inputs, and verified outputs

package verify

import (
	"errors"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/2389/passgate/internal/store"
)

// Boundary errors. Any other error from a Boundary method means the ceremony
// could not be evaluated at all (bad configuration, encoding failure).
var (
	// ErrChallengeMismatch is returned when the client response does not embed
	// the challenge issued for the ceremony.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrCredentialUnknown is returned when an assertion references a
	// credential the user does not have.
	ErrCredentialUnknown = errors.New("credential not known for user")

	// ErrVerificationFailed is returned when the cryptographic proof is
	// rejected or the response is malformed.
	ErrVerificationFailed = errors.New("verification failed")
)

// Expected carries the ceremony-side parameters a verification is checked
// against. The relying party ID and origins are fixed at Boundary
// construction; the challenge travels in the session data.
type Expected struct {
	UserID      []byte
	Username    string
	Credentials []store.Credential
}

// Registration is the verified outcome of an attestation ceremony.
type Registration struct {
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      []string
	SignCount       uint32
}

// Login is the verified outcome of an assertion ceremony. SignCount is the
// authenticator-reported value from this assertion; zero means the
// authenticator does not implement a counter.
type Login struct {
	CredentialID []byte
	SignCount    uint32
}

// Boundary issues ceremony options and verifies the client's responses.
// Verification is fail-closed: any error means no credential or counter state
// may be committed.
type Boundary interface {
	RegistrationOptions(exp Expected) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	LoginOptions(exp Expected) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	VerifyAttestation(response []byte, session webauthn.SessionData, exp Expected) (*Registration, error)
	VerifyAssertion(response []byte, session webauthn.SessionData, exp Expected) (*Login, error)
}
