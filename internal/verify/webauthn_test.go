// ABOUTME: Tests for the go-webauthn backed verification boundary
// ABOUTME: Drives real attestation and assertion ceremonies with a virtual authenticator

package verify

import (
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/passgate/internal/store"
)

var testRP = virtualwebauthn.RelyingParty{
	Name:   "Passgate Test",
	ID:     "example.com",
	Origin: "https://example.com",
}

func testBoundary(t *testing.T) *WebAuthnBoundary {
	t.Helper()
	b, err := New(Config{
		RPID:    testRP.ID,
		RPName:  testRP.Name,
		Origins: []string{testRP.Origin},
	})
	require.NoError(t, err)
	return b
}

func attestationResponse(t *testing.T, options *protocol.CredentialCreation, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) []byte {
	t.Helper()
	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	return []byte(virtualwebauthn.CreateAttestationResponse(testRP, auth, cred, *parsed))
}

func assertionResponse(t *testing.T, options *protocol.CredentialAssertion, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) []byte {
	t.Helper()
	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)
	return []byte(virtualwebauthn.CreateAssertionResponse(testRP, auth, cred, *parsed))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestVerifyAttestation_Success(t *testing.T) {
	b := testBoundary(t)
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	exp := Expected{UserID: []byte("user-1"), Username: "alice"}
	options, session, err := b.RegistrationOptions(exp)
	require.NoError(t, err)
	require.NotEmpty(t, session.Challenge)

	reg, err := b.VerifyAttestation(attestationResponse(t, options, auth, cred), *session, exp)
	require.NoError(t, err)
	assert.Equal(t, cred.ID, reg.CredentialID)
	assert.NotEmpty(t, reg.PublicKey)
	assert.Equal(t, uint32(0), reg.SignCount)
}

func TestVerifyAttestation_ChallengeMismatch(t *testing.T) {
	b := testBoundary(t)
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	exp := Expected{UserID: []byte("user-1"), Username: "alice"}
	options, _, err := b.RegistrationOptions(exp)
	require.NoError(t, err)

	// A second ceremony issues a different challenge; the response built for
	// the first ceremony must be rejected against it.
	_, staleSession, err := b.RegistrationOptions(exp)
	require.NoError(t, err)

	_, err = b.VerifyAttestation(attestationResponse(t, options, auth, cred), *staleSession, exp)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestVerifyAttestation_MalformedResponse(t *testing.T) {
	b := testBoundary(t)

	exp := Expected{UserID: []byte("user-1"), Username: "alice"}
	_, session, err := b.RegistrationOptions(exp)
	require.NoError(t, err)

	_, err = b.VerifyAttestation([]byte("not json"), *session, exp)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

// registerCredential runs a full attestation ceremony and returns the stored
// credential for subsequent assertion tests.
func registerCredential(t *testing.T, b *WebAuthnBoundary, auth *virtualwebauthn.Authenticator, cred virtualwebauthn.Credential, exp Expected) store.Credential {
	t.Helper()
	options, session, err := b.RegistrationOptions(exp)
	require.NoError(t, err)
	reg, err := b.VerifyAttestation(attestationResponse(t, options, *auth, cred), *session, exp)
	require.NoError(t, err)
	auth.AddCredential(cred)
	return store.Credential{
		ID:              reg.CredentialID,
		PublicKey:       reg.PublicKey,
		AttestationType: reg.AttestationType,
		Transports:      reg.Transports,
		SignCount:       reg.SignCount,
	}
}

func TestVerifyAssertion_Success(t *testing.T) {
	b := testBoundary(t)
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	exp := Expected{UserID: []byte("user-1"), Username: "alice"}
	stored := registerCredential(t, b, &auth, cred, exp)
	exp.Credentials = []store.Credential{stored}

	options, session, err := b.LoginOptions(exp)
	require.NoError(t, err)
	require.Len(t, options.Response.AllowedCredentials, 1)

	cred.Counter++
	login, err := b.VerifyAssertion(assertionResponse(t, options, auth, cred), *session, exp)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, login.CredentialID)
	assert.Equal(t, uint32(1), login.SignCount)
}

func TestVerifyAssertion_ZeroCounterReportedAsIs(t *testing.T) {
	b := testBoundary(t)
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	exp := Expected{UserID: []byte("user-1"), Username: "alice"}
	stored := registerCredential(t, b, &auth, cred, exp)
	stored.SignCount = 1
	exp.Credentials = []store.Credential{stored}

	options, session, err := b.LoginOptions(exp)
	require.NoError(t, err)

	// The authenticator never increments its counter. The boundary must
	// report the zero as-is rather than the stored value, so the caller's
	// counter policy can see that no counter was supplied.
	login, err := b.VerifyAssertion(assertionResponse(t, options, auth, cred), *session, exp)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), login.SignCount)
}

func TestVerifyAssertion_UnknownCredential(t *testing.T) {
	b := testBoundary(t)
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	exp := Expected{UserID: []byte("user-1"), Username: "alice"}
	stored := registerCredential(t, b, &auth, cred, exp)
	exp.Credentials = []store.Credential{stored}

	options, session, err := b.LoginOptions(exp)
	require.NoError(t, err)

	// The response references a credential ID the verification-side user
	// does not have.
	mismatched := exp
	mismatched.Credentials = []store.Credential{{ID: []byte("someone-else"), PublicKey: stored.PublicKey}}

	cred.Counter++
	_, err = b.VerifyAssertion(assertionResponse(t, options, auth, cred), *session, mismatched)
	assert.ErrorIs(t, err, ErrCredentialUnknown)
}

func TestVerifyAssertion_ChallengeMismatch(t *testing.T) {
	b := testBoundary(t)
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	exp := Expected{UserID: []byte("user-1"), Username: "alice"}
	stored := registerCredential(t, b, &auth, cred, exp)
	exp.Credentials = []store.Credential{stored}

	options, _, err := b.LoginOptions(exp)
	require.NoError(t, err)
	_, staleSession, err := b.LoginOptions(exp)
	require.NoError(t, err)

	cred.Counter++
	_, err = b.VerifyAssertion(assertionResponse(t, options, auth, cred), *staleSession, exp)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestVerifyAssertion_MalformedResponse(t *testing.T) {
	b := testBoundary(t)

	exp := Expected{UserID: []byte("user-1"), Username: "alice", Credentials: []store.Credential{{ID: []byte("c1"), PublicKey: []byte("pk")}}}
	_, session, err := b.LoginOptions(exp)
	require.NoError(t, err)

	_, err = b.VerifyAssertion([]byte("{"), *session, exp)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}
