// ABOUTME: go-webauthn backed implementation of the verification boundary
// ABOUTME: Wraps BeginRegistration/CreateCredential and BeginLogin/ValidateLogin with challenge checks

package verify

import (
	"bytes"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config identifies the relying party all ceremonies are bound to.
type Config struct {
	RPID    string
	RPName  string
	Origins []string
}

// WebAuthnBoundary implements Boundary using the go-webauthn library.
type WebAuthnBoundary struct {
	wa *webauthn.WebAuthn
}

// New creates a boundary for the given relying party.
func New(cfg Config) (*WebAuthnBoundary, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.Origins,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}
	return &WebAuthnBoundary{wa: wa}, nil
}

// RegistrationOptions produces attestation options and the session data the
// completion step must be verified against. Existing credentials are excluded
// so an authenticator will not re-enroll itself.
func (b *WebAuthnBoundary) RegistrationOptions(exp Expected) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	user := ceremonyUser{exp: exp}

	var opts []webauthn.RegistrationOption
	if len(exp.Credentials) > 0 {
		exclusions := make([]protocol.CredentialDescriptor, len(exp.Credentials))
		for i, cred := range exp.Credentials {
			exclusions[i] = protocol.CredentialDescriptor{
				Type:         protocol.PublicKeyCredentialType,
				CredentialID: cred.ID,
			}
		}
		opts = append(opts, webauthn.WithExclusions(exclusions))
	}

	options, session, err := b.wa.BeginRegistration(user, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("begin registration: %w", err)
	}
	return options, session, nil
}

// LoginOptions produces assertion options listing the user's registered
// credential IDs as the acceptable set.
func (b *WebAuthnBoundary) LoginOptions(exp Expected) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	options, session, err := b.wa.BeginLogin(ceremonyUser{exp: exp})
	if err != nil {
		return nil, nil, fmt.Errorf("begin login: %w", err)
	}
	return options, session, nil
}

// VerifyAttestation checks the attestation response against the session's
// challenge and the relying party configuration, returning the new
// credential's public key and initial counter.
func (b *WebAuthnBoundary) VerifyAttestation(response []byte, session webauthn.SessionData, exp Expected) (*Registration, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing attestation response: %v", ErrVerificationFailed, err)
	}

	if parsed.Response.CollectedClientData.Challenge != session.Challenge {
		return nil, ErrChallengeMismatch
	}

	cred, err := b.wa.CreateCredential(ceremonyUser{exp: exp}, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	transports := make([]string, len(cred.Transport))
	for i, tr := range cred.Transport {
		transports[i] = string(tr)
	}

	return &Registration{
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      transports,
		SignCount:       cred.Authenticator.SignCount,
	}, nil
}

// VerifyAssertion checks the assertion response against the session's
// challenge and the referenced credential's public key, returning the
// authenticator-reported counter for this assertion.
func (b *WebAuthnBoundary) VerifyAssertion(response []byte, session webauthn.SessionData, exp Expected) (*Login, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing assertion response: %v", ErrVerificationFailed, err)
	}

	if parsed.Response.CollectedClientData.Challenge != session.Challenge {
		return nil, ErrChallengeMismatch
	}

	known := false
	for _, cred := range exp.Credentials {
		if bytes.Equal(cred.ID, parsed.RawID) {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrCredentialUnknown
	}

	cred, err := b.wa.ValidateLogin(ceremonyUser{exp: exp}, session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	// ValidateLogin's counter update keeps the stored value on a zero
	// report, so return the raw count from the authenticator data.
	return &Login{
		CredentialID: cred.ID,
		SignCount:    parsed.Response.AuthenticatorData.Counter,
	}, nil
}

// ceremonyUser adapts Expected to the webauthn.User interface.
type ceremonyUser struct {
	exp Expected
}

func (u ceremonyUser) WebAuthnID() []byte {
	return u.exp.UserID
}

func (u ceremonyUser) WebAuthnName() string {
	return u.exp.Username
}

func (u ceremonyUser) WebAuthnDisplayName() string {
	return u.exp.Username
}

func (u ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.exp.Credentials))
	for i, c := range u.exp.Credentials {
		transports := make([]protocol.AuthenticatorTransport, len(c.Transports))
		for j, tr := range c.Transports {
			transports[j] = protocol.AuthenticatorTransport(tr)
		}
		creds[i] = webauthn.Credential{
			ID:              c.ID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Transport:       transports,
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		}
	}
	return creds
}
