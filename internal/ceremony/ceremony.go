// ABOUTME: Ceremony manager orchestrating WebAuthn registration and login
// ABOUTME: Issues challenges, expires abandoned registrations, and commits verified credential state

package ceremony

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/2389/passgate/internal/store"
	"github.com/2389/passgate/internal/verify"
)

// Username validation regex, applied after normalization: lowercase letter
// first, then letters, digits, underscore, dot, or dash, 3-32 characters.
var usernameRegex = regexp.MustCompile(`^[a-z][a-z0-9_.-]{2,31}$`)

// DefaultRegistrationWindow is how long a pending registration may stay
// unfinished before its username is reclaimed.
const DefaultRegistrationWindow = 2 * time.Minute

// CounterPolicy controls what happens when an authenticator reports no usage
// counter (the assertion carries a zero count).
type CounterPolicy string

const (
	// CounterPolicyStrict fails the login when no counter is reported.
	CounterPolicyStrict CounterPolicy = "strict"

	// CounterPolicyLenient falls back to incrementing the stored counter by
	// one, matching authenticators that never implement counters.
	CounterPolicyLenient CounterPolicy = "lenient"
)

// Store is the record persistence the manager depends on. *store.FileStore
// satisfies it.
type Store interface {
	Get(username string) (*store.UserRecord, bool)
	Put(rec *store.UserRecord) error
	Delete(username string) error
	FindCredentialOwner(credID []byte) (string, bool)
}

// Config holds manager tuning knobs.
type Config struct {
	// RegistrationWindow bounds how long a pending registration may remain
	// unfinished. Zero means DefaultRegistrationWindow.
	RegistrationWindow time.Duration

	// CounterPolicy selects strict or lenient handling of absent counters.
	// Empty means lenient.
	CounterPolicy CounterPolicy
}

// LoginResult reports the committed state after a successful login.
type LoginResult struct {
	Username   string
	LoginCount int
	LastLogin  time.Time
}

// Manager is the ceremony state machine. All operations for one username are
// serialized; operations for different usernames run concurrently.
type Manager struct {
	store    Store
	boundary verify.Boundary
	locks    *userLocks
	window   time.Duration
	policy   CounterPolicy
	logger   *slog.Logger
}

// NewManager creates a ceremony manager.
func NewManager(st Store, boundary verify.Boundary, cfg Config) *Manager {
	window := cfg.RegistrationWindow
	if window <= 0 {
		window = DefaultRegistrationWindow
	}
	policy := cfg.CounterPolicy
	if policy == "" {
		policy = CounterPolicyLenient
	}
	return &Manager{
		store:    st,
		boundary: boundary,
		locks:    newUserLocks(),
		window:   window,
		policy:   policy,
		logger:   slog.Default().With("component", "ceremony"),
	}
}

// NormalizeUsername trims and lowercases a client-supplied username, then
// validates it. Returns ErrInvalidUsername if the result is unusable.
func NormalizeUsername(username string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	if !usernameRegex.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}
	return name, nil
}

// StartRegistration creates a pending record for username, binds a fresh
// challenge to it, and schedules the abandonment expiry. Fails with
// ErrUsernameTaken if any record already exists.
func (m *Manager) StartRegistration(username string) (*protocol.CredentialCreation, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.lock(name)
	defer unlock()

	if _, ok := m.store.Get(name); ok {
		return nil, fmt.Errorf("%w: %q", ErrUsernameTaken, name)
	}

	rec := &store.UserRecord{
		ID:        uuid.NewString(),
		Username:  name,
		Pending:   true,
		CreatedAt: time.Now().UTC(),
	}

	options, session, err := m.boundary.RegistrationOptions(verify.Expected{
		UserID:   []byte(rec.ID),
		Username: name,
	})
	if err != nil {
		return nil, fmt.Errorf("issuing registration options: %w", err)
	}

	if err := m.bindChallenge(rec, session); err != nil {
		return nil, err
	}
	if err := m.store.Put(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	m.scheduleExpiry(name)
	m.logger.Info("registration started", "username", name, "window", m.window)
	return options, nil
}

// CompleteRegistration verifies the attestation response against the user's
// live challenge and commits the first credential. Registration is
// all-or-nothing: any failure while the record is pending deletes it.
func (m *Manager) CompleteRegistration(username string, response []byte) error {
	name, err := NormalizeUsername(username)
	if err != nil {
		return err
	}
	if len(response) == 0 {
		return fmt.Errorf("%w: empty attestation response", ErrInvalidResponse)
	}

	unlock := m.locks.lock(name)
	defer unlock()

	rec, ok := m.store.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUserNotFound, name)
	}

	session, err := m.liveSession(rec)
	if err != nil {
		m.abortPending(name)
		return err
	}

	reg, err := m.boundary.VerifyAttestation(response, *session, verify.Expected{
		UserID:   []byte(rec.ID),
		Username: name,
	})
	if err != nil {
		m.abortPending(name)
		return translateVerifyError(err)
	}

	if owner, taken := m.store.FindCredentialOwner(reg.CredentialID); taken && owner != name {
		m.abortPending(name)
		return fmt.Errorf("%w: owned by another user", ErrCredentialTaken)
	}

	rec.Credentials = append(rec.Credentials, store.Credential{
		ID:              reg.CredentialID,
		PublicKey:       reg.PublicKey,
		AttestationType: reg.AttestationType,
		Transports:      reg.Transports,
		SignCount:       reg.SignCount,
		CreatedAt:       time.Now().UTC(),
	})
	rec.Pending = false
	rec.CurrentChallenge = ""
	rec.CeremonyData = nil

	if err := m.store.Put(rec); err != nil {
		// The stored record is still pending; undo the start as well.
		m.abortPending(name)
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	m.logger.Info("registration completed", "username", name, "credentials", len(rec.Credentials))
	return nil
}

// StartLogin binds a fresh challenge to a registered user and returns the
// assertion options listing the user's credential IDs.
func (m *Manager) StartLogin(username string) (*protocol.CredentialAssertion, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.lock(name)
	defer unlock()

	rec, ok := m.store.Get(name)
	if !ok || len(rec.Credentials) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUserNotRegistered, name)
	}

	options, session, err := m.boundary.LoginOptions(verify.Expected{
		UserID:      []byte(rec.ID),
		Username:    name,
		Credentials: rec.Credentials,
	})
	if err != nil {
		return nil, fmt.Errorf("issuing login options: %w", err)
	}

	if err := m.bindChallenge(rec, session); err != nil {
		return nil, err
	}
	if err := m.store.Put(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	m.logger.Info("login started", "username", name)
	return options, nil
}

// CompleteLogin verifies the assertion response, enforces counter
// monotonicity, and commits the login stats. On any failure no state is
// mutated.
func (m *Manager) CompleteLogin(username string, response []byte) (*LoginResult, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if len(response) == 0 {
		return nil, fmt.Errorf("%w: empty assertion response", ErrInvalidResponse)
	}

	unlock := m.locks.lock(name)
	defer unlock()

	rec, ok := m.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, name)
	}

	session, err := m.liveSession(rec)
	if err != nil {
		return nil, err
	}

	login, err := m.boundary.VerifyAssertion(response, *session, verify.Expected{
		UserID:      []byte(rec.ID),
		Username:    name,
		Credentials: rec.Credentials,
	})
	if err != nil {
		return nil, translateVerifyError(err)
	}

	cred := rec.Credential(login.CredentialID)
	if cred == nil {
		return nil, fmt.Errorf("%w for %q", ErrCredentialNotFound, name)
	}

	next, err := m.nextCounter(cred.SignCount, login.SignCount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cred.SignCount = next
	rec.LoginCount++
	rec.LastLogin = &now
	rec.CurrentChallenge = ""
	rec.CeremonyData = nil

	if err := m.store.Put(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	m.logger.Info("login completed", "username", name, "login_count", rec.LoginCount, "counter", next)
	return &LoginResult{Username: name, LoginCount: rec.LoginCount, LastLogin: now}, nil
}

// Available reports whether username is free to register. Read-only, no
// per-username lock.
func (m *Manager) Available(username string) (bool, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return false, err
	}
	_, exists := m.store.Get(name)
	return !exists, nil
}

// Lookup returns the current record for a normalized username.
func (m *Manager) Lookup(username string) (*store.UserRecord, error) {
	name, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	rec, ok := m.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, name)
	}
	return rec, nil
}

// scheduleExpiry arms the abandonment check for a pending registration. The
// fired check re-reads the record under the per-username lock and deletes it
// only if it still exists and is still pending; a completed or already
// deleted record is left alone.
func (m *Manager) scheduleExpiry(username string) {
	time.AfterFunc(m.window, func() {
		unlock := m.locks.lock(username)
		defer unlock()

		rec, ok := m.store.Get(username)
		if !ok || !rec.Pending {
			return
		}
		if err := m.store.Delete(username); err != nil {
			m.logger.Error("failed to reclaim expired registration", "username", username, "error", err)
			return
		}
		m.logger.Info("pending registration expired", "username", username)
	})
}

// bindChallenge stores the ceremony session on the record, overwriting any
// previous in-flight challenge for this user.
func (m *Manager) bindChallenge(rec *store.UserRecord, session *webauthn.SessionData) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding ceremony session: %w", err)
	}
	rec.CurrentChallenge = session.Challenge
	rec.CeremonyData = data
	return nil
}

// liveSession decodes the record's in-flight ceremony session. A record with
// no live challenge (never started, or already consumed) yields
// ErrChallengeMismatch.
func (m *Manager) liveSession(rec *store.UserRecord) (*webauthn.SessionData, error) {
	if rec.CurrentChallenge == "" || len(rec.CeremonyData) == 0 {
		return nil, fmt.Errorf("%w: no ceremony in flight", ErrChallengeMismatch)
	}
	var session webauthn.SessionData
	if err := json.Unmarshal(rec.CeremonyData, &session); err != nil {
		return nil, fmt.Errorf("%w: stored ceremony state unreadable", ErrChallengeMismatch)
	}
	return &session, nil
}

// nextCounter applies the monotonicity check and the configured policy for
// absent counters. A zero report means the authenticator does not implement
// a counter, every login included, so lenient policy advances the stored
// value by one in its place while strict policy rejects the login.
func (m *Manager) nextCounter(prev, reported uint32) (uint32, error) {
	if reported == 0 {
		if m.policy == CounterPolicyStrict {
			return 0, fmt.Errorf("%w: authenticator reported no usage counter", ErrVerificationFailed)
		}
		return prev + 1, nil
	}
	if reported <= prev {
		return 0, fmt.Errorf("%w: counter %d not greater than stored %d", ErrVerificationFailed, reported, prev)
	}
	return reported, nil
}

// abortPending undoes StartRegistration after a failed completion. The
// stored record is re-read so only a still-pending record is deleted.
func (m *Manager) abortPending(username string) {
	rec, ok := m.store.Get(username)
	if !ok || !rec.Pending {
		return
	}
	if err := m.store.Delete(username); err != nil {
		m.logger.Error("failed to remove pending registration", "username", username, "error", err)
		return
	}
	m.logger.Info("pending registration removed", "username", username)
}

// translateVerifyError maps boundary errors onto the ceremony taxonomy.
func translateVerifyError(err error) error {
	switch {
	case errors.Is(err, verify.ErrChallengeMismatch):
		return fmt.Errorf("%w: %v", ErrChallengeMismatch, err)
	case errors.Is(err, verify.ErrCredentialUnknown):
		return fmt.Errorf("%w: %v", ErrCredentialNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
}
