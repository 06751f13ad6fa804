// ABOUTME: Tests for the JSON-file-backed user record store
// ABOUTME: Covers load/save round-trips, rollback on failure, and clone isolation

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	return s, path
}

func testRecord(username string) *UserRecord {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	last := now.Add(time.Hour)
	return &UserRecord{
		ID:       "id-" + username,
		Username: username,
		Credentials: []Credential{
			{
				ID:              []byte("cred-" + username),
				PublicKey:       []byte{0x01, 0x02, 0x03},
				AttestationType: "none",
				Transports:      []string{"internal", "hybrid"},
				SignCount:       7,
				CreatedAt:       now,
			},
		},
		LoginCount: 3,
		LastLogin:  &last,
		CreatedAt:  now,
	}
}

func TestNewFileStore_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())

	// The file should now exist with an empty record set.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestNewFileStore_CorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFileStore_PutGetRoundTrip(t *testing.T) {
	s, path := newTestStore(t)

	rec := testRecord("alice")
	require.NoError(t, s.Put(rec))

	got, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	// Reopen from disk and verify field-for-field equivalence.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got2, ok := reopened.Get("alice")
	require.True(t, ok)
	assert.Equal(t, rec, got2)
}

func TestFileStore_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, ok := s.Get("nobody")
	assert.False(t, ok)
}

func TestFileStore_Delete(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Put(testRecord("alice")))

	require.NoError(t, s.Delete("alice"))
	_, ok := s.Get("alice")
	assert.False(t, ok)

	// Deletion survives a reload.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Count())
}

func TestFileStore_DeleteMissingIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Delete("nobody"))
}

func TestFileStore_CloneIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(testRecord("alice")))

	got, ok := s.Get("alice")
	require.True(t, ok)
	got.LoginCount = 99
	got.Credentials[0].SignCount = 99
	got.Credentials[0].ID[0] = 'X'

	fresh, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 3, fresh.LoginCount)
	assert.Equal(t, uint32(7), fresh.Credentials[0].SignCount)
	assert.Equal(t, []byte("cred-alice"), fresh.Credentials[0].ID)
}

func TestFileStore_FindCredentialOwner(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(testRecord("alice")))
	require.NoError(t, s.Put(testRecord("bob")))

	owner, ok := s.FindCredentialOwner([]byte("cred-bob"))
	require.True(t, ok)
	assert.Equal(t, "bob", owner)

	_, ok = s.FindCredentialOwner([]byte("cred-nobody"))
	assert.False(t, ok)
}

func TestFileStore_All(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(testRecord("bob")))
	require.NoError(t, s.Put(testRecord("alice")))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Username)
	assert.Equal(t, "bob", all[1].Username)
}

func TestFileStore_PutRollbackOnSaveFailure(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.Put(testRecord("alice")))

	// Replace the store file's directory entry with a directory so the
	// rename fails, forcing save to error.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	updated := testRecord("alice")
	updated.LoginCount = 42
	err := s.Put(updated)
	require.Error(t, err)

	// In-memory state must have been rolled back.
	got, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 3, got.LoginCount)
}

func TestFileStore_PendingRecordRoundTrip(t *testing.T) {
	s, path := newTestStore(t)

	rec := &UserRecord{
		ID:               "id-carol",
		Username:         "carol",
		Pending:          true,
		CurrentChallenge: "challenge-value",
		CeremonyData:     []byte(`{"challenge":"challenge-value"}`),
		CreatedAt:        time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Put(rec))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, ok := reopened.Get("carol")
	require.True(t, ok)
	assert.True(t, got.Pending)
	assert.Equal(t, "challenge-value", got.CurrentChallenge)
	assert.JSONEq(t, `{"challenge":"challenge-value"}`, string(got.CeremonyData))
	assert.Empty(t, got.Credentials)
}
