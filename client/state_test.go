package client

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-elections/backend/internal/models"
)

func TestStateRoundTrip(t *testing.T) {
	storage := NewMapStorage()

	state := NewState(storage)
	require.Nil(t, state.Session())

	state.SetSession(models.Session{Name: "alice", Role: models.RoleParticipant})
	pollID, optionID := uuid.New(), uuid.New()
	state.RecordVote(pollID, optionID)
	state.AddGrant(pollID, "COLOR")

	// A fresh State over the same storage sees everything.
	reloaded := NewState(storage)
	sess := reloaded.Session()
	require.NotNil(t, sess)
	assert.Equal(t, "alice", sess.Name)
	assert.Equal(t, optionID, reloaded.VotedOption(pollID))
	assert.Equal(t, map[uuid.UUID]string{pollID: "COLOR"}, reloaded.Grants())
}

func TestStateCorruptionTolerance(t *testing.T) {
	storage := NewMapStorage()
	require.NoError(t, storage.Save(KeySession, []byte("{not json")))
	require.NoError(t, storage.Save(KeyVotes, []byte("42")))
	require.NoError(t, storage.Save(KeyAccessCodes, []byte("")))

	// Corrupted caches fall back to empty; the app starts logged out, not crashed.
	state := NewState(storage)
	assert.Nil(t, state.Session())
	assert.Equal(t, uuid.Nil, state.VotedOption(uuid.New()))
	assert.Empty(t, state.Grants())

	// And a fresh login still works.
	state.SetSession(models.Session{Name: "bob", Role: models.RoleParticipant})
	require.NotNil(t, state.Session())
}

func TestStateNamelessSessionTreatedAsAbsent(t *testing.T) {
	// "null" and "{}" are valid JSON but decode to a session no login ever
	// issued; starting from either must look logged out.
	for _, blob := range []string{"null", "{}"} {
		storage := NewMapStorage()
		require.NoError(t, storage.Save(KeySession, []byte(blob)))

		state := NewState(storage)
		assert.Nil(t, state.Session(), "stored %q", blob)

		state.SetSession(models.Session{Name: "alice", Role: models.RoleParticipant})
		sess := state.Session()
		require.NotNil(t, sess)
		assert.Equal(t, "alice", sess.Name)
	}
}

func TestStateLogoutKeepsCaches(t *testing.T) {
	storage := NewMapStorage()
	state := NewState(storage)
	state.SetSession(models.Session{Name: "alice", Role: models.RoleParticipant})
	pollID := uuid.New()
	state.AddGrant(pollID, "COLOR")

	state.ClearSession()
	assert.Nil(t, state.Session())
	assert.Len(t, state.Grants(), 1, "grants survive logout")

	reloaded := NewState(storage)
	assert.Nil(t, reloaded.Session(), "logout is persisted")
}

func TestFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)

	_, err = storage.Load("session")
	assert.ErrorIs(t, err, ErrNoValue)

	require.NoError(t, storage.Save("session", []byte(`{"name":"alice"}`)))
	data, err := storage.Load("session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"alice"}`, string(data))

	require.NoError(t, storage.Delete("session"))
	require.NoError(t, storage.Delete("session"), "deleting an absent key is fine")
	_, err = storage.Load("session")
	assert.ErrorIs(t, err, ErrNoValue)
}
