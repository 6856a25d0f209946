package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-elections/backend/internal/models"
)

func TestKeywordProvider(t *testing.T) {
	p := NewKeywordProvider("TrentAdmin")

	tests := []struct {
		name     string
		login    string
		wantRole models.Role
		wantErr  bool
	}{
		{name: "exact keyword", login: "TrentAdmin", wantRole: models.RoleAdmin},
		{name: "keyword with whitespace trims to admin", login: "  TrentAdmin  ", wantRole: models.RoleAdmin},
		{name: "case mismatch stays participant", login: "trentadmin", wantRole: models.RoleParticipant},
		{name: "ordinary name", login: "alice", wantRole: models.RoleParticipant},
		{name: "empty", login: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := p.Login(tt.login)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrEmptyName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, sess.Role)
			if tt.wantRole == models.RoleAdmin {
				assert.Equal(t, "TrentAdmin", sess.AdminKey)
				assert.True(t, p.Verify(sess.AdminKey))
			} else {
				assert.Empty(t, sess.AdminKey)
			}
		})
	}

	assert.False(t, p.Verify(""))
	assert.False(t, p.Verify("wrong"))
}

func TestTokenProvider(t *testing.T) {
	p := NewTokenProvider("TrentAdmin", "test-secret", time.Hour)

	sess, err := p.Login("TrentAdmin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, sess.Role)
	require.NotEmpty(t, sess.AdminKey)
	assert.NotEqual(t, "TrentAdmin", sess.AdminKey, "token mode must not echo the keyword")
	assert.True(t, p.Verify(sess.AdminKey))

	participant, err := p.Login("alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleParticipant, participant.Role)
	assert.Empty(t, participant.AdminKey)

	assert.False(t, p.Verify(""))
	assert.False(t, p.Verify("not-a-token"))

	other := NewTokenProvider("TrentAdmin", "different-secret", time.Hour)
	assert.False(t, other.Verify(sess.AdminKey), "token signed with another secret must fail")
}
