package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dplay/pkg/domain"
	dErrors "dplay/pkg/domain-errors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("signing-key", "dplay", "dplay-registry")

	token, err := svc.IssueToken("user:alice", time.Hour)
	require.NoError(t, err)

	caller, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.Identity("user:alice"), caller)
}

func TestValidateToken(t *testing.T) {
	svc := NewService("signing-key", "dplay", "dplay-registry")

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects tokens signed with another key", func(t *testing.T) {
		other := NewService("different-key", "dplay", "dplay-registry")
		token, err := other.IssueToken("user:mallory", time.Hour)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		token, err := svc.IssueToken("user:alice", -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
