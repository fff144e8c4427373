package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", "user_1", time.Minute)
	require.NoError(t, err)

	sub, err := ParseSubject("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", sub)

	_, err = ParseSubject("other", tok.Token)
	assert.Error(t, err)

	expired, err := NewAccessToken("secret", "user_1", -time.Minute)
	require.NoError(t, err)
	_, err = ParseSubject("secret", expired.Token)
	assert.Error(t, err)
}

func TestStateTokenIsBoundToProvider(t *testing.T) {
	raw, err := NewStateToken("secret", 7, "slack", time.Minute)
	require.NoError(t, err)

	claims, err := ParseStateToken("secret", raw, "slack")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)
	assert.Len(t, claims.Nonce, 32)

	_, err = ParseStateToken("secret", raw, "discord")
	assert.Error(t, err)
	_, err = ParseStateToken("wrong", raw, "slack")
	assert.Error(t, err)
}
