package onetime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive-auth/internal/onetime"
)

func TestNewSecret(t *testing.T) {
	secret, err := onetime.New(15 * time.Minute)
	require.NoError(t, err)

	require.Len(t, secret.Raw, 64) // 32 random bytes, hex encoded
	require.NotEqual(t, secret.Raw, secret.Digest)
	require.Equal(t, onetime.Digest(secret.Raw), secret.Digest)
	require.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), secret.Expiry, time.Minute)
}

func TestSecretsAreUnique(t *testing.T) {
	first, err := onetime.New(time.Hour)
	require.NoError(t, err)
	second, err := onetime.New(time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, first.Raw, second.Raw)
	require.NotEqual(t, first.Digest, second.Digest)
}

func TestDigestIsDeterministic(t *testing.T) {
	require.Equal(t, onetime.Digest("abc"), onetime.Digest("abc"))
	require.NotEqual(t, onetime.Digest("abc"), onetime.Digest("abd"))
}
