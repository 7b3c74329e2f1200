package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("bulletin-1", "bulletins/2025-2026/bulletin-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	owner, path, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "bulletin-1", owner)
	require.Equal(t, "bulletins/2025-2026/bulletin-1.pdf", path)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("bulletin-1", "a.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, err = signer.Parse(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignedURLSignerTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("bulletin-1", "a.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Minute)
	_, _, err = other.Parse(token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, _, err = signer.Parse("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
}
