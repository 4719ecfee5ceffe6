package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("att-1", "lesson-plans/att-1.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	id, path, parsedExp, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "att-1", id)
	assert.Equal(t, "lesson-plans/att-1.pdf", path)
	assert.WithinDuration(t, expiresAt, parsedExp, time.Second)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("att-1", "lesson-plans/att-1.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"x", false)
	assert.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, _, err = other.Parse(token, false)
	assert.Error(t, err)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", -time.Minute)
	signer.ttl = time.Nanosecond

	token, _, err := signer.Generate("att-1", "file.pdf")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, _, _, err = signer.Parse(token, false)
	assert.Error(t, err)

	_, _, _, err = signer.Parse(token, true)
	assert.NoError(t, err)
}
