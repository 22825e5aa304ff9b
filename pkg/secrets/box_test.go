package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	box, err := NewBox(key)
	require.NoError(t, err)
	require.True(t, box.Configured())

	sealed, err := box.Encrypt("client-secret-123")
	require.NoError(t, err)
	assert.NotEqual(t, "client-secret-123", sealed)

	opened, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "client-secret-123", opened)
}

func TestBox_NonceIsRandom(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	box, err := NewBox(key)
	require.NoError(t, err)

	a, err := box.Encrypt("same")
	require.NoError(t, err)
	b, err := box.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBox_WrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	box1, err := NewBox(key1)
	require.NoError(t, err)
	box2, err := NewBox(key2)
	require.NoError(t, err)

	sealed, err := box1.Encrypt("secret")
	require.NoError(t, err)

	_, err = box2.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestBox_NotConfigured(t *testing.T) {
	box, err := NewBox("")
	require.NoError(t, err)
	assert.False(t, box.Configured())

	_, err = box.Encrypt("secret")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = box.Decrypt("anything")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBox_BadKey(t *testing.T) {
	_, err := NewBox("not-base64!!!")
	assert.Error(t, err)

	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = NewBox(short)
	assert.Error(t, err)
}

func TestBox_GarbageCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	box, err := NewBox(key)
	require.NoError(t, err)

	_, err = box.Decrypt("%%%")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = box.Decrypt(base64.StdEncoding.EncodeToString([]byte("tiny")))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestGenerateKey_Length(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, KeySize)
}
