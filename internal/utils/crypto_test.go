package utils

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecryptRoundTrip(t *testing.T) {
	iv, err := GenerateIV()
	require.NoError(t, err)
	require.Len(t, iv, 16)

	for _, plaintext := range []string{
		"hello",
		"",
		"exactly sixteen!",
		strings.Repeat("long message with unicode éè ", 50),
	} {
		ciphertext, err := EncryptWithIV(plaintext, testKey, iv)
		require.NoError(t, err)
		assert.NotContains(t, ciphertext, plaintext)

		decrypted, err := Decrypt(ciphertext, hex.EncodeToString(iv), testKey)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptSharedIV(t *testing.T) {
	// One exchange stores query and response under the same IV
	iv, err := GenerateIV()
	require.NoError(t, err)

	encQuery, err := EncryptWithIV("how do I handle exam stress?", testKey, iv)
	require.NoError(t, err)
	encResponse, err := EncryptWithIV("try breaking revision into short blocks...", testKey, iv)
	require.NoError(t, err)

	query, err := Decrypt(encQuery, hex.EncodeToString(iv), testKey)
	require.NoError(t, err)
	response, err := Decrypt(encResponse, hex.EncodeToString(iv), testKey)
	require.NoError(t, err)

	assert.Equal(t, "how do I handle exam stress?", query)
	assert.Equal(t, "try breaking revision into short blocks...", response)
}

func TestDecryptFailures(t *testing.T) {
	iv, err := GenerateIV()
	require.NoError(t, err)
	ciphertext, err := EncryptWithIV("sensitive", testKey, iv)
	require.NoError(t, err)

	// Garbage inputs
	_, err = Decrypt("not-hex", hex.EncodeToString(iv), testKey)
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = Decrypt(ciphertext, "not-hex", testKey)
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = Decrypt("", hex.EncodeToString(iv), testKey)
	assert.ErrorIs(t, err, ErrDecryption)

	// Truncated ciphertext breaks block alignment
	_, err = Decrypt(ciphertext[:len(ciphertext)-2], hex.EncodeToString(iv), testKey)
	assert.ErrorIs(t, err, ErrDecryption)

	// Bad key length
	_, err = Decrypt(ciphertext, hex.EncodeToString(iv), []byte("short"))
	assert.ErrorIs(t, err, ErrDecryption)

	// Wrong key never yields the original plaintext
	wrongKey := []byte("ffffffffffffffffffffffffffffffff")
	decrypted, err := Decrypt(ciphertext, hex.EncodeToString(iv), wrongKey)
	if err == nil {
		assert.NotEqual(t, "sensitive", decrypted)
	}
}
