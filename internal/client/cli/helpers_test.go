package cli

import (
	"testing"

	"github.com/dmitrijs2005/secretvault/internal/client/api"
	"github.com/dmitrijs2005/secretvault/internal/client/config"
	"github.com/dmitrijs2005/secretvault/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		m, err := parseMetadata(nil)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("pairs", func(t *testing.T) {
		m, err := parseMetadata([]string{"environment=prod", "comment=first push"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"environment": "prod", "comment": "first push"}, m)
	})

	t.Run("value may contain equals", func(t *testing.T) {
		m, err := parseMetadata([]string{"comment=a=b"})
		require.NoError(t, err)
		assert.Equal(t, "a=b", m["comment"])
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := parseMetadata([]string{"justtext"})
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := parseMetadata([]string{"=value"})
		assert.Error(t, err)
	})
}

func TestEncryptForKeys_SkipsInactive(t *testing.T) {
	pair, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	keys := []api.Key{
		{KeyID: "key-a", PublicKey: pair.PublicKeyPEM, IsActive: true},
		{KeyID: "key-b", PublicKey: pair.PublicKeyPEM, IsActive: false},
	}

	entries, err := encryptForKeys([]byte("plaintext"), keys)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key-a", entries[0].KeyID)

	got, err := cryptox.DecryptWithPrivateKey(entries[0].EncryptedData, pair.PrivateKeyPEM)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", string(got))
}

func TestFanout_CoversAllRecipients(t *testing.T) {
	pair, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)

	recipients := []api.Recipient{
		{Username: "alice", Keys: []api.Key{{KeyID: "key-a", PublicKey: pair.PublicKeyPEM, IsActive: true}}},
		{Username: "bob", Keys: []api.Key{
			{KeyID: "key-b1", PublicKey: pair.PublicKeyPEM, IsActive: true},
			{KeyID: "key-b2", PublicKey: pair.PublicKeyPEM, IsActive: true},
		}},
	}

	entries, err := fanout([]byte("plaintext"), recipients)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.KeyID] = true
	}
	assert.True(t, seen["key-a"] && seen["key-b1"] && seen["key-b2"])
}

func TestPrivateKey_SealedPromptsViaSeam(t *testing.T) {
	sealed, err := cryptox.SealPrivateKey("PRIV-PEM", []byte("hunter2"))
	require.NoError(t, err)

	orig := readPassword
	readPassword = func(fd int) ([]byte, error) { return []byte("hunter2"), nil }
	t.Cleanup(func() { readPassword = orig })

	id := &config.Identity{SealedPrivateKey: sealed}
	pem, err := privateKey(id)
	require.NoError(t, err)
	assert.Equal(t, "PRIV-PEM", pem)
}
