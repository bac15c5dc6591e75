package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestFileKeyProvider(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T, provider *FileKeyProvider)
	}{
		{
			name: "KeyExists returns false when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				assert.False(t, provider.KeyExists())
			},
		},
		{
			name: "StoreKey writes 0600 file and GetKey reads it back",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))

				info, err := os.Stat(provider.keyPath)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

				got, err := provider.GetKey()
				require.NoError(t, err)
				assert.Equal(t, key, got)
			},
		},
		{
			name: "GetKey returns error when no key file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				_, err := provider.GetKey()
				assert.Error(t, err)
			},
		},
		{
			name: "GetKey rejects corrupt file",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				require.NoError(t, os.WriteFile(provider.keyPath, []byte("!!notbase64"), 0600))
				_, err := provider.GetKey()
				assert.ErrorContains(t, err, "failed to decode key")
			},
		},
		{
			name: "StoreKey rejects wrong key size",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				err := provider.StoreKey([]byte("tooshort"))
				assert.ErrorContains(t, err, "invalid key size")
			},
		},
		{
			name: "StoreKey creates directory if missing",
			testFn: func(t *testing.T, provider *FileKeyProvider) {
				provider.keyPath = filepath.Join(filepath.Dir(provider.keyPath), "sub", "dir", keyFileName)

				key, err := GenerateKey()
				require.NoError(t, err)
				require.NoError(t, provider.StoreKey(key))
				assert.True(t, provider.KeyExists())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.testFn(t, NewFileKeyProvider(t.TempDir()))
		})
	}
}

func TestKeyringKeyProvider(t *testing.T) {
	keyring.MockInit()
	p := NewKeyringKeyProvider()

	assert.False(t, p.KeyExists())

	key, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, p.StoreKey(key))
	assert.True(t, p.KeyExists())

	got, err := p.GetKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)

	require.NoError(t, p.Delete())
	assert.False(t, p.KeyExists())
	require.NoError(t, p.Delete(), "deleting a missing entry is fine")
}

// Headless sessions have no Secret Service; the key file takes over.
func TestChainKeyProvider_FallsBackToFile(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: no session bus"))
	t.Cleanup(keyring.MockInit)

	dataDir := t.TempDir()
	chain := DefaultKeyProvider(dataDir)

	key, err := EnsureKey(chain)
	require.NoError(t, err)
	assert.Len(t, key, keySize)

	file := NewFileKeyProvider(dataDir)
	assert.True(t, file.KeyExists())

	again, err := EnsureKey(chain)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestChainKeyProvider_PrefersKeyring(t *testing.T) {
	keyring.MockInit()

	dataDir := t.TempDir()
	chain := DefaultKeyProvider(dataDir)

	key, err := EnsureKey(chain)
	require.NoError(t, err)

	assert.True(t, NewKeyringKeyProvider().KeyExists())
	assert.False(t, NewFileKeyProvider(dataDir).KeyExists())

	got, err := chain.GetKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestChainKeyProvider_NoKey(t *testing.T) {
	keyring.MockInit()
	chain := NewChainKeyProvider(NewKeyringKeyProvider(), NewFileKeyProvider(t.TempDir()))

	assert.False(t, chain.KeyExists())
	_, err := chain.GetKey()
	assert.Error(t, err)
}

func TestGenerateKey_Unique(t *testing.T) {
	keys := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		assert.Len(t, key, keySize)
		assert.False(t, keys[string(key)], "duplicate key generated")
		keys[string(key)] = true
	}
}

func TestEnsureKey_ReturnsExisting(t *testing.T) {
	provider := NewFileKeyProvider(t.TempDir())

	original, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, provider.StoreKey(original))

	key, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Equal(t, original, key)
}
