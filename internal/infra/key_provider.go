package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

const (
	keyFileName = ".store.key"
	keySize     = 32 // 256-bit SQLCipher key

	keyringService = "appguard"
	keyringAccount = "store-key"
)

// FileKeyProvider implements domain.KeyProvider using a 0600 file in the
// data directory. Used when no OS keyring is available (headless sessions).
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, keyFileName),
	}
}

// GetKey reads the database key from the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return decodeKey(string(encoded))
}

// StoreKey writes the key with restricted permissions.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.keyPath, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// KeyringKeyProvider keeps the database key in the OS keyring
// (Secret Service on Linux).
type KeyringKeyProvider struct {
	service string
	account string
}

// NewKeyringKeyProvider creates a provider for the default keyring entry.
func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{service: keyringService, account: keyringAccount}
}

// GetKey reads the key from the keyring.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	s, err := keyring.Get(p.service, p.account)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return decodeKey(s)
}

// StoreKey saves the key in the keyring.
func (p *KeyringKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := keyring.Set(p.service, p.account, base64.StdEncoding.EncodeToString(key)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// KeyExists reports whether the keyring holds an entry.
func (p *KeyringKeyProvider) KeyExists() bool {
	s, err := keyring.Get(p.service, p.account)
	return err == nil && s != ""
}

// Delete removes the keyring entry. Missing entries are not an error.
func (p *KeyringKeyProvider) Delete() error {
	if err := keyring.Delete(p.service, p.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// ChainKeyProvider tries the keyring first and falls back to the key file.
// A key found in either place is used as-is; new keys go to the first
// provider that accepts them.
type ChainKeyProvider struct {
	providers []domain.KeyProvider
}

// NewChainKeyProvider creates a provider over providers, in order.
func NewChainKeyProvider(providers ...domain.KeyProvider) *ChainKeyProvider {
	return &ChainKeyProvider{providers: providers}
}

// DefaultKeyProvider is keyring first, then the file in dataDir.
func DefaultKeyProvider(dataDir string) domain.KeyProvider {
	return NewChainKeyProvider(NewKeyringKeyProvider(), NewFileKeyProvider(dataDir))
}

func (c *ChainKeyProvider) GetKey() ([]byte, error) {
	var errs []error
	for _, p := range c.providers {
		if !p.KeyExists() {
			continue
		}
		key, err := p.GetKey()
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no stored key")
	}
	return nil, errors.Join(errs...)
}

func (c *ChainKeyProvider) StoreKey(key []byte) error {
	var errs []error
	for _, p := range c.providers {
		err := p.StoreKey(key)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("failed to store key: %w", errors.Join(errs...))
}

func (c *ChainKeyProvider) KeyExists() bool {
	for _, p := range c.providers {
		if p.KeyExists() {
			return true
		}
	}
	return false
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return key, nil
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the stored key, generating and storing one if needed.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var (
	_ domain.KeyProvider = (*FileKeyProvider)(nil)
	_ domain.KeyProvider = (*KeyringKeyProvider)(nil)
	_ domain.KeyProvider = (*ChainKeyProvider)(nil)
)
