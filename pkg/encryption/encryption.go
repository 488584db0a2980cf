// Package encryption derives the storage encryption key from a passphrase.
//
// The key is fed to Badger's AES encryption-at-rest. A random salt is
// generated on first use and persisted next to the data files so the same
// passphrase derives the same key on reopen.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltFileName = ".munin-salt"
	saltSize     = 32
	iterations   = 100_000
	keySize      = 32 // AES-256
)

// DeriveKey derives a 32-byte AES key from the passphrase using PBKDF2 with
// the salt stored in dataDir. The salt file is created on first call.
func DeriveKey(passphrase string, dataDir string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}

	salt, err := loadOrCreateSalt(dataDir)
	if err != nil {
		return nil, err
	}

	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New), nil
}

func loadOrCreateSalt(dataDir string) ([]byte, error) {
	saltPath := filepath.Join(dataDir, saltFileName)

	salt, err := os.ReadFile(saltPath)
	if err == nil {
		if len(salt) != saltSize {
			return nil, fmt.Errorf("salt file %s is corrupt (%d bytes)", saltPath, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading salt file: %w", err)
	}

	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	// Owner-only: the salt is not secret but there is no reason to share it
	if err := os.WriteFile(saltPath, salt, 0o600); err != nil {
		return nil, fmt.Errorf("writing salt file: %w", err)
	}

	return salt, nil
}
