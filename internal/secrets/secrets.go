// Package secrets stores API keys encrypted at rest.
//
// Keys live in a single JSON document sealed with AES-256-GCM. The cipher
// key is derived via scrypt from a random machine secret created on first
// use, so the encrypted file is only readable on the machine that wrote it
// (or anywhere the secret file is copied to, deliberately).
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	secretFileName = "secret.key"
	storeFileName  = "secrets.enc"

	machineSecretLen = 32

	// scrypt parameters (interactive-grade; the input already has full entropy)
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var scryptSalt = []byte("codelamp.secrets.v1")

// Store manages encrypted credentials under a data directory. Logical key
// names follow the "<app>_<provider>_key" scheme, e.g. "codelamp_gemini_key".
type Store struct {
	mu      sync.Mutex
	dataDir string
	aead    cipher.AEAD
	values  map[string]string
}

// Open loads (or initializes) the secret store in dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	aead, err := loadAEAD(dataDir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dataDir: dataDir,
		aead:    aead,
		values:  make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func loadAEAD(dataDir string) (cipher.AEAD, error) {
	secretPath := filepath.Join(dataDir, secretFileName)

	secret, err := os.ReadFile(secretPath)
	if os.IsNotExist(err) {
		secret = make([]byte, machineSecretLen)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate machine secret: %w", err)
		}
		if err := os.WriteFile(secretPath, secret, 0600); err != nil {
			return nil, fmt.Errorf("write machine secret: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read machine secret: %w", err)
	}

	key, err := scrypt.Key(secret, scryptSalt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// load decrypts the store file into memory. A missing file means an empty
// store; a corrupt or undecryptable file is an error, since silently
// discarding credentials would force the user to re-enter every key.
func (s *Store) load() error {
	data, err := os.ReadFile(filepath.Join(s.dataDir, storeFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets file: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return fmt.Errorf("secrets file truncated")
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return fmt.Errorf("decrypt secrets: %w", err)
	}

	if err := json.Unmarshal(plaintext, &s.values); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}
	return nil
}

func (s *Store) save() error {
	plaintext, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)

	return os.WriteFile(filepath.Join(s.dataDir, storeFileName), sealed, 0600)
}

// keyName builds the logical storage name for a provider credential.
func keyName(provider string) string {
	return fmt.Sprintf("codelamp_%s_key", provider)
}

// Get returns the API key for provider, or "" when none is stored.
func (s *Store) Get(provider string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[keyName(provider)]
}

// Set stores the API key for provider. An empty value deletes the entry,
// matching the UI convention that saving an empty key removes it.
func (s *Store) Set(provider, apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if apiKey == "" {
		delete(s.values, keyName(provider))
	} else {
		s.values[keyName(provider)] = apiKey
	}
	return s.save()
}

// Delete removes the API key for provider.
func (s *Store) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, keyName(provider))
	return s.save()
}
