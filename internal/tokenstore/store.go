// Package tokenstore persists OAuth tokens encrypted at rest. The payload
// is msgpack-encoded and sealed with AES-256-GCM; the file never contains
// plaintext token material.
package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// Access tokens are treated as expired this long before their actual
	// expiry, so a token is never used mid-request when it is about to die.
	accessExpiryBuffer = 5 * time.Minute

	// Schwab refresh tokens are valid for seven days from issuance.
	refreshLifetime = 7 * 24 * time.Hour
)

// Tokens is one OAuth token set with lifecycle timestamps. SavedAt and
// the expiry fields are stamped by Save; callers only fill the fields
// returned by the token endpoint.
type Tokens struct {
	AccessToken      string `msgpack:"access_token" json:"-"`
	RefreshToken     string `msgpack:"refresh_token" json:"-"`
	TokenType        string `msgpack:"token_type" json:"token_type"`
	Scope            string `msgpack:"scope" json:"scope"`
	ExpiresIn        int64  `msgpack:"expires_in" json:"expires_in"`
	SavedAt          int64  `msgpack:"saved_at" json:"saved_at"`
	AccessExpiresAt  int64  `msgpack:"access_expires_at" json:"access_expires_at"`
	RefreshExpiresAt int64  `msgpack:"refresh_expires_at" json:"refresh_expires_at"`
}

// IsAccessExpired reports whether the access token is expired or inside
// the expiry buffer.
func (t *Tokens) IsAccessExpired() bool {
	return time.Now().Unix() >= t.AccessExpiresAt-int64(accessExpiryBuffer.Seconds())
}

// IsRefreshValid reports whether the refresh token can still be used.
func (t *Tokens) IsRefreshValid() bool {
	return t.RefreshToken != "" && time.Now().Unix() < t.RefreshExpiresAt
}

// Store reads and writes the encrypted token file.
type Store struct {
	path string
	key  []byte
	mu   sync.Mutex
	log  zerolog.Logger
}

// New creates a token store. The encryption key is derived from the
// configured passphrase with SHA-256, yielding the 32 bytes AES-256 needs
// regardless of passphrase length.
func New(path, passphrase string, log zerolog.Logger) (*Store, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("token encryption key not configured")
	}

	key := sha256.Sum256([]byte(passphrase))

	return &Store{
		path: path,
		key:  key[:],
		log:  log.With().Str("component", "tokenstore").Logger(),
	}, nil
}

// Save stamps lifecycle timestamps and writes the encrypted token file.
func (s *Store) Save(tokens Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	tokens.SavedAt = now.Unix()
	tokens.AccessExpiresAt = now.Unix() + tokens.ExpiresIn
	tokens.RefreshExpiresAt = now.Add(refreshLifetime).Unix()

	payload, err := msgpack.Marshal(&tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	sealed, err := s.seal(payload)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(s.path, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	s.log.Info().
		Time("access_expires", time.Unix(tokens.AccessExpiresAt, 0)).
		Time("refresh_expires", time.Unix(tokens.RefreshExpiresAt, 0)).
		Msg("Tokens saved")
	return nil
}

// Load reads and decrypts the token file. Returns nil, nil when no token
// file exists.
func (s *Store) Load() (*Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	payload, err := s.open(sealed)
	if err != nil {
		return nil, err
	}

	var tokens Tokens
	if err := msgpack.Unmarshal(payload, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}
	return &tokens, nil
}

// Delete removes the token file. Deleting a missing file is not an error.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	s.log.Info().Msg("Tokens deleted")
	return nil
}

// HasValidTokens reports whether a usable token set is on disk: the
// refresh token must still be valid, the access token may be expired.
func (s *Store) HasValidTokens() bool {
	tokens, err := s.Load()
	if err != nil || tokens == nil {
		return false
	}
	return tokens.IsRefreshValid()
}

// seal encrypts payload with AES-256-GCM, prepending the random nonce.
func (s *Store) seal(payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, payload, nil), nil
}

// open decrypts a sealed payload produced by seal.
func (s *Store) open(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("token file corrupt: too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	payload, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token file (wrong key?): %w", err)
	}
	return payload, nil
}
