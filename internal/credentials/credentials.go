// Package credentials stores per-user API keys encrypted at rest.
//
// Keys are sealed with XChaCha20-Poly1305 under a 32-byte master key. The
// ciphertext layout is nonce || sealed box, and the user ID and provider name
// are bound as additional data so a ciphertext cannot be moved between rows.
package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

// Provider names as stored in user_api_keys.provider
const (
	ProviderGemini         = "gemini"
	ProviderOpenAI         = "openai"
	ProviderAnthropic      = "anthropic"
	ProviderGoogleSearch   = "google_search"
	ProviderGoogleSearchCX = "google_search_cx"
)

// Providers lists every accepted provider name.
var Providers = []string{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderGoogleSearch, ProviderGoogleSearchCX}

// ErrInvalidKey is returned for a master key that is not 32 bytes.
var ErrInvalidKey = errors.New("credentials key must be 32 bytes, hex or base64 encoded")

// ErrUnknownProvider is returned by SetKey for an unsupported provider.
var ErrUnknownProvider = errors.New("unknown credentials provider")

// Keys are the decrypted credentials of one user
type Keys struct {
	Gemini          string
	OpenAI          string
	Anthropic       string
	GoogleSearch    string
	GoogleSearchCX  string
	ModelPreference string
}

// Get returns the key for a provider name.
func (k Keys) Get(provider string) string {
	switch provider {
	case ProviderGemini:
		return k.Gemini
	case ProviderOpenAI:
		return k.OpenAI
	case ProviderAnthropic:
		return k.Anthropic
	case ProviderGoogleSearch:
		return k.GoogleSearch
	case ProviderGoogleSearchCX:
		return k.GoogleSearchCX
	}
	return ""
}

func (k *Keys) set(provider, value string) {
	switch provider {
	case ProviderGemini:
		k.Gemini = value
	case ProviderOpenAI:
		k.OpenAI = value
	case ProviderAnthropic:
		k.Anthropic = value
	case ProviderGoogleSearch:
		k.GoogleSearch = value
	case ProviderGoogleSearchCX:
		k.GoogleSearchCX = value
	}
}

// HasLLMKey reports whether any language model key is present.
func (k Keys) HasLLMKey() bool {
	return k.Gemini != "" || k.OpenAI != "" || k.Anthropic != ""
}

// WithDefaults fills empty fields from d.
func (k Keys) WithDefaults(d Keys) Keys {
	for _, p := range Providers {
		if k.Get(p) == "" {
			k.set(p, d.Get(p))
		}
	}
	if k.ModelPreference == "" {
		k.ModelPreference = d.ModelPreference
	}
	return k
}

// Backend reads and writes the encrypted rows.
type Backend interface {
	GetUserAPIKeys(ctx context.Context, userID uuid.UUID) (map[string][]byte, error)
	UpsertUserAPIKey(ctx context.Context, userID uuid.UUID, provider string, ciphertext []byte) error
	GetModelPreference(ctx context.Context, userID uuid.UUID) (string, error)
}

// Store decrypts credentials on every Load; nothing is cached.
type Store struct {
	backend Backend
	aead    cipher.AEAD
}

// ParseKey decodes a hex or base64 master key.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	return nil, ErrInvalidKey
}

// NewStore returns a Store sealing with key.
func NewStore(backend Backend, key []byte) (*Store, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Store{backend: backend, aead: aead}, nil
}

func additionalData(userID uuid.UUID, provider string) []byte {
	return []byte(userID.String() + ":" + provider)
}

// Seal encrypts a key for one user and provider.
func (s *Store) Seal(userID uuid.UUID, provider, plaintext string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), additionalData(userID, provider)), nil
}

// Open decrypts a value produced by Seal.
func (s *Store) Open(userID uuid.UUID, provider string, ciphertext []byte) (string, error) {
	if len(ciphertext) < s.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, box := ciphertext[:s.aead.NonceSize()], ciphertext[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, box, additionalData(userID, provider))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s key: %w", provider, err)
	}
	return string(plain), nil
}

// Load reads and decrypts all keys of a user.
func (s *Store) Load(ctx context.Context, userID uuid.UUID) (*Keys, error) {
	rows, err := s.backend.GetUserAPIKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load api keys: %w", err)
	}
	keys := &Keys{}
	for provider, ciphertext := range rows {
		plain, err := s.Open(userID, provider, ciphertext)
		if err != nil {
			return nil, err
		}
		keys.set(provider, plain)
	}
	pref, err := s.backend.GetModelPreference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model preference: %w", err)
	}
	keys.ModelPreference = pref
	return keys, nil
}

// SetKey seals and stores one key.
func (s *Store) SetKey(ctx context.Context, userID uuid.UUID, provider, plaintext string) error {
	if !isProvider(provider) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	sealed, err := s.Seal(userID, provider, plaintext)
	if err != nil {
		return err
	}
	return s.backend.UpsertUserAPIKey(ctx, userID, provider, sealed)
}

func isProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}
