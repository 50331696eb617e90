package credentials

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	rows map[string][]byte
	pref string
}

func (m *memBackend) GetUserAPIKeys(_ context.Context, _ uuid.UUID) (map[string][]byte, error) {
	return m.rows, nil
}

func (m *memBackend) UpsertUserAPIKey(_ context.Context, _ uuid.UUID, provider string, ciphertext []byte) error {
	if m.rows == nil {
		m.rows = make(map[string][]byte)
	}
	m.rows[provider] = ciphertext
	return nil
}

func (m *memBackend) GetModelPreference(_ context.Context, _ uuid.UUID) (string, error) {
	return m.pref, nil
}

var testKey = bytes.Repeat([]byte{7}, 32)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "hex", input: hex.EncodeToString(testKey)},
		{name: "base64", input: base64.StdEncoding.EncodeToString(testKey)},
		{name: "too short", input: hex.EncodeToString(testKey[:16]), wantErr: true},
		{name: "garbage", input: "not a key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testKey, key)
		})
	}
}

func TestSealOpen(t *testing.T) {
	s, err := NewStore(&memBackend{}, testKey)
	require.NoError(t, err)
	user := uuid.New()

	sealed, err := s.Seal(user, ProviderOpenAI, "sk-secret")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "sk-secret")

	plain, err := s.Open(user, ProviderOpenAI, sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", plain)

	_, err = s.Open(user, ProviderGemini, sealed)
	assert.Error(t, err, "bound to provider")
	_, err = s.Open(uuid.New(), ProviderOpenAI, sealed)
	assert.Error(t, err, "bound to user")
	_, err = s.Open(user, ProviderOpenAI, sealed[:5])
	assert.Error(t, err)
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, err := NewStore(&memBackend{}, testKey)
	require.NoError(t, err)
	user := uuid.New()
	a, _ := s.Seal(user, ProviderGemini, "k")
	b, _ := s.Seal(user, ProviderGemini, "k")
	assert.NotEqual(t, a, b)
}

func TestLoad_RoundTrip(t *testing.T) {
	backend := &memBackend{pref: "openai:gpt-4o"}
	s, err := NewStore(backend, testKey)
	require.NoError(t, err)
	user := uuid.New()
	ctx := context.Background()

	require.NoError(t, s.SetKey(ctx, user, ProviderGemini, "g-key"))
	require.NoError(t, s.SetKey(ctx, user, ProviderGoogleSearchCX, "cx-1"))
	assert.ErrorIs(t, s.SetKey(ctx, user, "mistral", "x"), ErrUnknownProvider)

	keys, err := s.Load(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "g-key", keys.Gemini)
	assert.Equal(t, "cx-1", keys.GoogleSearchCX)
	assert.Equal(t, "openai:gpt-4o", keys.ModelPreference)
	assert.True(t, keys.HasLLMKey())

	// Rotating a key is visible on the next Load.
	require.NoError(t, s.SetKey(ctx, user, ProviderGemini, "g-key-2"))
	keys, err = s.Load(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "g-key-2", keys.Gemini)
}

func TestKeys_WithDefaults(t *testing.T) {
	k := Keys{OpenAI: "user"}.WithDefaults(Keys{OpenAI: "env", Gemini: "env-g", ModelPreference: "gemini"})
	assert.Equal(t, "user", k.OpenAI)
	assert.Equal(t, "env-g", k.Gemini)
	assert.Equal(t, "gemini", k.ModelPreference)
	assert.False(t, Keys{GoogleSearch: "x"}.HasLLMKey())
}

func TestNewStore_BadKey(t *testing.T) {
	_, err := NewStore(&memBackend{}, []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
