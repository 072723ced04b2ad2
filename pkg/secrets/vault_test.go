package secrets

import (
	"context"
	"errors"
	"testing"

	"realtime-voice-agent/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	data  map[string]any
	err   error
	calls int
}

func (f *fakeKV) Get(context.Context, string) (*vault.KVSecret, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &vault.KVSecret{Data: f.data}, nil
}

func newTestManager(t *testing.T, env map[string]string) *VaultManager {
	t.Helper()
	m, err := NewVaultManager(VaultConfig{Enabled: false}, logger.Discard())
	require.NoError(t, err)
	m.getenv = func(k string) string { return env[k] }
	t.Cleanup(m.Close)
	return m
}

func TestEnvironmentFallback(t *testing.T) {
	m := newTestManager(t, map[string]string{"OPENAI_API_KEY": "sk-env"})

	v, err := m.GetSecret(context.Background(), KeyOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", v)

	_, err = m.GetSecret(context.Background(), "missing-key")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, "fallback", m.GetSecretWithDefault(context.Background(), "missing-key", "fallback"))
}

func TestVaultLookupIsCached(t *testing.T) {
	m := newTestManager(t, nil)
	kv := &fakeKV{data: map[string]any{KeyOpenAIAPIKey: "sk-vault"}}
	m.kv = kv

	for i := 0; i < 3; i++ {
		v, err := m.GetSecret(context.Background(), KeyOpenAIAPIKey)
		require.NoError(t, err)
		assert.Equal(t, "sk-vault", v)
	}
	assert.Equal(t, 1, kv.calls)
}

func TestVaultMissFallsBackToEnv(t *testing.T) {
	m := newTestManager(t, map[string]string{"OPENAI_API_KEY": "sk-env"})
	m.kv = &fakeKV{data: map[string]any{"other": "x"}}

	v, err := m.GetSecret(context.Background(), KeyOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", v)
}

func TestVaultErrorPropagates(t *testing.T) {
	m := newTestManager(t, map[string]string{"OPENAI_API_KEY": "sk-env"})
	m.kv = &fakeKV{err: errors.New("permission denied")}

	_, err := m.GetSecret(context.Background(), KeyOpenAIAPIKey)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretNotFound)
}

func TestEnabledRequiresAddressAndToken(t *testing.T) {
	_, err := NewVaultManager(VaultConfig{Enabled: true}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	_, err = NewVaultManager(VaultConfig{Enabled: true, Address: "http://127.0.0.1:8200"}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultToken)
}

func TestSplitKVPath(t *testing.T) {
	mount, path := splitKVPath("secret/data/realtime-voice-agent")
	assert.Equal(t, "secret", mount)
	assert.Equal(t, "realtime-voice-agent", path)

	mount, path = splitKVPath("app")
	assert.Equal(t, "secret", mount)
	assert.Equal(t, "app", path)
}

func TestStatic(t *testing.T) {
	s := Static{KeyOpenAIAPIKey: "sk"}
	v, err := s.GetSecret(context.Background(), KeyOpenAIAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk", v)
	assert.Equal(t, "d", s.GetSecretWithDefault(context.Background(), "nope", "d"))
}
