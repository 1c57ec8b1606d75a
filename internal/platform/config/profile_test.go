package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinProfiles(t *testing.T) {
	profiles := BuiltinProfiles()
	require.Contains(t, profiles, "classic")
	require.Contains(t, profiles, "mmr")

	mmr := profiles["mmr"].Apply(DefaultChatConfig())
	assert.Equal(t, "gpt-3.5-turbo-16k-0613", mmr.Model)
	assert.Equal(t, 5, mmr.RetrievalK)
	assert.Equal(t, "mmr", mmr.SearchMode)
	assert.Equal(t, 1000, mmr.MaxTokens)
	assert.Equal(t, AnalystSystemPrompt, mmr.SystemPrompt)
	assert.Equal(t, 0.0, mmr.Temperature)

	classic := profiles["classic"].Apply(DefaultChatConfig())
	assert.Equal(t, DefaultChatConfig(), classic)
}

func TestProfile_ApplyKeepsUnsetFields(t *testing.T) {
	base := DefaultChatConfig()
	base.MemoryWindow = 7

	got := Profile{RetrievalK: ptr(9)}.Apply(base)
	assert.Equal(t, 9, got.RetrievalK)
	assert.Equal(t, 7, got.MemoryWindow)
	assert.Equal(t, base.Model, got.Model)
}

func TestLoadProfiles_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  terse:
    description: short answers
    max_tokens: 64
    lambda: 0.7
    request_timeout: 10s
  mmr:
    k: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)

	require.Contains(t, profiles, "classic")
	terse := profiles["terse"]
	assert.Equal(t, "terse", terse.Name)
	assert.Equal(t, "short answers", terse.Description)

	applied := terse.Apply(DefaultChatConfig())
	assert.Equal(t, 64, applied.MaxTokens)
	assert.Equal(t, 0.7, applied.Lambda)
	assert.Equal(t, 10*time.Second, applied.RequestTimeout)

	// ファイルの定義は組み込みを置き換える
	assert.Nil(t, profiles["mmr"].Model)
	assert.Equal(t, 8, *profiles["mmr"].RetrievalK)

	names := []string{}
	for _, p := range SortedProfiles(profiles) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"classic", "mmr", "terse"}, names)
}

func TestLoadProfiles_Errors(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read profile file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [unterminated"), 0o644))
	_, err = LoadProfiles(path)
	assert.ErrorContains(t, err, "failed to parse profile file")
}

func TestConfig_ApplyProfile(t *testing.T) {
	cfg := &Config{Chat: DefaultChatConfig()}

	require.NoError(t, cfg.ApplyProfile("", BuiltinProfiles()))
	assert.Equal(t, DefaultChatConfig(), cfg.Chat)

	require.NoError(t, cfg.ApplyProfile("mmr", BuiltinProfiles()))
	assert.Equal(t, "mmr", cfg.Profile)
	assert.Equal(t, 5, cfg.Chat.RetrievalK)

	err := cfg.ApplyProfile("nope", BuiltinProfiles())
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestLoadProfiles_AllChatOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  strict:
    rephrase_model: gpt-4o-mini
    truncation: none
    max_retries: 5
    record_empty_turns: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)

	applied := profiles["strict"].Apply(DefaultChatConfig())
	assert.Equal(t, "gpt-4o-mini", applied.RephraseModel)
	assert.Equal(t, "none", applied.Truncation)
	assert.Equal(t, 5, applied.MaxRetries)
	assert.True(t, applied.RecordEmptyTurns)
	assert.Equal(t, DefaultChatConfig().Model, applied.Model)
}
