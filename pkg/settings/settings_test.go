package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

func TestSettings_DefaultsWithoutConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	s := New(viper.New())

	key, err := s.APIKey(context.Background())
	require.NoError(t, err)
	require.Empty(t, key)

	params, err := s.Defaults(context.Background())
	require.NoError(t, err)
	require.Equal(t, relay.Params{
		Model:       relay.DefaultModel,
		MaxTokens:   relay.DefaultMaxTokens,
		Temperature: relay.DefaultTemperature,
	}, params)
	require.True(t, s.Stream())
	require.Equal(t, "https://api.openai.com/v1", s.BaseURL())
}

func TestSettings_EnvironmentOverrides(t *testing.T) {
	t.Setenv("QUICKGPT_MODEL", "gpt-env")
	t.Setenv("QUICKGPT_MAX_TOKENS", "900")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	s := New(viper.New())

	key, err := s.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-fallback", key)

	params, err := s.Defaults(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gpt-env", params.Model)
	require.Equal(t, "900", params.MaxTokens)

	t.Setenv("QUICKGPT_OPENAI_KEY", "sk-primary")
	key, err = s.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-primary", key)
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	promptsPath := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, WritePromptsFile(promptsPath, []Prompt{{Name: "Translate", Prompt: "Translate to French:"}}))

	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
openai-key: " sk-file "
model: gpt-file
max-tokens: 120
stream: false
prompts-file: `+promptsPath+`
prompts:
  - name: Summarize
    prompt: "Summarize this:"
  - name: ""
    prompt: dropped
`), 0o644))

	s, err := Load(cfg)
	require.NoError(t, err)

	key, _ := s.APIKey(context.Background())
	require.Equal(t, "sk-file", key)
	params, _ := s.Defaults(context.Background())
	require.Equal(t, "gpt-file", params.Model)
	require.Equal(t, "120", params.MaxTokens)
	require.False(t, s.Stream())

	prompts, err := s.Prompts()
	require.NoError(t, err)
	require.Equal(t, []Prompt{
		{Name: "Summarize", Prompt: "Summarize this:"},
		{Name: "Translate", Prompt: "Translate to French:"},
	}, prompts)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestNormalizePrompts(t *testing.T) {
	require.Equal(t, []Prompt{DefaultPrompt}, NormalizePrompts(nil))
	require.Equal(t, []Prompt{DefaultPrompt}, NormalizePrompts([]Prompt{{Name: " ", Prompt: "x"}, {Name: "y"}}))
	require.Equal(t, []Prompt{{Name: "A", Prompt: "do a"}}, NormalizePrompts([]Prompt{{Name: " A ", Prompt: " do a "}}))
}

func TestFindPrompt(t *testing.T) {
	prompts := []Prompt{DefaultPrompt, {Name: "Translate", Prompt: "Translate:"}}
	p, ok := FindPrompt(prompts, "translate")
	require.True(t, ok)
	require.Equal(t, "Translate:", p.Prompt)
	_, ok = FindPrompt(prompts, "missing")
	require.False(t, ok)
}

func TestUpsertPromptsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")

	prompts, err := UpsertPromptsFile(path, Prompt{Name: " Translate ", Prompt: "Translate to French:"})
	require.NoError(t, err)
	require.Equal(t, []Prompt{{Name: "Translate", Prompt: "Translate to French:"}}, prompts)

	_, err = UpsertPromptsFile(path, Prompt{Name: "Summarize", Prompt: "Summarize:"})
	require.NoError(t, err)
	prompts, err = UpsertPromptsFile(path, Prompt{Name: "translate", Prompt: "Translate to German:"})
	require.NoError(t, err)
	require.Len(t, prompts, 2)

	stored, err := LoadPromptsFile(path)
	require.NoError(t, err)
	require.Equal(t, []Prompt{
		{Name: "translate", Prompt: "Translate to German:"},
		{Name: "Summarize", Prompt: "Summarize:"},
	}, stored)

	_, err = UpsertPromptsFile(path, Prompt{Name: "empty"})
	require.Error(t, err)
}
