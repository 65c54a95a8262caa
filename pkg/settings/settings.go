// Package settings resolves the credential, generation defaults and prompt list
// from flags, environment and an optional YAML config file.
package settings

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/quickgpt/pkg/relay"
	"github.com/go-go-golems/quickgpt/pkg/responses"
)

const (
	KeyOpenAIKey   = "openai-key"
	KeyModel       = "model"
	KeyMaxTokens   = "max-tokens"
	KeyTemperature = "temperature"
	KeyBaseURL     = "base-url"
	KeyStream      = "stream"
	KeyPrompts     = "prompts"
	KeyPromptsFile = "prompts-file"

	EnvPrefix = "QUICKGPT"
)

// Settings reads configuration from a viper instance.
type Settings struct {
	v *viper.Viper
}

var _ relay.Settings = &Settings{}

// New wraps v after installing defaults and environment bindings.
func New(v *viper.Viper) *Settings {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault(KeyModel, relay.DefaultModel)
	v.SetDefault(KeyMaxTokens, relay.DefaultMaxTokens)
	v.SetDefault(KeyTemperature, relay.DefaultTemperature)
	v.SetDefault(KeyBaseURL, responses.DefaultBaseURL)
	v.SetDefault(KeyStream, true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(KeyOpenAIKey, EnvPrefix+"_OPENAI_KEY", "OPENAI_API_KEY")
	return &Settings{v: v}
}

// Load reads configFile, or config.yaml from $HOME/.quickgpt and the working
// directory when configFile is empty. A missing default file is not an error.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.quickgpt")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return New(v), nil
}

// Viper exposes the underlying instance, e.g. for binding cobra flags.
func (s *Settings) Viper() *viper.Viper {
	return s.v
}

func (s *Settings) APIKey(context.Context) (string, error) {
	return strings.TrimSpace(s.v.GetString(KeyOpenAIKey)), nil
}

func (s *Settings) Defaults(context.Context) (relay.Params, error) {
	return relay.Params{
		Model:       strings.TrimSpace(s.v.GetString(KeyModel)),
		MaxTokens:   strings.TrimSpace(s.v.GetString(KeyMaxTokens)),
		Temperature: strings.TrimSpace(s.v.GetString(KeyTemperature)),
	}, nil
}

func (s *Settings) BaseURL() string {
	return strings.TrimSpace(s.v.GetString(KeyBaseURL))
}

func (s *Settings) Stream() bool {
	return s.v.GetBool(KeyStream)
}

// Prompts returns the normalized prompt list: inline prompts first, then the
// ones from prompts-file.
func (s *Settings) Prompts() ([]Prompt, error) {
	var prompts []Prompt
	if s.v.IsSet(KeyPrompts) {
		if err := s.v.UnmarshalKey(KeyPrompts, &prompts); err != nil {
			return nil, errors.Wrap(err, "decode prompts")
		}
	}
	if path := strings.TrimSpace(s.v.GetString(KeyPromptsFile)); path != "" {
		fromFile, err := LoadPromptsFile(path)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, fromFile...)
	}
	return NormalizePrompts(prompts), nil
}
