package cmds

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/quickgpt/pkg/relay"
	"github.com/go-go-golems/quickgpt/pkg/responses"
	"github.com/go-go-golems/quickgpt/pkg/settings"
)

// loadSettings reads the config file named by --config and overlays the
// command's generation flags that were set explicitly.
func loadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	configFile, _ := cmd.Flags().GetString("config")
	s, err := settings.Load(configFile)
	if err != nil {
		return nil, err
	}
	v := s.Viper()
	for _, key := range []string{settings.KeyModel, settings.KeyMaxTokens, settings.KeyBaseURL, settings.KeyPromptsFile} {
		if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	if f := cmd.Flags().Lookup("no-stream"); f != nil && f.Changed {
		noStream, _ := cmd.Flags().GetBool("no-stream")
		v.Set(settings.KeyStream, !noStream)
	}
	return s, nil
}

func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().String(settings.KeyModel, "", "Model name (default from config, then "+relay.DefaultModel+")")
	cmd.Flags().String(settings.KeyMaxTokens, "", "Maximum output tokens")
	cmd.Flags().String(settings.KeyBaseURL, "", "OpenAI API base URL")
	cmd.Flags().String(settings.KeyPromptsFile, "", "YAML file with additional prompts")
	cmd.Flags().Bool("no-stream", false, "Ask for a single buffered response instead of a stream")
}

func newController(ctx context.Context, s *settings.Settings, opts ...relay.Option) (*relay.Controller, error) {
	client := responses.NewHTTPClient(s.BaseURL())
	opts = append([]relay.Option{relay.WithStreaming(s.Stream())}, opts...)
	return relay.NewController(ctx, s, client, opts...)
}
