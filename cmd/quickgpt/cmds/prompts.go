package cmds

import (
	"context"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazedsettings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/quickgpt/pkg/settings"
)

// NewPromptsCommand returns the prompts command group.
func NewPromptsCommand() *cobra.Command {
	promptsCmd := &cobra.Command{
		Use:   "prompts",
		Short: "List and edit the configured prompts",
	}
	listCmd, err := NewPromptsListCommand()
	cobra.CheckErr(err)
	cobraListCmd, err := cli.BuildCobraCommand(listCmd, cli.WithCobraMiddlewaresFunc(quickgptMiddlewares))
	cobra.CheckErr(err)
	listCmd.configFile = configFileOf(cobraListCmd)

	promptsCmd.AddCommand(cobraListCmd)
	promptsCmd.AddCommand(newPromptsAddCommand())
	return promptsCmd
}

// quickgptMiddlewares resolves glazed fields from flags, arguments, QUICKGPT_*
// environment variables and defaults, in that order of precedence.
func quickgptMiddlewares(_ *values.Values, cmd *cobra.Command, args []string) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
		sources.FromEnv(settings.EnvPrefix, fields.WithSource("env")),
		sources.FromDefaults(),
	}, nil
}

// configFileOf reads the root --config flag of cmd once it was parsed.
func configFileOf(cmd *cobra.Command) func() string {
	return func() string {
		v, _ := cmd.Flags().GetString("config")
		return v
	}
}

type PromptsListSettings struct {
	PromptsFile string `glazed:"prompts-file"`
}

type PromptsListCommand struct {
	*cmds.CommandDescription
	configFile func() string
}

func NewPromptsListCommand() (*PromptsListCommand, error) {
	glazedSection, err := glazedsettings.NewGlazedSection()
	if err != nil {
		return nil, errors.Wrap(err, "create glazed section")
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, errors.Wrap(err, "create command settings section")
	}

	desc := cmds.NewCommandDescription(
		"list",
		cmds.WithShort("List the configured prompts"),
		cmds.WithLong("List the prompts from the config file and the optional prompts file, one row per prompt."),
		cmds.WithFlags(
			fields.New(
				settings.KeyPromptsFile,
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("YAML file with additional prompts"),
			),
		),
		cmds.WithSections(glazedSection, commandSettingsSection),
	)
	return &PromptsListCommand{CommandDescription: desc}, nil
}

func (c *PromptsListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedValues *values.Values, gp middlewares.Processor) error {
	s := &PromptsListSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	configFile := ""
	if c.configFile != nil {
		configFile = c.configFile()
	}
	st, err := settings.Load(configFile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.PromptsFile) != "" {
		st.Viper().Set(settings.KeyPromptsFile, s.PromptsFile)
	}
	prompts, err := st.Prompts()
	if err != nil {
		return err
	}
	for _, row := range promptRows(prompts) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func promptRows(prompts []settings.Prompt) []types.Row {
	rows := make([]types.Row, 0, len(prompts))
	for _, p := range prompts {
		rows = append(rows, types.NewRow(
			types.MRP("name", p.Name),
			types.MRP("prompt", p.Prompt),
		))
	}
	return rows
}

var _ cmds.GlazeCommand = &PromptsListCommand{}

func newPromptsAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add NAME PROMPT...",
		Short: "Add or replace a prompt in the prompts file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString(settings.KeyPromptsFile)
			if strings.TrimSpace(path) == "" {
				return errors.New("--prompts-file is required")
			}
			p := settings.Prompt{Name: args[0], Prompt: strings.Join(args[1:], " ")}
			prompts, err := settings.UpsertPromptsFile(path, p)
			if err != nil {
				return err
			}
			cmd.Printf("%s now holds %d prompts\n", path, len(prompts))
			return nil
		},
	}
	cmd.Flags().String(settings.KeyPromptsFile, "", "YAML file the prompt is written to")
	return cmd
}
