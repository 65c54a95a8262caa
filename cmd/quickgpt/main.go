package main

import (
	"context"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/quickgpt/cmd/quickgpt/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "quickgpt",
	Short: "Relay streamed OpenAI responses to any number of observers",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.InitLoggerFromCobra(cmd); err != nil {
			return err
		}
		if f := cmd.Flags(); f != nil {
			lvl, _ := f.GetString("log-level")
			if lvl != "" {
				if l, err := zerolog.ParseLevel(lvl); err == nil {
					zerolog.SetGlobalLevel(l)
				}
			}
			withCaller, _ := f.GetBool("with-caller")
			if withCaller {
				log.Logger = log.Logger.With().Caller().Logger()
			}
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	if err := clay.InitGlazed("quickgpt", rootCmd); err != nil {
		cobra.CheckErr(err)
	}
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		rootCmd.PersistentFlags().String("config", "", "Config file (default $HOME/.quickgpt/config.yaml)")
	}

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	rootCmd.AddCommand(
		cmds.NewServeCommand(),
		cmds.NewAskCommand(),
		cmds.NewPromptsCommand(),
		cmds.NewHistoryCommand(),
		cmds.NewEventsCommand(),
	)

	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}
