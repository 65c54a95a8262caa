package cmds

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/quickgpt/pkg/archive"
	"github.com/go-go-golems/quickgpt/pkg/eventstream"
	"github.com/go-go-golems/quickgpt/pkg/relay"
	"github.com/go-go-golems/quickgpt/pkg/server"
)

func NewServeCommand() *cobra.Command {
	defaults := eventstream.DefaultSettings()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the websocket relay and HTTP command API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			addr, _ := f.GetString("addr")
			archiveDB, _ := f.GetString("archive-db")
			mirror := eventstream.Settings{}
			mirror.Enabled, _ = f.GetBool("redis-enabled")
			mirror.Addr, _ = f.GetString("redis-addr")
			mirror.Group, _ = f.GetString("redis-group")
			mirror.Consumer, _ = f.GetString("redis-consumer")
			mirror.Topic, _ = f.GetString("mirror-topic")

			transport, err := eventstream.Build(ctx, mirror)
			if err != nil {
				return errors.Wrap(err, "build event mirror")
			}
			defer func() {
				if err := transport.Close(); err != nil {
					log.Warn().Err(err).Msg("close event mirror")
				}
			}()

			var arch archive.Archive
			if archiveDB != "" {
				dsn, err := archive.SQLiteDSNForFile(archiveDB)
				if err != nil {
					return err
				}
				arch, err = archive.NewSQLiteArchive(dsn)
				if err != nil {
					return errors.Wrap(err, "open archive")
				}
			} else {
				arch = archive.NewMemoryArchive(0)
			}

			ctrl, err := newController(ctx, s, relay.WithObservers(
				eventstream.NewMirror(transport.Publisher, transport.Topic),
				archive.NewObserver(arch),
			))
			if err != nil {
				_ = arch.Close()
				return err
			}

			log.Info().Dur("grace", ctrl.Cleanup().Grace()).Msg("finished requests stay attachable for the grace window")

			srv, err := server.New(server.Config{
				Addr:       addr,
				Controller: ctrl,
				Prompts:    s,
				Archive:    arch,
			})
			if err != nil {
				ctrl.Close()
				_ = arch.Close()
				return err
			}
			return srv.Run(ctx)
		},
	}
	addGenerationFlags(cmd)
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("archive-db", "", "SQLite file for finished request outcomes (in-memory when empty)")
	cmd.Flags().Bool("redis-enabled", false, "Mirror relay messages to Redis Streams")
	cmd.Flags().String("redis-addr", defaults.Addr, "Redis address host:port")
	cmd.Flags().String("redis-group", defaults.Group, "Redis consumer group")
	cmd.Flags().String("redis-consumer", defaults.Consumer, "Redis consumer name")
	cmd.Flags().String("mirror-topic", defaults.Topic, "Topic relay messages are mirrored to")
	return cmd
}
