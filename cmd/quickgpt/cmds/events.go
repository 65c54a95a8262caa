package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/quickgpt/pkg/eventstream"
	"github.com/go-go-golems/quickgpt/pkg/relay"
)

func NewEventsCommand() *cobra.Command {
	defaults := eventstream.DefaultSettings()
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail relay messages mirrored to Redis Streams as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			f := cmd.Flags()
			s := eventstream.Settings{Enabled: true}
			s.Addr, _ = f.GetString("redis-addr")
			s.Group, _ = f.GetString("redis-group")
			s.Consumer, _ = f.GetString("redis-consumer")
			s.Topic, _ = f.GetString("mirror-topic")

			transport, err := eventstream.Build(ctx, s)
			if err != nil {
				return errors.Wrap(err, "connect to redis")
			}
			defer func() { _ = transport.Close() }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return eventstream.Tail(ctx, transport.Subscriber, transport.Topic, func(msg relay.Message, md message.Metadata) error {
				if err := enc.Encode(msg); err != nil {
					return errors.Wrap(err, "write message")
				}
				if status := md.Get(eventstream.MetadataStatus); status != "" && msg.Type.Terminal() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# %s %s\n", md.Get(eventstream.MetadataRequestID), status)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("redis-addr", defaults.Addr, "Redis address host:port")
	cmd.Flags().String("redis-group", "quickgpt-events", "Redis consumer group")
	cmd.Flags().String("redis-consumer", "events-1", "Redis consumer name")
	cmd.Flags().String("mirror-topic", defaults.Topic, "Mirrored topic")
	return cmd
}
