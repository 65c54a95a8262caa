// Package eventstream mirrors relay messages onto a watermill topic, backed by
// Redis Streams or an in-memory channel.
package eventstream

import (
	"context"
	"strings"

	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Transport pairs a publisher and a subscriber on the same backend.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Topic      string

	closers []func() error
}

func (t *Transport) Close() error {
	if t == nil {
		return nil
	}
	var first error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	t.closers = nil
	return first
}

// Build constructs the transport selected by s.
func Build(ctx context.Context, s Settings) (*Transport, error) {
	if !s.Enabled {
		return BuildInMemory(s.topic()), nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	if err := EnsureGroupAtTail(ctx, client, s.topic(), s.Group); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ensure redis consumer group")
	}
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis subscriber")
	}

	log.Info().Str("component", "eventstream").Str("addr", s.Addr).Str("topic", s.topic()).Msg("mirroring to redis streams")
	return &Transport{
		Publisher:  pub,
		Subscriber: sub,
		Topic:      s.topic(),
		closers:    []func() error{client.Close, pub.Close, sub.Close},
	}, nil
}

// BuildInMemory returns a process-local transport.
func BuildInMemory(topic string) *Transport {
	if topic == "" {
		topic = DefaultTopic
	}
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, NewWatermillLogger(log.Logger))
	return &Transport{
		Publisher:  ch,
		Subscriber: ch,
		Topic:      topic,
		closers:    []func() error{ch.Close},
	}
}

// EnsureGroupAtTail creates the consumer group for stream at the tail ($) if it
// does not exist yet, so a fresh group does not replay history.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("component", "eventstream").Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
