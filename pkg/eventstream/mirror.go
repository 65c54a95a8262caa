package eventstream

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

// Metadata keys set on every mirrored message.
const (
	MetadataRequestID = "request_id"
	MetadataType      = "type"
	MetadataStatus    = "status"
	MetadataParentID  = "parent_id"
)

// Mirror republishes every live relay message as JSON.
type Mirror struct {
	pub   message.Publisher
	topic string
}

var _ relay.Observer = &Mirror{}

func NewMirror(pub message.Publisher, topic string) *Mirror {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Mirror{pub: pub, topic: topic}
}

func (m *Mirror) Observe(ctx context.Context, req relay.Request, msg relay.Message) {
	if m == nil || m.pub == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("component", "eventstream").Str("request_id", req.ID).Msg("marshal mirrored message")
		return
	}
	wm := message.NewMessage(watermill.NewUUID(), payload)
	wm.Metadata.Set(MetadataRequestID, req.ID)
	wm.Metadata.Set(MetadataType, string(msg.Type))
	wm.Metadata.Set(MetadataStatus, string(req.Status))
	if req.ParentID != "" {
		wm.Metadata.Set(MetadataParentID, req.ParentID)
	}
	wm.SetContext(ctx)

	if err := m.pub.Publish(m.topic, wm); err != nil {
		log.Warn().Err(err).
			Str("component", "eventstream").
			Str("request_id", req.ID).
			Str("topic", m.topic).
			Msg("publish mirrored message")
	}
}

// Tail consumes topic from sub and hands each decoded message to fn until ctx
// is done or fn fails. Messages that do not decode are acked and skipped.
func Tail(ctx context.Context, sub message.Subscriber, topic string, fn func(relay.Message, message.Metadata) error) error {
	if sub == nil {
		return errors.New("subscriber is nil")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	ch, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", topic)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case wm, ok := <-ch:
			if !ok {
				return nil
			}
			var msg relay.Message
			if err := json.Unmarshal(wm.Payload, &msg); err != nil {
				log.Debug().Err(err).Str("component", "eventstream").Str("uuid", wm.UUID).Msg("skipping undecodable message")
				wm.Ack()
				continue
			}
			if err := fn(msg, wm.Metadata); err != nil {
				wm.Nack()
				return err
			}
			wm.Ack()
		}
	}
}
