package eventstream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

func TestMirror_PublishesMessageWithMetadata(t *testing.T) {
	tr := BuildInMemory("")
	defer func() { require.NoError(t, tr.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := tr.Subscriber.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	m := NewMirror(tr.Publisher, tr.Topic)
	req := relay.Request{ID: "req-1", ParentID: "req-0", Status: relay.StatusComplete}
	m.Observe(context.Background(), req, relay.CompleteMessage("req-1", "done"))

	select {
	case wm := <-ch:
		require.Equal(t, "req-1", wm.Metadata.Get(MetadataRequestID))
		require.Equal(t, "stream-complete", wm.Metadata.Get(MetadataType))
		require.Equal(t, "complete", wm.Metadata.Get(MetadataStatus))
		require.Equal(t, "req-0", wm.Metadata.Get(MetadataParentID))
		var got map[string]any
		require.NoError(t, json.Unmarshal(wm.Payload, &got))
		require.Equal(t, map[string]any{"type": "stream-complete", "requestId": "req-1", "fullText": "done"}, got)
		wm.Ack()
	case <-ctx.Done():
		t.Fatal("mirrored message not received")
	}
}

func TestTail_DecodesUntilHandlerFails(t *testing.T) {
	tr := BuildInMemory("custom.topic")
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stop := errors.New("stop")
	var got []relay.Message
	done := make(chan error, 1)
	go func() {
		done <- Tail(ctx, tr.Subscriber, "custom.topic", func(msg relay.Message, _ message.Metadata) error {
			got = append(got, msg)
			if msg.Type.Terminal() {
				return stop
			}
			return nil
		})
	}()

	m := NewMirror(tr.Publisher, "custom.topic")
	req := relay.Request{ID: "r", Status: relay.StatusError}
	var result error
	// the subscription is set up asynchronously, so publish until the handler sees one
	require.Eventually(t, func() bool {
		m.Observe(ctx, req, relay.ErrorMessage("r", "boom"))
		select {
		case result = <-done:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)

	require.True(t, errors.Is(result, stop))
	require.NotEmpty(t, got)
	require.Equal(t, relay.ErrorMessage("r", "boom"), got[len(got)-1])
}

func TestTail_RejectsNilSubscriber(t *testing.T) {
	require.Error(t, Tail(context.Background(), nil, "", nil))
}

func TestMirror_NilPublisherIsNoop(t *testing.T) {
	NewMirror(nil, "").Observe(context.Background(), relay.Request{ID: "r"}, relay.StartMessage("r", "", ""))
}
