package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcher_FullQueueKeepsTerminalMessages(t *testing.T) {
	unblock := make(chan struct{})
	obs := &recordingObserver{}
	gated := ObserverFunc(func(ctx context.Context, req Request, msg Message) {
		<-unblock
		obs.Observe(ctx, req, msg)
	})
	d := newDispatcher(context.Background(), []Observer{gated}, 1)
	req := Request{ID: "r"}

	// the worker holds the first message, the second fills the queue
	d.enqueue(req, DeltaMessage("r", "a", false))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.enqueue(req, DeltaMessage("r", "b", false))
	d.enqueue(req, DeltaMessage("r", "dropped", false))

	sent := make(chan struct{})
	go func() {
		d.enqueue(req, CompleteMessage("r", "ab"))
		close(sent)
	}()
	select {
	case <-sent:
		t.Fatal("terminal message did not wait for room")
	case <-time.After(20 * time.Millisecond):
	}

	close(unblock)
	<-sent
	d.close()
	require.Equal(t, []Message{
		DeltaMessage("r", "a", false),
		DeltaMessage("r", "b", false),
		CompleteMessage("r", "ab"),
	}, obs.Messages())

	d.enqueue(req, DeltaMessage("r", "after close", false))
	require.Len(t, obs.Messages(), 3)
}

func TestDispatcher_NoObservers(t *testing.T) {
	d := newDispatcher(context.Background(), nil, 1)
	d.enqueue(Request{ID: "r"}, DeltaMessage("r", "a", false))
	d.enqueue(Request{ID: "r"}, DeltaMessage("r", "b", false))
	d.close()
	d.close()
}
