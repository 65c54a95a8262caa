package archive

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

// Observer records every request when it reaches a terminal status.
type Observer struct {
	archive Archive
}

var _ relay.Observer = &Observer{}

func NewObserver(a Archive) *Observer {
	return &Observer{archive: a}
}

func (o *Observer) Observe(ctx context.Context, req relay.Request, msg relay.Message) {
	if o == nil || o.archive == nil || !msg.Type.Terminal() {
		return
	}
	if err := o.archive.Record(ctx, FromRequest(req)); err != nil {
		log.Warn().Err(err).Str("component", "archive").Str("request_id", req.ID).Msg("record request outcome")
	}
}
