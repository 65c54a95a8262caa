package server

import (
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

// Hub runs the read side of websocket subscriber connections.
type Hub struct {
	ctrl      *relay.Controller
	queueSize int
}

func NewHub(ctrl *relay.Controller, queueSize int) *Hub {
	return &Hub{ctrl: ctrl, queueSize: queueSize}
}

// Serve reads inbound messages from conn until it fails, then detaches the
// channel from the relay. It blocks for the lifetime of the connection.
func (h *Hub) Serve(conn *websocket.Conn) {
	ch := NewWSChannel(conn, h.queueSize)
	defer ch.Close()
	defer h.ctrl.Detach(ch)

	ch.logger.Info().Msg("ws connected")
	defer ch.logger.Info().Msg("ws disconnected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			ch.logger.Debug().Err(err).Msg("ws read loop end")
			return
		}
		if msgType != websocket.TextMessage || len(data) == 0 {
			continue
		}
		h.dispatch(ch, data)
	}
}

func (h *Hub) dispatch(ch *WSChannel, data []byte) {
	if strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
		_ = ch.sendJSON(map[string]string{"type": "pong"})
		return
	}
	var in relay.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		ch.logger.Debug().Err(err).Msg("ignoring malformed inbound message")
		return
	}
	switch in.Type {
	case relay.TypeSubscribe:
		if err := h.ctrl.Subscribe(strings.TrimSpace(in.RequestID), ch); err != nil {
			ch.logger.Debug().Err(err).Str("request_id", in.RequestID).Msg("subscribe failed")
		}
	case relay.TypeCancel:
		target := strings.TrimSpace(in.RequestID)
		if target == "" {
			// no id cancels whatever this connection is attached to
			attached, ok := h.ctrl.Registry().AttachedTo(ch)
			if !ok {
				ch.logger.Debug().Msg("cancel without request id on a detached connection")
				return
			}
			target = attached
		}
		id, err := h.ctrl.Resolve(target)
		if err != nil {
			ch.logger.Debug().Err(err).Str("request_id", in.RequestID).Msg("cancel target not found")
			return
		}
		if !h.ctrl.Cancel(id, relay.ReasonByUser) {
			ch.logger.Debug().Str("request_id", id).Msg("cancel ignored")
		}
	case "ping":
		_ = ch.sendJSON(map[string]string{"type": "pong"})
	default:
		ch.logger.Debug().Str("type", string(in.Type)).Msg("ignoring unknown inbound message")
	}
}
