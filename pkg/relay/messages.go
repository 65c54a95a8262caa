package relay

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type MessageType string

// Inbound message types.
const (
	TypeSubscribe MessageType = "subscribe"
	TypeCancel    MessageType = "cancel"
)

// Outbound message types.
const (
	TypeStreamStart    MessageType = "stream-start"
	TypeStreamDelta    MessageType = "stream-delta"
	TypeStreamComplete MessageType = "stream-complete"
	TypeStreamError    MessageType = "stream-error"
	TypeStreamAbort    MessageType = "stream-abort"
)

// LatestRequestID is the symbolic id resolved to the most recently created request.
const LatestRequestID = "latest"

// Terminal reports whether t closes a request's event sequence.
func (t MessageType) Terminal() bool {
	switch t {
	case TypeStreamComplete, TypeStreamError, TypeStreamAbort:
		return true
	default:
		return false
	}
}

// Message is an outbound event. Which fields are meaningful depends on Type.
type Message struct {
	Type       MessageType
	RequestID  string
	PromptName string
	Query      string
	Delta      string
	Replay     bool
	Replace    bool
	FullText   string
	Error      string
	Reason     string
}

func StartMessage(id, promptName, query string) Message {
	return Message{Type: TypeStreamStart, RequestID: id, PromptName: promptName, Query: query}
}

func DeltaMessage(id, delta string, replay bool) Message {
	return Message{Type: TypeStreamDelta, RequestID: id, Delta: delta, Replay: replay}
}

// ReplaceMessage is a live delta whose text supersedes everything received so far.
func ReplaceMessage(id, text string) Message {
	return Message{Type: TypeStreamDelta, RequestID: id, Delta: text, Replace: true}
}

func CompleteMessage(id, fullText string) Message {
	return Message{Type: TypeStreamComplete, RequestID: id, FullText: fullText}
}

func ErrorMessage(id, errMsg string) Message {
	return Message{Type: TypeStreamError, RequestID: id, Error: errMsg}
}

func AbortMessage(id, reason string) Message {
	return Message{Type: TypeStreamAbort, RequestID: id, Reason: reason}
}

// MarshalJSON emits exactly the fields of each outbound shape.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"type":      m.Type,
		"requestId": m.RequestID,
	}
	switch m.Type {
	case TypeStreamStart:
		out["promptName"] = m.PromptName
		out["query"] = m.Query
	case TypeStreamDelta:
		out["delta"] = m.Delta
		if m.Replay {
			out["replay"] = true
		}
		if m.Replace {
			out["replace"] = true
		}
	case TypeStreamComplete:
		out["fullText"] = m.FullText
	case TypeStreamError:
		out["error"] = m.Error
	case TypeStreamAbort:
		out["reason"] = m.Reason
	default:
		return nil, errors.Errorf("unknown outbound message type %q", m.Type)
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type       MessageType `json:"type"`
		RequestID  string      `json:"requestId"`
		PromptName string      `json:"promptName"`
		Query      string      `json:"query"`
		Delta      string      `json:"delta"`
		Replay     bool        `json:"replay"`
		Replace    bool        `json:"replace"`
		FullText   string      `json:"fullText"`
		Error      string      `json:"error"`
		Reason     string      `json:"reason"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Message(raw)
	return nil
}

// Inbound is a message received from an observer channel.
type Inbound struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId"`
}
