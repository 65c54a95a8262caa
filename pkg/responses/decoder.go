package responses

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrMalformedResponse is returned for a buffered body that is not a JSON object.
var ErrMalformedResponse = errors.New("malformed response from the model")

const (
	dataPrefix     = "data:"
	doneSentinel   = "[DONE]"
	unknownReason  = "unknown"
	genericFailure = "Request failed."
)

// Payload types emitted by the Responses API stream.
const (
	TypeCompleted       = "response.completed"
	TypeIncomplete      = "response.incomplete"
	TypeError           = "error"
	TypeOutputTextDelta = "response.output_text.delta"
	TypeTextDelta       = "response.text.delta"
	TypeOutputTextDone  = "response.output_text.done"
	TypeItemAdded       = "response.output_item.added"
	TypeItemDone        = "response.output_item.done"
)

type EventKind int

const (
	// EventDelta appends Text to the accumulated response.
	EventDelta EventKind = iota
	// EventItemDone carries the text of a finished item. It only counts when
	// nothing has been accumulated yet.
	EventItemDone
	// EventFullText replaces the accumulated response with Text.
	EventFullText
	// EventIncomplete reports an incomplete response with no salvageable text.
	EventIncomplete
	// EventAPIError reports an explicit error payload.
	EventAPIError
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventItemDone:
		return "item-done"
	case EventFullText:
		return "full-text"
	case EventIncomplete:
		return "incomplete"
	case EventAPIError:
		return "api-error"
	default:
		return "unknown"
	}
}

// Event is a decoded stream event. Text is set for delta, item-done and full-text,
// Reason for incomplete and Message for api-error.
type Event struct {
	Kind    EventKind
	Text    string
	Reason  string
	Message string
}

// Decoder turns server-sent-event chunks into Events. It keeps the trailing
// partial line across Feed calls and stops for good after the [DONE] sentinel.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf  []byte
	done bool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the stream terminator has been seen.
func (d *Decoder) Done() bool {
	return d != nil && d.done
}

// Feed consumes one chunk and returns the events decoded from the complete lines
// it closes. After the terminator, remaining input is discarded.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d == nil || d.done || len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var out []Event
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		line = bytes.TrimSuffix(line, []byte{'\r'})

		ev, ok, done := d.decodeLine(line)
		if done {
			d.done = true
			d.buf = nil
			return out
		}
		if ok {
			out = append(out, ev)
		}
	}
	// keep the partial line in a fresh slice so the consumed prefix can be collected
	if len(d.buf) == 0 {
		d.buf = nil
	} else {
		d.buf = append([]byte(nil), d.buf...)
	}
	return out
}

func (d *Decoder) decodeLine(line []byte) (Event, bool, bool) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" || !strings.HasPrefix(trimmed, dataPrefix) {
		return Event{}, false, false
	}
	data := strings.TrimSpace(trimmed[len(dataPrefix):])
	if data == doneSentinel {
		return Event{}, false, true
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		log.Debug().Err(err).Str("component", "responses").Msg("skipping malformed stream payload")
		return Event{}, false, false
	}
	ev, ok := ClassifyPayload(payload)
	return ev, ok, false
}

// ClassifyPayload maps one decoded stream payload to an Event. The boolean is
// false for payloads that carry nothing to apply.
func ClassifyPayload(payload map[string]any) (Event, bool) {
	if payload == nil {
		return Event{}, false
	}
	typ, _ := payload["type"].(string)
	switch typ {
	case TypeCompleted:
		if text := strings.TrimSpace(ExtractResponseText(payload["response"])); text != "" {
			return Event{Kind: EventFullText, Text: text}, true
		}
		return Event{}, false
	case TypeIncomplete:
		if text := strings.TrimSpace(ExtractResponseText(payload["response"])); text != "" {
			return Event{Kind: EventFullText, Text: text}, true
		}
		return Event{Kind: EventIncomplete, Reason: incompleteReason(payload["response"])}, true
	case TypeError:
		return Event{Kind: EventAPIError, Message: errorMessage(payload["error"])}, true
	case TypeOutputTextDelta, TypeTextDelta:
		if s, ok := payload["delta"].(string); ok && s != "" {
			return Event{Kind: EventDelta, Text: s}, true
		}
		return Event{}, false
	case TypeOutputTextDone:
		if s, ok := payload["text"].(string); ok && s != "" {
			return Event{Kind: EventDelta, Text: s}, true
		}
		return Event{}, false
	case TypeItemAdded:
		if s := extractItemText(payload["item"]); s != "" {
			return Event{Kind: EventDelta, Text: s}, true
		}
		return Event{}, false
	case TypeItemDone:
		if s := extractItemText(payload["item"]); s != "" {
			return Event{Kind: EventItemDone, Text: s}, true
		}
		return Event{}, false
	}
	return Event{}, false
}

// DecodeDocument decodes a buffered (non-streaming) response body. A body that
// is not a JSON object fails with ErrMalformedResponse.
func DecodeDocument(body []byte) ([]Event, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		log.Debug().Err(err).Str("component", "responses").Int("bytes", len(body)).Msg("undecodable response body")
		return nil, ErrMalformedResponse
	}
	if doc == nil {
		return nil, ErrMalformedResponse
	}
	if errObj, ok := doc["error"].(map[string]any); ok && errObj != nil {
		return []Event{{Kind: EventAPIError, Message: errorMessage(errObj)}}, nil
	}
	if text := strings.TrimSpace(ExtractResponseText(doc)); text != "" {
		return []Event{{Kind: EventFullText, Text: text}}, nil
	}
	if status, _ := doc["status"].(string); status == "incomplete" {
		return []Event{{Kind: EventIncomplete, Reason: incompleteReason(doc)}}, nil
	}
	return nil, nil
}

func incompleteReason(response any) string {
	obj, ok := response.(map[string]any)
	if !ok {
		return unknownReason
	}
	details, ok := obj["incomplete_details"].(map[string]any)
	if !ok {
		return unknownReason
	}
	if reason, ok := details["reason"].(string); ok && reason != "" {
		return reason
	}
	return unknownReason
}

func errorMessage(errObj any) string {
	obj, ok := errObj.(map[string]any)
	if !ok {
		return genericFailure
	}
	if msg, ok := obj["message"].(string); ok && msg != "" {
		return msg
	}
	return genericFailure
}
