package responses

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoder_ReassemblesLinesAcrossChunks(t *testing.T) {
	d := NewDecoder()

	evs := d.Feed([]byte(`data: {"type":"response.output_text.delta","del`))
	require.Empty(t, evs)

	evs = d.Feed([]byte("ta\":\"Hel\"}\n\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\"lo\"}\r\n"))
	require.Equal(t, []Event{
		{Kind: EventDelta, Text: "Hel"},
		{Kind: EventDelta, Text: "lo"},
	}, evs)
	require.False(t, d.Done())
}

func TestDecoder_IgnoresCommentsBlankAndNonDataLines(t *testing.T) {
	d := NewDecoder()
	evs := d.Feed([]byte(": keepalive\n\nevent: response.output_text.delta\nid: 7\n   \n"))
	require.Empty(t, evs)
}

func TestDecoder_SkipsMalformedPayloads(t *testing.T) {
	d := NewDecoder()
	evs := d.Feed([]byte("data: {not json\ndata: {\"type\":\"response.text.delta\",\"delta\":\"ok\"}\n"))
	require.Equal(t, []Event{{Kind: EventDelta, Text: "ok"}}, evs)
}

func TestDecoder_TerminatorDiscardsRemainder(t *testing.T) {
	d := NewDecoder()
	evs := d.Feed([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"a\"}\ndata: [DONE]\ndata: {\"type\":\"response.output_text.delta\",\"delta\":\"b\"}\n"))
	require.Equal(t, []Event{{Kind: EventDelta, Text: "a"}}, evs)
	require.True(t, d.Done())

	require.Empty(t, d.Feed([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"c\"}\n")))
}

func TestDecoder_PartialTrailingLineIsNeverParsed(t *testing.T) {
	d := NewDecoder()
	evs := d.Feed([]byte(`data: {"type":"response.output_text.delta","delta":"x"}`))
	require.Empty(t, evs)
}

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    Event
		ok      bool
	}{
		{
			name: "completed replaces with trimmed text",
			payload: map[string]any{
				"type":     TypeCompleted,
				"response": map[string]any{"output_text": "  Hello world \n"},
			},
			want: Event{Kind: EventFullText, Text: "Hello world"},
			ok:   true,
		},
		{
			name:    "completed without text is ignored",
			payload: map[string]any{"type": TypeCompleted, "response": map[string]any{}},
			ok:      false,
		},
		{
			name: "incomplete with salvageable text",
			payload: map[string]any{
				"type":     TypeIncomplete,
				"response": map[string]any{"output_text": []any{"par", "tial"}},
			},
			want: Event{Kind: EventFullText, Text: "partial"},
			ok:   true,
		},
		{
			name: "incomplete without text names the reason",
			payload: map[string]any{
				"type": TypeIncomplete,
				"response": map[string]any{
					"incomplete_details": map[string]any{"reason": "max_output_tokens"},
				},
			},
			want: Event{Kind: EventIncomplete, Reason: "max_output_tokens"},
			ok:   true,
		},
		{
			name:    "incomplete without reason defaults to unknown",
			payload: map[string]any{"type": TypeIncomplete},
			want:    Event{Kind: EventIncomplete, Reason: "unknown"},
			ok:      true,
		},
		{
			name:    "error with message",
			payload: map[string]any{"type": TypeError, "error": map[string]any{"message": "rate limited"}},
			want:    Event{Kind: EventAPIError, Message: "rate limited"},
			ok:      true,
		},
		{
			name:    "error without message",
			payload: map[string]any{"type": TypeError},
			want:    Event{Kind: EventAPIError, Message: "Request failed."},
			ok:      true,
		},
		{
			name:    "output text done appends like a delta",
			payload: map[string]any{"type": TypeOutputTextDone, "text": "Hello"},
			want:    Event{Kind: EventDelta, Text: "Hello"},
			ok:      true,
		},
		{
			name: "item added with content parts",
			payload: map[string]any{
				"type": TypeItemAdded,
				"item": map[string]any{
					"type":    "message",
					"content": []any{map[string]any{"type": "output_text", "text": "Hi"}},
				},
			},
			want: Event{Kind: EventDelta, Text: "Hi"},
			ok:   true,
		},
		{
			name: "item done with plain text",
			payload: map[string]any{
				"type": TypeItemDone,
				"item": map[string]any{"type": "reasoning", "text": "thought"},
			},
			want: Event{Kind: EventItemDone, Text: "thought"},
			ok:   true,
		},
		{
			name:    "unknown type",
			payload: map[string]any{"type": "response.created"},
			ok:      false,
		},
		{
			name:    "missing type",
			payload: map[string]any{"delta": "x"},
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyPayload(tt.payload)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDecodeDocument(t *testing.T) {
	evs, err := DecodeDocument([]byte(`{"status":"completed","output":[{"type":"message","content":[{"type":"output_text","text":"Hi there"}]}]}`))
	require.NoError(t, err)
	require.Equal(t, []Event{{Kind: EventFullText, Text: "Hi there"}}, evs)

	evs, err = DecodeDocument([]byte(`{"status":"incomplete","incomplete_details":{"reason":"max_output_tokens"},"output":[]}`))
	require.NoError(t, err)
	require.Equal(t, []Event{{Kind: EventIncomplete, Reason: "max_output_tokens"}}, evs)

	evs, err = DecodeDocument([]byte(`{"error":{"message":"bad model"}}`))
	require.NoError(t, err)
	require.Equal(t, []Event{{Kind: EventAPIError, Message: "bad model"}}, evs)

	evs, err = DecodeDocument([]byte(`{"status":"completed","output":[]}`))
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestDecodeDocument_Malformed(t *testing.T) {
	for _, body := range []string{`[]`, `garbage`, `null`, ``} {
		evs, err := DecodeDocument([]byte(body))
		require.Empty(t, evs, body)
		require.ErrorIs(t, err, ErrMalformedResponse, body)
	}
}
