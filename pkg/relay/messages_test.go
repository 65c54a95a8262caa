package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessage_MarshalJSONShapes(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{"start", StartMessage("r", "Explain", "q"), `{"type":"stream-start","requestId":"r","promptName":"Explain","query":"q"}`},
		{"delta", DeltaMessage("r", "abc", false), `{"type":"stream-delta","requestId":"r","delta":"abc"}`},
		{"replay delta", DeltaMessage("r", "abc", true), `{"type":"stream-delta","requestId":"r","delta":"abc","replay":true}`},
		{"replace delta", ReplaceMessage("r", "all"), `{"type":"stream-delta","requestId":"r","delta":"all","replace":true}`},
		{"complete", CompleteMessage("r", "done"), `{"type":"stream-complete","requestId":"r","fullText":"done"}`},
		{"error", ErrorMessage("r", "boom"), `{"type":"stream-error","requestId":"r","error":"boom"}`},
		{"abort", AbortMessage("r", ReasonByUser), `{"type":"stream-abort","requestId":"r","reason":"Cancelled by user."}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.msg)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(b))
		})
	}
}

func TestMessage_MarshalRejectsUnknownType(t *testing.T) {
	_, err := json.Marshal(Message{Type: "bogus"})
	require.Error(t, err)
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"stream-delta","requestId":"r","delta":"x","replay":true}`), &m))
	require.Equal(t, DeltaMessage("r", "x", true), m)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"stream-delta","requestId":"r","delta":"y","replace":true}`), &m))
	require.Equal(t, ReplaceMessage("r", "y"), m)
}

func TestMessageType_Terminal(t *testing.T) {
	require.False(t, TypeStreamStart.Terminal())
	require.False(t, TypeStreamDelta.Terminal())
	require.True(t, TypeStreamComplete.Terminal())
	require.True(t, TypeStreamError.Terminal())
	require.True(t, TypeStreamAbort.Terminal())
}

func TestParams_Fallbacks(t *testing.T) {
	p := Params{Model: " ", MaxTokens: ""}.withFallback(Params{MaxTokens: "512"})
	require.Equal(t, Params{Model: DefaultModel, MaxTokens: "512", Temperature: DefaultTemperature}, p)

	require.Equal(t, 300, Params{MaxTokens: "lots"}.MaxTokensValue())
	require.Equal(t, 128, Params{MaxTokens: "128.9"}.MaxTokensValue())
	require.Equal(t, 64, Params{MaxTokens: " 64 "}.MaxTokensValue())

	require.InDelta(t, 0.7, Params{Temperature: "NaN"}.TemperatureValue(), 1e-9)
	require.InDelta(t, 0.7, Params{Temperature: "+Inf"}.TemperatureValue(), 1e-9)
	require.InDelta(t, 0.2, Params{Temperature: "0.2"}.TemperatureValue(), 1e-9)
}

func TestStatus_Terminal(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusStreaming.Terminal())
	require.True(t, StatusComplete.Terminal())
	require.True(t, StatusError.Terminal())
	require.True(t, StatusAborted.Terminal())
}

func TestRequest_UserContent(t *testing.T) {
	require.Equal(t, "Explain:\n\nquery", Request{Prompt: "Explain:", Query: "query"}.UserContent())
}
