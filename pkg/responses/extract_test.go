package responses

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestExtractResponseText_Precedence(t *testing.T) {
	// output_text wins over output items
	v := decodeJSON(t, `{"output_text":"direct","output":[{"type":"message","content":[{"type":"output_text","text":"items"}]}]}`)
	require.Equal(t, "direct", ExtractResponseText(v))

	v = decodeJSON(t, `{"output_text":["a","b",3,"c"]}`)
	require.Equal(t, "abc", ExtractResponseText(v))

	v = decodeJSON(t, `{"output":[
		{"type":"reasoning","content":[{"type":"output_text","text":"skip"}]},
		{"type":"message","content":[{"type":"output_text","text":"Hello "},{"type":"refusal","text":"no"},{"type":"output_text","text":"world"}]},
		{"type":"message","content":[{"type":"output_text","text":"!"}]}
	]}`)
	require.Equal(t, "Hello world!", ExtractResponseText(v))
}

func TestExtractResponseText_IsTotal(t *testing.T) {
	for _, in := range []any{
		nil,
		"string",
		42,
		[]any{"x"},
		map[string]any{},
		map[string]any{"output": "nope"},
		map[string]any{"output": []any{nil, 1, map[string]any{"type": "message", "content": 5}}},
		map[string]any{"output_text": 12},
	} {
		require.NotPanics(t, func() {
			require.Equal(t, "", ExtractResponseText(in))
		})
	}
}
