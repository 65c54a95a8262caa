package responses

import "strings"

// ExtractResponseText flattens a Responses API response object into plain text.
//
// Precedence:
//   - a top-level "output_text" string
//   - a top-level "output_text" array of strings, joined
//   - the "output" items of type "message", concatenating their "output_text" parts
//
// Any other shape yields "". The function never panics on malformed input.
func ExtractResponseText(response any) string {
	obj, ok := response.(map[string]any)
	if !ok || obj == nil {
		return ""
	}
	switch v := obj["output_text"].(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, part := range v {
			if s, ok := part.(string); ok {
				sb.WriteString(s)
			}
		}
		return sb.String()
	}
	items, ok := obj["output"].([]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok || item == nil {
			continue
		}
		if t, _ := item["type"].(string); t != "message" {
			continue
		}
		sb.WriteString(extractContentText(item["content"]))
	}
	return sb.String()
}

// extractItemText returns the text carried by a single output item, as seen in
// response.output_item.added / response.output_item.done payloads.
func extractItemText(item any) string {
	obj, ok := item.(map[string]any)
	if !ok || obj == nil {
		return ""
	}
	if content, ok := obj["content"].([]any); ok {
		return extractContentText(content)
	}
	if s, ok := obj["text"].(string); ok {
		return s
	}
	return ""
}

func extractContentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, raw := range v {
			switch part := raw.(type) {
			case string:
				sb.WriteString(part)
			case map[string]any:
				if t, _ := part["type"].(string); t != "output_text" {
					continue
				}
				if s, ok := part["text"].(string); ok {
					sb.WriteString(s)
				}
			}
		}
		return sb.String()
	}
	return ""
}
