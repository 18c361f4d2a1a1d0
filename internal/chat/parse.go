package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// stripFences removes a ```json ... ``` wrapper. Text without an opening
// fence is returned trimmed.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}
	end := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.Join(lines[1:end], "\n")
}

// extractJSON returns the outermost JSON object or array in text, starting
// at whichever opening delimiter comes first.
func extractJSON(text string) (string, error) {
	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')
	if obj < 0 && arr < 0 {
		return "", errors.New("no JSON content found")
	}

	start, closing := obj, byte('}')
	if obj < 0 || (arr >= 0 && arr < obj) {
		start, closing = arr, ']'
	}
	text = text[start:]
	end := strings.LastIndexByte(text, closing)
	if end < 0 {
		return "", fmt.Errorf("no closing %c found", closing)
	}
	return text[:end+1], nil
}

// parseJSON decodes a model reply into T, tolerating markdown fences and
// surrounding prose.
func parseJSON[T any](raw string) (T, error) {
	var out T
	body, err := extractJSON(stripFences(raw))
	if err != nil {
		return out, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		preview := body
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return out, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return out, nil
}
