package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseObject decodes the model output into a JSON object.
// Markdown fences are stripped; when the remainder does not decode, the span from the
// first '{' to the last '}' is tried.
func ParseObject(raw string) (map[string]any, error) {
	s := stripFences(strings.TrimSpace(raw))
	if s == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformed)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err == nil && out != nil {
		return out, nil
	}
	start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil || out == nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line (```json)
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
