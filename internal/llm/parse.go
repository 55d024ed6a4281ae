package llm

import (
	"fmt"
	"strings"
)

// ExtractJSON returns the outermost JSON object in a model response. Chatty
// models wrap their answer in prose or markdown code fences; both are
// stripped. An error wrapping ErrSchemaViolation is returned when no object
// is present.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrSchemaViolation)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrSchemaViolation)
	}
	return text[start : end+1], nil
}
