package fetch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON recovers a JSON payload from free-form text such as a proxy
// rendering or a browser DOM dump. It strips markdown code fences, locates
// the first balanced bracketed structure, and validates it by parsing.
func ExtractJSON(text string) ([]byte, error) {
	text = stripFences(text)

	for offset := 0; offset < len(text); {
		start := strings.IndexAny(text[offset:], "{[")
		if start < 0 {
			break
		}
		start += offset
		candidate, ok := balancedFrom(text, start)
		if ok && json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
		offset = start + 1
	}
	return nil, fmt.Errorf("no json payload found")
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop an optional language tag on the fence line.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// balancedFrom returns the shortest balanced bracket structure starting at
// start, honoring string literals and escapes.
func balancedFrom(text string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
