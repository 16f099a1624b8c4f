// Package extract recovers JSON payloads from free-form model output.
//
// Models routinely wrap the JSON they were asked for in prose or markdown
// fences. Object and Array scan for the first balanced top-level block of
// the requested kind, ignoring brackets inside string literals, and parse
// only that span. Malformed output never produces an error: callers get a
// nil map or an empty slice and proceed with defaults.
package extract

import (
	"encoding/json"
)

// Object returns the first top-level JSON object in text, or nil when no
// parseable object is present.
func Object(text string) map[string]any {
	block, ok := firstBlock(text, '{', '}')
	if !ok {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return nil
	}
	return out
}

// Array returns the string elements of the first top-level JSON array in
// text. Non-string elements are dropped; an absent or invalid array yields
// an empty slice.
func Array(text string) []string {
	block, ok := firstBlock(text, '[', ']')
	if !ok {
		return []string{}
	}
	var out any
	if err := json.Unmarshal([]byte(block), &out); err != nil {
		return []string{}
	}
	return Strings(out)
}

// firstBlock returns the first balanced open...close span, tracking depth
// and skipping over quoted strings with backslash escapes.
func firstBlock(text string, open, closing byte) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
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
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case closing:
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}
