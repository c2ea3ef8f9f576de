package llm

import "strings"

// ExtractJSON pulls a JSON object out of an LLM response. Models wrap JSON
// in markdown fences or prose; this strips fences and returns the first
// balanced top-level object. Returns "" when no object is found — callers
// treat that as a parse failure and take their named fallback.
func ExtractJSON(content string) string {
	content = stripFences(content)
	return firstBalanced(content, '{', '}')
}

// ExtractJSONArray is ExtractJSON for top-level arrays.
func ExtractJSONArray(content string) string {
	content = stripFences(content)
	return firstBalanced(content, '[', ']')
}

// stripFences removes a ```json ... ``` (or bare ```) wrapper if present.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end]
	}
	return rest
}

// firstBalanced scans for the first balanced open..close span, tracking
// string literals and escapes so braces inside values don't miscount.
func firstBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == open:
			depth++
		case !inString && ch == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
