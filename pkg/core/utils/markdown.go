package utils

import (
	"strings"
)

// StripCodeFence removes one fenced block wrapped around a whole document
// (```markdown ... ```), which HTML-to-Markdown converters and exports often
// add. Anything else is returned trimmed but unchanged.
func StripCodeFence(doc string) string {
	cleaned := strings.TrimSpace(doc)
	if !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") || len(cleaned) <= 6 {
		return cleaned
	}

	body := strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	// Drop the info string ("markdown", "md", ...) on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		info := strings.TrimSpace(body[:nl])
		if !strings.ContainsAny(info, " |") {
			body = body[nl+1:]
		}
	}
	if strings.Contains(body, "```") {
		// Several fenced blocks, not one wrapper.
		return cleaned
	}
	return strings.TrimSpace(body)
}
