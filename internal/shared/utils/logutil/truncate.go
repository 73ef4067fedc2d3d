package logutil

import "unicode/utf8"

// TruncateForLog keeps at most maxLen bytes of s, cut on a rune boundary,
// followed by "..." when anything was dropped. Signed payloads and purchase
// tokens go through this before being logged.
func TruncateForLog(s string, maxLen int) string {
	if maxLen <= 0 {
		return "..."
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
