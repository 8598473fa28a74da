package intent

import (
	"regexp"
	"strings"
)

var thinkingTags = regexp.MustCompile(`(?s)<think(?:ing)?>.*?</think(?:ing)?>`)

// cleanLLMText strips the wrappers models put around JSON: thinking tags and
// Markdown code fences. The remaining text may still carry prose; the scanner
// below handles that.
func cleanLLMText(s string) string {
	s = thinkingTags.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonObjectCandidates scans text for balanced top-level {...} spans. It is a
// byte-level state machine that skips string contents and escapes, so braces
// inside values do not split candidates. Iterating bytes is safe for the
// ASCII delimiters involved: UTF-8 never embeds them in multi-byte sequences.
func jsonObjectCandidates(s string) []string {
	var candidates []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidates = append(candidates, s[start:i+1])
				start = -1
			}
		}
	}
	return candidates
}
