package toon

import (
	"regexp"
	"strings"
)

var (
	toonFence  = regexp.MustCompile("(?is)```toon\\s*\\n(.*?)\\n```")
	plainFence = regexp.MustCompile("(?s)```\\s*\\n(.*?)\\n```")
)

// ExtractBlock returns the body of the first ```toon fence, else the first
// bare ``` fence, else the trimmed input.
func ExtractBlock(text string) string {
	if m := toonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := plainFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
