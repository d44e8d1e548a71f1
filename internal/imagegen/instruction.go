package imagegen

import (
	"regexp"
	"strings"
)

const (
	// DefaultStylePreset is used when the context names no style.
	DefaultStylePreset = "Photorealistic"
	// JournalWindow is how many trailing characters of the journal feed the prompt.
	JournalWindow = 600
)

// PromptContext is the editable generation context the prompt is built from.
type PromptContext struct {
	Journal      string
	StylePreset  string
	AspectHint   string
	NegativeHint string
}

var aspectPattern = regexp.MustCompile(`(1:1|3:4|4:3|9:16|16:9)`)

// ComposePrompt renders the text prompt sent to the providers.
func ComposePrompt(pc PromptContext) string {
	lines := []string{}
	if recent := tail(pc.Journal, JournalWindow); strings.TrimSpace(recent) != "" {
		lines = append(lines, "Describe and render a single coherent image based on this writing: "+recent)
	}
	style := strings.TrimSpace(pc.StylePreset)
	if style == "" {
		style = DefaultStylePreset
	}
	lines = append(lines, "Style: "+style+". Camera: 85mm portrait, golden hour lighting.")
	if aspect := strings.TrimSpace(pc.AspectHint); aspect != "" {
		lines = append(lines, "Frame: "+aspect+".")
	}
	if negative := strings.TrimSpace(pc.NegativeHint); negative != "" {
		lines = append(lines, "Avoid: "+negative+".")
	}
	lines = append(lines, "High-fidelity, realistic textures, consistent composition. No embedded text unless explicitly asked.")
	return strings.Join(lines, "\n")
}

// NormalizeAspect extracts a supported ratio token from a free-form hint such
// as "16:9 cinematic frame". It returns "" when none is present.
func NormalizeAspect(hint string) string {
	return aspectPattern.FindString(hint)
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
