package imagegen

import (
	"strings"
	"testing"
)

func TestComposePrompt(t *testing.T) {
	got := ComposePrompt(PromptContext{
		Journal:      "A lighthouse keeper writes about the storm.",
		StylePreset:  "Watercolor",
		AspectHint:   "16:9 cinematic frame",
		NegativeHint: "people",
	})

	checks := []string{
		"based on this writing: A lighthouse keeper writes about the storm.",
		"Style: Watercolor.",
		"Frame: 16:9 cinematic frame.",
		"Avoid: people.",
		"High-fidelity",
	}
	for _, expect := range checks {
		if !strings.Contains(got, expect) {
			t.Fatalf("prompt missing %q: %s", expect, got)
		}
	}
}

func TestComposePromptDefaultsAndOmissions(t *testing.T) {
	got := ComposePrompt(PromptContext{Journal: "   "})
	if strings.Contains(got, "based on this writing") {
		t.Fatalf("blank journal should not produce a writing line: %s", got)
	}
	if strings.Contains(got, "Avoid:") || strings.Contains(got, "Frame:") {
		t.Fatalf("empty hints should be omitted: %s", got)
	}
	if !strings.Contains(got, "Style: "+DefaultStylePreset+".") {
		t.Fatalf("default style missing: %s", got)
	}
}

func TestComposePromptKeepsJournalTail(t *testing.T) {
	journal := strings.Repeat("a", 100) + strings.Repeat("é", JournalWindow)
	got := ComposePrompt(PromptContext{Journal: journal})
	if strings.Contains(got, "writing: a") {
		t.Fatalf("journal head should be cut: %q", got[:80])
	}
	if !strings.Contains(got, "writing: "+strings.Repeat("é", JournalWindow)+"\n") {
		t.Fatalf("journal tail not kept intact")
	}
}

func TestNormalizeAspect(t *testing.T) {
	tests := map[string]string{
		"16:9 cinematic frame": "16:9",
		"portrait 9:16":        "9:16",
		"1:1":                  "1:1",
		"4:3 classic":          "4:3",
		"3:4":                  "3:4",
		"21:9 ultra wide":      "",
		"square":               "",
		"":                     "",
	}
	for input, want := range tests {
		if got := NormalizeAspect(input); got != want {
			t.Errorf("NormalizeAspect(%q) = %q, want %q", input, got, want)
		}
	}
}
