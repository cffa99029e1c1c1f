package ui

import (
	"strings"
	"testing"
)

func TestRenderMarkdownWithError_ZeroWidth_DoesNotError(t *testing.T) {
	_, err := RenderMarkdownWithError("# title", 0)
	if err != nil {
		t.Fatalf("RenderMarkdownWithError must not fail for zero width: %v", err)
	}
}

func TestRenderMarkdownKeepsText(t *testing.T) {
	t.Setenv("GEMCHAT_DARK", "1")
	out := RenderMarkdown("some **bold** words", 40)
	if !strings.Contains(out, "bold") || !strings.Contains(out, "words") {
		t.Fatalf("rendered output lost text: %q", out)
	}
	if strings.Contains(out, "**") {
		t.Fatalf("emphasis markers should be rendered: %q", out)
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	if got := RenderMarkdown("", 40); got != "" {
		t.Fatalf("RenderMarkdown(\"\")=%q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"a longer status line", 10, "a longe..."},
		{"abcdef", 2, "ab"},
		{"日本語のテキスト", 7, "日本..."},
	}
	for _, tc := range tests {
		if got := Truncate(tc.in, tc.width); got != tc.want {
			t.Fatalf("Truncate(%q, %d)=%q, want %q", tc.in, tc.width, got, tc.want)
		}
	}
}
