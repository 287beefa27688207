package ui

import (
	"strings"
	"testing"
)

func TestRenderPreservesText(t *testing.T) {
	for _, fn := range []func(string) string{RenderPass, RenderWarn, RenderFail, RenderAccent, RenderSubtle} {
		if got := fn("hello"); !strings.Contains(got, "hello") {
			t.Errorf("rendered output %q lost its text", got)
		}
	}
}

func TestStatusGlyph(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"completed", "✓"},
		{"success", "✓"},
		{"completed_with_errors", "⚠"},
		{"paused", "⚠"},
		{"skipped", "⚠"},
		{"failed", "✗"},
		{"running", "→"},
		{"pending", "·"},
		{"unknown", "·"},
	}
	for _, tt := range tests {
		if got := StatusGlyph(tt.status); !strings.Contains(got, tt.want) {
			t.Errorf("StatusGlyph(%q) = %q, want it to contain %q", tt.status, got, tt.want)
		}
	}
}
