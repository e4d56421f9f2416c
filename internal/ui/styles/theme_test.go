// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// THEME TESTS
// =============================================================================

func TestNewTheme_ForcedModes(t *testing.T) {
	if theme := NewTheme("light"); theme.IsDark {
		t.Error(`NewTheme("light") should not be dark`)
	}
	if theme := NewTheme("DARK"); !theme.IsDark {
		t.Error(`NewTheme("DARK") should be dark`)
	}
}

func TestGlamourStyle(t *testing.T) {
	if got := NewTheme("dark").GlamourStyle(); got != "dark" {
		t.Errorf("GlamourStyle() = %q, want dark", got)
	}
	if got := NewTheme("light").GlamourStyle(); got != "light" {
		t.Errorf("GlamourStyle() = %q, want light", got)
	}
}

func TestThemeStylesRender(t *testing.T) {
	theme := NewTheme("dark")

	styles := []struct {
		name  string
		style lipgloss.Style
	}{
		{"Header", theme.Header},
		{"UserLabel", theme.UserLabel},
		{"AssistantLabel", theme.AssistantLabel},
		{"ErrorText", theme.ErrorText},
		{"InputContainer", theme.InputContainer},
		{"StatusBar", theme.StatusBar},
		{"HeldMarker", theme.HeldMarker},
	}
	for _, s := range styles {
		if rendered := s.style.Render("test"); !strings.Contains(rendered, "test") {
			t.Errorf("%s style lost its content: %q", s.name, rendered)
		}
	}
}

// =============================================================================
// STATUS MARKER TESTS
// =============================================================================

func TestRenderStatusMarkers(t *testing.T) {
	tests := []struct {
		name   string
		render func(string) string
		marker string
	}{
		{"success", RenderSuccess, StatusIndicators.Success},
		{"error", RenderError, StatusIndicators.Error},
		{"warning", RenderWarning, StatusIndicators.Warning},
		{"info", RenderInfo, StatusIndicators.Info},
		{"skipped", RenderSkipped, StatusIndicators.Skipped},
	}
	for _, tt := range tests {
		got := tt.render("probe")
		if !strings.Contains(got, tt.marker) || !strings.Contains(got, "probe") {
			t.Errorf("%s: %q missing marker %q or message", tt.name, got, tt.marker)
		}
	}
}
