// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/chatsapp/internal/model"
)

// Theme names accepted by NewTheme.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
	ThemeASCII = "ascii"
)

// Theme holds every style the TUI renders with.
type Theme struct {
	// Name is the resolved theme: dark, light or ascii.
	Name         string
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT
	// ==========================================================================

	Header       lipgloss.Style
	HeaderTitle  lipgloss.Style
	HeaderDetail lipgloss.Style
	Column       lipgloss.Style
	ColumnTitle  lipgloss.Style
	StatusBar    lipgloss.Style
	Notice       lipgloss.Style
	InputPrompt  lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Body           lipgloss.Style
	Streaming      lipgloss.Style
	Timestamp      lipgloss.Style
	Error          lipgloss.Style

	status map[model.StreamStatus]lipgloss.Style
}

// NewTheme creates the theme for name. Unknown names behave like auto.
func NewTheme(name string) *Theme {
	profile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()

	switch name {
	case ThemeDark:
		isDark = true
	case ThemeLight:
		isDark = false
	case ThemeASCII:
		profile = termenv.Ascii
	}

	resolved := ThemeLight
	switch {
	case profile == termenv.Ascii:
		resolved = ThemeASCII
	case isDark:
		resolved = ThemeDark
	}

	t := &Theme{Name: resolved, IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

// Apply makes Lip Gloss render with the theme's profile and background.
func (t *Theme) Apply() {
	lipgloss.SetColorProfile(t.ColorProfile)
	lipgloss.SetHasDarkBackground(t.IsDark)
}

// GlamourStyle returns the glamour standard style matching the theme.
func (t *Theme) GlamourStyle() string {
	return t.Name
}

// Status returns the style of a stream status label.
func (t *Theme) Status(s model.StreamStatus) lipgloss.Style {
	if st, ok := t.status[s]; ok {
		return st
	}
	return t.status[model.StatusDisconnected]
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderDetail = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)

	t.Column = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.ColumnTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)

	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Background(SurfaceDim)
	t.Notice = lipgloss.NewStyle().Foreground(TextMuted)
	t.InputPrompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Body = lipgloss.NewStyle().Foreground(TextPrimary)
	t.Streaming = lipgloss.NewStyle().Foreground(TextSecondary)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.Error = lipgloss.NewStyle().Bold(true).Foreground(Rose)

	t.status = map[model.StreamStatus]lipgloss.Style{
		model.StatusDisconnected: lipgloss.NewStyle().Foreground(TextMuted),
		model.StatusConnecting:   lipgloss.NewStyle().Foreground(Amber),
		model.StatusConnected:    lipgloss.NewStyle().Foreground(Cyan),
		model.StatusGenerating:   lipgloss.NewStyle().Foreground(Purple),
		model.StatusComplete:     lipgloss.NewStyle().Foreground(Emerald),
		model.StatusError:        lipgloss.NewStyle().Foreground(Rose),
	}
}
