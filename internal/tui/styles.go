package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tender-automation/dashboard/internal/models"
)

var palette = struct {
	text, textMuted, border, selection lipgloss.AdaptiveColor
	ok, warn, bad, info                lipgloss.AdaptiveColor
}{
	text:      lipgloss.AdaptiveColor{Light: "#1f2328", Dark: "#e6edf3"},
	textMuted: lipgloss.AdaptiveColor{Light: "#656d76", Dark: "#8b949e"},
	border:    lipgloss.AdaptiveColor{Light: "#d0d7de", Dark: "#30363d"},
	selection: lipgloss.AdaptiveColor{Light: "#ddf4ff", Dark: "#1f3a5f"},
	ok:        lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"},
	warn:      lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"},
	bad:       lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"},
	info:      lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"},
}

type styles struct {
	topBar, title                 lipgloss.Style
	panel, panelFocused           lipgloss.Style
	panelTitle                    lipgloss.Style
	listItem, listSel, listPicked lipgloss.Style
	statusBar, statusErr, hint    lipgloss.Style
	badge                         map[models.ConnectionState]lipgloss.Style
	level                         map[models.LogLevel]lipgloss.Style
	timestamp                     lipgloss.Style
}

func newStyles() styles {
	base := lipgloss.NewStyle()
	return styles{
		topBar:       base.Padding(0, 1),
		title:        base.Copy().Bold(true),
		panel:        base.BorderStyle(lipgloss.NormalBorder()).BorderForeground(palette.border),
		panelFocused: base.BorderStyle(lipgloss.DoubleBorder()).BorderForeground(palette.info),
		panelTitle:   base.Copy().Bold(true).Padding(0, 1),
		listItem:     base.Padding(0, 1),
		listSel:      base.Copy().Padding(0, 1).Background(palette.selection).Foreground(palette.text),
		listPicked:   base.Copy().Padding(0, 1).Bold(true),
		statusBar:    base.Padding(0, 1).Foreground(palette.textMuted),
		statusErr:    base.Copy().Padding(0, 1).Foreground(palette.bad),
		hint:         base.Copy().Faint(true),
		badge: map[models.ConnectionState]lipgloss.Style{
			models.ConnectionConnected:    base.Copy().Bold(true).Foreground(palette.ok),
			models.ConnectionConnecting:   base.Copy().Bold(true).Foreground(palette.warn),
			models.ConnectionDisconnected: base.Copy().Bold(true).Foreground(palette.bad),
		},
		level: map[models.LogLevel]lipgloss.Style{
			models.LevelInfo:     base.Copy().Foreground(palette.text),
			models.LevelSuccess:  base.Copy().Foreground(palette.ok),
			models.LevelWarning:  base.Copy().Foreground(palette.warn),
			models.LevelError:    base.Copy().Foreground(palette.bad),
			models.LevelProgress: base.Copy().Foreground(palette.info),
		},
		timestamp: base.Copy().Foreground(palette.textMuted),
	}
}
