package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func shouldPrettyPrint() bool {
	term := strings.TrimSpace(os.Getenv("TERM"))
	if term == "" || term == "dumb" {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return termenv.NewOutput(os.Stderr).ColorProfile() != termenv.Ascii
}

var colorProfileOnce sync.Once

func ensureColorOutput() {
	colorProfileOnce.Do(func() {
		lipgloss.SetColorProfile(termenv.NewOutput(os.Stderr).ColorProfile())
	})
}

// FormatEventPretty renders one event with terminal styling. Fields are
// rendered inline except payload-like JSON values, which get their own
// indented block.
func FormatEventPretty(event Event) string {
	ensureColorOutput()
	ts := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(event.Time.Format("15:04:05.000"))
	levelLabel, levelStyle := levelBadge(event.Level)
	msg := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Render(event.Message)

	line := lipgloss.JoinHorizontal(lipgloss.Center, ts, " ", levelStyle.Render(levelLabel), " ", msg)
	if len(event.Fields) == 0 {
		return line + "\n"
	}

	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	valStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	parts := make([]string, 0, len(event.Fields))
	blocks := make([]string, 0, len(event.Fields))
	for _, key := range orderedFieldKeys(event.Fields) {
		rendered := formatFieldValue(event.Fields[key])
		if isPayloadFieldKey(key) && strings.Contains(rendered, "\n") {
			header := keyStyle.Render(key) + sepStyle.Render("=")
			blocks = append(blocks, header+"\n"+lipgloss.NewStyle().MarginLeft(2).Render(valStyle.Render(rendered)))
			continue
		}
		parts = append(parts, keyStyle.Render(key)+sepStyle.Render("=")+valStyle.Render(rendered))
	}
	if len(parts) > 0 {
		line += "  " + strings.Join(parts, " ")
	}
	for _, block := range blocks {
		line += "\n  " + block
	}
	return line + "\n"
}

func levelBadge(level slog.Level) (string, lipgloss.Style) {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG", base.Foreground(lipgloss.Color("255")).Background(lipgloss.Color("240"))
	case level <= slog.LevelInfo:
		return "INFO", base.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("31"))
	case level <= slog.LevelWarn:
		return "WARN", base.Foreground(lipgloss.Color("234")).Background(lipgloss.Color("214"))
	default:
		return "ERROR", base.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160"))
	}
}
