package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents a color theme
type Theme struct {
	Name      string
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Text      lipgloss.AdaptiveColor
	TextDim   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Success   lipgloss.AdaptiveColor
	Warning   lipgloss.AdaptiveColor
	Error     lipgloss.AdaptiveColor
	Info      lipgloss.AdaptiveColor
}

// Default theme
var DefaultTheme = Theme{
	Name:      "default",
	Primary:   lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7B68EE"},
	Secondary: lipgloss.AdaptiveColor{Light: "#6C6CFF", Dark: "#9370DB"},
	Text:      lipgloss.AdaptiveColor{Light: "#1E1E1E", Dark: "#E0E0E0"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"},
	Border:    lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#404040"},
	Success:   lipgloss.AdaptiveColor{Light: "#4CAF50", Dark: "#66BB6A"},
	Warning:   lipgloss.AdaptiveColor{Light: "#FF9800", Dark: "#FFA726"},
	Error:     lipgloss.AdaptiveColor{Light: "#F44336", Dark: "#EF5350"},
	Info:      lipgloss.AdaptiveColor{Light: "#2196F3", Dark: "#42A5F5"},
}

// Dracula theme
var DraculaTheme = Theme{
	Name:      "dracula",
	Primary:   lipgloss.AdaptiveColor{Light: "#BD93F9", Dark: "#BD93F9"},
	Secondary: lipgloss.AdaptiveColor{Light: "#FF79C6", Dark: "#FF79C6"},
	Text:      lipgloss.AdaptiveColor{Light: "#F8F8F2", Dark: "#F8F8F2"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#6272A4", Dark: "#6272A4"},
	Border:    lipgloss.AdaptiveColor{Light: "#6272A4", Dark: "#6272A4"},
	Success:   lipgloss.AdaptiveColor{Light: "#50FA7B", Dark: "#50FA7B"},
	Warning:   lipgloss.AdaptiveColor{Light: "#F1FA8C", Dark: "#F1FA8C"},
	Error:     lipgloss.AdaptiveColor{Light: "#FF5555", Dark: "#FF5555"},
	Info:      lipgloss.AdaptiveColor{Light: "#8BE9FD", Dark: "#8BE9FD"},
}

// Corporate theme, tuned for light terminals
var CorporateTheme = Theme{
	Name:      "corporate",
	Primary:   lipgloss.AdaptiveColor{Light: "#D04A02", Dark: "#E86C25"},
	Secondary: lipgloss.AdaptiveColor{Light: "#602320", Dark: "#A05048"},
	Text:      lipgloss.AdaptiveColor{Light: "#2D2D2D", Dark: "#E0E0E0"},
	TextDim:   lipgloss.AdaptiveColor{Light: "#7D7D7D", Dark: "#888888"},
	Border:    lipgloss.AdaptiveColor{Light: "#DEDEDE", Dark: "#404040"},
	Success:   lipgloss.AdaptiveColor{Light: "#22992E", Dark: "#4EB523"},
	Warning:   lipgloss.AdaptiveColor{Light: "#FFB600", Dark: "#FFC83D"},
	Error:     lipgloss.AdaptiveColor{Light: "#C52A1A", Dark: "#E0301E"},
	Info:      lipgloss.AdaptiveColor{Light: "#0089EB", Dark: "#4DACF1"},
}

// ThemeByName resolves a configured theme name, falling back to the default.
func ThemeByName(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dracula":
		return DraculaTheme
	case "corporate":
		return CorporateTheme
	default:
		return DefaultTheme
	}
}
