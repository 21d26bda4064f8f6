package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds all the styles for the application
type Styles struct {
	Theme Theme

	// Messages
	UserMessage      lipgloss.Style
	AssistantLabel   lipgloss.Style
	CommandMessage   lipgloss.Style
	ErrorMessage     lipgloss.Style
	TimelineEvent    lipgloss.Style
	TimelineResult   lipgloss.Style
	Timestamp        lipgloss.Style

	// UI Elements
	Border    lipgloss.Style
	StatusBar lipgloss.Style
	Notice    lipgloss.Style
	Spinner   lipgloss.Style
	Help      lipgloss.Style

	// Picker
	PickerTitle    lipgloss.Style
	PickerBucket   lipgloss.Style
	PickerItem     lipgloss.Style
	PickerSelected lipgloss.Style
	PickerPinned   lipgloss.Style
}

// NewStyles creates a new styles instance with the given theme
func NewStyles(theme Theme) *Styles {
	s := &Styles{
		Theme: theme,
	}

	s.UserMessage = lipgloss.NewStyle().
		Foreground(theme.Text)

	s.AssistantLabel = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	s.CommandMessage = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.ErrorMessage = lipgloss.NewStyle().
		Foreground(theme.Error)

	s.TimelineEvent = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true)

	s.TimelineResult = lipgloss.NewStyle().
		Foreground(theme.Success).
		Italic(true)

	s.Timestamp = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.Border = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border)

	s.StatusBar = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.Notice = lipgloss.NewStyle().
		Foreground(theme.Warning).
		Bold(true)

	s.Spinner = lipgloss.NewStyle().
		Foreground(theme.Primary)

	s.Help = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.PickerTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Primary).
		MarginBottom(1)

	s.PickerBucket = lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Secondary)

	s.PickerItem = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.PickerSelected = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	s.PickerPinned = lipgloss.NewStyle().
		Foreground(theme.Warning)

	return s
}
