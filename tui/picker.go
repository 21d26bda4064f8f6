package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/polichat/polichat/api"
	"github.com/polichat/polichat/chat"
	"github.com/polichat/polichat/tui/styles"
)

// pickerEntry is one row of the chat picker: either a recency bucket header
// or a selectable chat.
type pickerEntry struct {
	header  bool
	bucket  string
	chatID  string
	title   string
	count   int
	updated time.Time
	pinned  bool
}

// pickerConfirmMsg is sent when the user picks a chat
type pickerConfirmMsg struct {
	chatID string
}

// pickerCancelMsg is sent when the picker is dismissed
type pickerCancelMsg struct{}

// ChatPicker lists the user's chats grouped by recency, the way the backend
// buckets them: today, yesterday, last week, last month, older.
type ChatPicker struct {
	entries  []pickerEntry
	selected int
	width    int
	height   int
	styles   *styles.Styles
}

// NewChatPicker builds a picker from the server's bucketed listing. The
// pinned chat gets a marker wherever it appears.
func NewChatPicker(chats *api.CategorizedChats, pinnedChatID string, st *styles.Styles) *ChatPicker {
	buckets := []struct {
		label    string
		sessions []chat.Session
	}{
		{"Hoy", chats.Today},
		{"Ayer", chats.Yesterday},
		{"Última semana", chats.LastWeek},
		{"Último mes", chats.LastMonth},
		{"Anteriores", chats.Older},
	}

	var entries []pickerEntry
	for _, b := range buckets {
		if len(b.sessions) == 0 {
			continue
		}
		entries = append(entries, pickerEntry{header: true, bucket: b.label})
		for _, s := range b.sessions {
			title := s.Title
			if title == "" {
				title = chat.DeriveTitle(s.Messages)
			}
			entries = append(entries, pickerEntry{
				chatID:  s.ChatID,
				title:   title,
				count:   len(s.Messages),
				updated: s.UpdatedAt,
				pinned:  pinnedChatID != "" && s.ChatID == pinnedChatID,
			})
		}
	}

	p := &ChatPicker{
		entries: entries,
		width:   80,
		height:  24,
		styles:  st,
	}
	p.selected = p.nextSelectable(-1, 1)
	return p
}

// nextSelectable walks from idx in the given direction to the next
// non-header entry, or returns idx when there is none.
func (p *ChatPicker) nextSelectable(idx, dir int) int {
	for i := idx + dir; i >= 0 && i < len(p.entries); i += dir {
		if !p.entries[i].header {
			return i
		}
	}
	return idx
}

func (p *ChatPicker) empty() bool {
	for _, e := range p.entries {
		if !e.header {
			return false
		}
	}
	return true
}

func (p *ChatPicker) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Update handles picker navigation. It returns a command carrying the
// confirm/cancel message when the picker is done.
func (p *ChatPicker) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.SetSize(msg.Width, msg.Height)
		return nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			p.selected = p.nextSelectable(p.selected, -1)
		case "down", "j":
			p.selected = p.nextSelectable(p.selected, 1)
		case "enter":
			if p.selected >= 0 && p.selected < len(p.entries) && !p.entries[p.selected].header {
				chatID := p.entries[p.selected].chatID
				return func() tea.Msg { return pickerConfirmMsg{chatID: chatID} }
			}
		case "esc", "q", "ctrl+c":
			return func() tea.Msg { return pickerCancelMsg{} }
		}
	}
	return nil
}

func (p *ChatPicker) View() string {
	if p.empty() {
		return "\nNo hay conversaciones guardadas.\n\nPulsa [Esc] para volver."
	}

	var b strings.Builder
	b.WriteString(p.styles.PickerTitle.Render("Selecciona una conversación:"))
	b.WriteString("\n\n")

	// Window the list to the terminal height.
	visible := p.height - 6
	if visible < 3 {
		visible = 3
	}
	start := 0
	end := len(p.entries)
	if visible < len(p.entries) {
		if p.selected > visible/2 {
			start = p.selected - visible/2
			if start+visible > len(p.entries) {
				start = len(p.entries) - visible
			}
		}
		end = start + visible
		if end > len(p.entries) {
			end = len(p.entries)
		}
	}

	for i := start; i < end; i++ {
		entry := p.entries[i]
		if entry.header {
			b.WriteString(p.styles.PickerBucket.Render(entry.bucket))
			b.WriteString("\n")
			continue
		}

		cursor := "  "
		style := p.styles.PickerItem
		if i == p.selected {
			cursor = "▸ "
			style = p.styles.PickerSelected
		}

		pin := ""
		if entry.pinned {
			pin = p.styles.PickerPinned.Render(" ★")
		}

		when := ""
		if !entry.updated.IsZero() {
			when = entry.updated.Format("Jan 02 15:04") + " - "
		}
		line := fmt.Sprintf("%s%s%s (%d mensajes)", cursor, when, truncateTitle(entry.title, 48), entry.count)
		b.WriteString(style.Render(line))
		b.WriteString(pin)
		b.WriteString("\n")
	}

	if start > 0 || end < len(p.entries) {
		b.WriteString(p.styles.PickerItem.Render(fmt.Sprintf("\n[%d-%d de %d]", start+1, end, len(p.entries))))
	}

	b.WriteString(p.styles.Help.Render("\n[↑/↓/j/k] Navegar  [Enter] Abrir  [Esc/q] Cancelar"))
	return b.String()
}

func truncateTitle(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
