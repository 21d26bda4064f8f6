// Package tui is the terminal front-end: a bordered prompt over native
// terminal scrollback, with streamed answers printed above the prompt as
// they finish.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/polichat/polichat/api"
	"github.com/polichat/polichat/chat"
	"github.com/polichat/polichat/config"
	"github.com/polichat/polichat/history"
	"github.com/polichat/polichat/internal/logging"
	"github.com/polichat/polichat/stream"
	"github.com/polichat/polichat/tui/styles"
)

const assistantWrapWidth = 74

// eventSink bridges stream callbacks (which run on the streaming goroutine)
// into the Bubble Tea loop. Sends after close are dropped; the message data
// itself travels through the store, the sink only wakes the UI up.
type eventSink struct {
	mu     sync.Mutex
	ch     chan streamSignal
	closed bool
}

type streamSignal struct {
	messageID string
	err       error
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan streamSignal, 100)}
}

func (s *eventSink) send(sig streamSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- sig:
	default:
	}
}

func (s *eventSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// commandEntry represents a slash command and its short description
type commandEntry struct {
	name string
	desc string
}

// ChatTUI drives one policy-chat conversation at a time over the bordered
// prompt. Finished turns are printed into native scrollback; only the live
// region (stream preview, timeline, input box) is redrawn.
type ChatTUI struct {
	gw            *api.Client
	store         *history.Store
	cache         *history.Cache
	configManager *config.Manager
	styles        *styles.Styles

	chatID     string
	controller *stream.Controller
	sink       *eventSink

	textarea    textarea.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	borderStyle lipgloss.Style

	width       int
	height      int
	initialized bool

	isStreaming bool
	liveID      string
	liveContent string
	liveEvents  []chat.ThinkingEvent

	// Slash command autocomplete
	suggestVisible bool
	suggestItems   []commandEntry
	suggestIndex   int
	commands       []commandEntry

	// In-app modal: chat picker
	showPicker bool
	picker     *ChatPicker

	// Transient notice displayed above prompt bar
	transientNotice   string
	transientNoticeID int
}

// NewChatTUI creates the TUI bound to an existing or fresh chat session.
func NewChatTUI(gw *api.Client, store *history.Store, cache *history.Cache, configManager *config.Manager, chatID string) *ChatTUI {
	if chatID == "" {
		chatID = chat.NewChatID()
	}

	ta := textarea.New()
	ta.Placeholder = ""
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.Focus()

	// Completely transparent styles so the bordered box supplies the chrome.
	transparentStyle := lipgloss.NewStyle().
		UnsetBackground().
		UnsetBorderBackground().
		UnsetBorderStyle()

	ta.FocusedStyle.Base = transparentStyle
	ta.FocusedStyle.Text = transparentStyle
	ta.FocusedStyle.Placeholder = transparentStyle
	ta.FocusedStyle.Prompt = transparentStyle
	ta.FocusedStyle.CursorLine = transparentStyle

	ta.BlurredStyle.Base = transparentStyle
	ta.BlurredStyle.Text = transparentStyle
	ta.BlurredStyle.Placeholder = transparentStyle
	ta.BlurredStyle.Prompt = transparentStyle
	ta.BlurredStyle.CursorLine = transparentStyle

	// Enter sends the message.
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.SetWidth(74)

	renderer, _ := glamour.NewTermRenderer(
		// Non-colored markdown output so answers remain visible across
		// terminal themes.
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(assistantWrapWidth),
	)

	theme := styles.DefaultTheme
	if configManager != nil {
		theme = styles.ThemeByName(configManager.GetTheme())
	}
	st := styles.NewStyles(theme)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = st.Spinner

	t := &ChatTUI{
		gw:            gw,
		store:         store,
		cache:         cache,
		configManager: configManager,
		styles:        st,
		chatID:        chatID,
		textarea:      ta,
		spinner:       s,
		renderer:      renderer,
		borderStyle:   st.Border,
		width:         80,
	}

	t.commands = []commandEntry{
		{name: "/help", desc: "Mostrar esta ayuda"},
		{name: "/new", desc: "Empezar una conversación nueva"},
		{name: "/chats", desc: "Abrir el selector de conversaciones"},
		{name: "/rename", desc: "Renombrar la conversación actual"},
		{name: "/delete", desc: "Borrar la conversación actual"},
		{name: "/download", desc: "Descargar la conversación como texto"},
		{name: "/pin", desc: "Fijar o soltar la conversación actual"},
		{name: "/rate", desc: "Valorar la última respuesta (up|down)"},
		{name: "/status", desc: "Mostrar sesión y configuración"},
		{name: "/clear", desc: "Vaciar la conversación en pantalla"},
		{name: "/exit", desc: "Salir"},
	}

	return t
}

// ChatID returns the active session id.
func (m *ChatTUI) ChatID() string {
	return m.chatID
}

func (m *ChatTUI) Init() tea.Cmd {
	return textarea.Blink
}

// Bubble Tea messages.

type streamSignalMsg struct {
	sig streamSignal
	ok  bool
}

type streamFinishedMsg struct {
	message *chat.Message
	err     error
}

type chatsLoadedMsg struct {
	chats *api.CategorizedChats
	err   error
}

type chatOpenedMsg struct {
	chatID   string
	messages []chat.Message
	err      error
}

type commandResultMsg struct {
	content string
	err     error
	isQuit  bool
	isClear bool
}

type clearTransientNoticeMsg struct {
	id int
}

func (m *ChatTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	// Modal chat picker swallows input while visible.
	if m.showPicker && m.picker != nil {
		switch msg := msg.(type) {
		case pickerConfirmMsg:
			m.showPicker = false
			m.picker = nil
			return m, tea.Batch(tea.ExitAltScreen, m.openChat(msg.chatID))
		case pickerCancelMsg:
			m.showPicker = false
			m.picker = nil
			m.textarea.Focus()
			return m, tea.ExitAltScreen
		case tea.KeyMsg, tea.WindowSizeMsg:
			return m, m.picker.Update(msg)
		}
	}

	switch msg := msg.(type) {
	case clearTransientNoticeMsg:
		if msg.id == m.transientNoticeID {
			m.transientNotice = ""
		}
		return m, nil

	case spinner.TickMsg:
		if m.isStreaming {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		textareaWidth := m.width - 6
		if textareaWidth < 1 {
			textareaWidth = 1
		}
		m.textarea.SetWidth(textareaWidth)
		m.borderStyle = m.borderStyle.Width(m.width - 2)
		m.adjustTextareaHeight()
		m.initialized = true
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlQ:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.isStreaming {
				ctrl := m.controller
				cmds = append(cmds, func() tea.Msg {
					if ctrl != nil {
						ctrl.Stop()
					}
					return nil
				})
				cmds = append(cmds, m.showTransientNotice("Respuesta detenida."))
				return m, tea.Batch(cmds...)
			}
			return m, tea.Quit

		case tea.KeyUp:
			if m.suggestVisible && len(m.suggestItems) > 0 {
				if m.suggestIndex > 0 {
					m.suggestIndex--
				} else {
					m.suggestIndex = len(m.suggestItems) - 1
				}
				return m, nil
			}

		case tea.KeyDown:
			if m.suggestVisible && len(m.suggestItems) > 0 {
				m.suggestIndex = (m.suggestIndex + 1) % len(m.suggestItems)
				return m, nil
			}

		case tea.KeyTab:
			if m.suggestVisible && len(m.suggestItems) > 0 {
				selected := m.suggestItems[m.suggestIndex].name
				current := strings.TrimLeft(m.textarea.Value(), " ")
				spaceIdx := strings.IndexAny(current, " \t\n")
				if strings.HasPrefix(current, "/") {
					if spaceIdx == -1 {
						m.textarea.SetValue(selected + " ")
					} else {
						m.textarea.SetValue(selected + current[spaceIdx:])
					}
					m.resetSuggestions()
					m.adjustTextareaHeight()
					return m, nil
				}
			}

		case tea.KeyCtrlL:
			m.store.Clear()
			return m, tea.ClearScreen

		case tea.KeyEnter:
			if m.isStreaming {
				return m, nil
			}
			value := m.textarea.Value()
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				return m, nil
			}

			if m.suggestVisible && len(m.suggestItems) > 0 && strings.HasPrefix(trimmed, "/") {
				selected := m.suggestItems[m.suggestIndex].name
				m.resetInput()
				return m, m.handleCommand(selected)
			}
			if strings.HasPrefix(trimmed, "/") {
				m.resetInput()
				return m, m.handleCommand(trimmed)
			}

			m.resetInput()
			return m, m.sendMessage(value)
		}

	case streamSignalMsg:
		if !msg.ok {
			// Sink closed; the finished message follows separately.
			return m, nil
		}
		if msg.sig.err == nil && msg.sig.messageID != "" {
			m.syncLiveMessage(msg.sig.messageID)
		}
		cmds = append(cmds, m.listenForStream())
		return m, tea.Batch(cmds...)

	case streamFinishedMsg:
		return m, m.finishStream(msg)

	case chatsLoadedMsg:
		if msg.err != nil {
			m.textarea.Focus()
			return m, printAboveBlock(m.styles.ErrorMessage.Render(fmt.Sprintf("❌ No se pudieron cargar las conversaciones: %v", msg.err)))
		}
		m.picker = NewChatPicker(msg.chats, m.store.PinnedChatID(), m.styles)
		m.picker.SetSize(m.width, m.height)
		m.showPicker = true
		m.textarea.Blur()
		return m, tea.EnterAltScreen

	case chatOpenedMsg:
		m.textarea.Focus()
		if msg.err != nil {
			return m, printAboveBlock(m.styles.ErrorMessage.Render(fmt.Sprintf("❌ No se pudo abrir la conversación: %v", msg.err)))
		}
		m.chatID = msg.chatID
		m.controller = nil
		m.store.Set(msg.messages)
		return m, m.printTranscript(msg.messages)

	case commandResultMsg:
		if msg.isQuit {
			return m, tea.Quit
		}
		if msg.isClear {
			m.store.Clear()
			m.textarea.Focus()
			return m, tea.ClearScreen
		}
		m.textarea.Focus()
		if msg.err != nil {
			return m, printAboveBlock(m.styles.ErrorMessage.Render(fmt.Sprintf("❌ %v", msg.err)))
		}
		if msg.content != "" {
			return m, printAboveBlock(m.styles.CommandMessage.Render(msg.content))
		}
		return m, nil
	}

	oldValue := m.textarea.Value()
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)

	if oldValue != m.textarea.Value() {
		m.adjustTextareaHeight()
		m.updateSuggestions()
	}

	return m, tea.Batch(cmds...)
}

func (m *ChatTUI) View() string {
	if m.showPicker && m.picker != nil {
		return m.picker.View()
	}

	var b strings.Builder

	if m.isStreaming {
		for _, line := range m.renderTimeline(m.liveEvents) {
			b.WriteString(line)
			b.WriteString("\n")
		}
		if m.liveContent != "" {
			b.WriteString(wordwrap.String(m.liveContent, assistantWrapWidth))
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("%s Pensando... (Esc para detener)\n\n", m.spinner.View()))
	} else {
		extraLines := m.textarea.Height()
		if extraLines > 1 {
			for i := 0; i < extraLines; i++ {
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	boxWidth := m.width - 2
	if boxWidth < 1 {
		boxWidth = 1
	}

	statusParts := []string{
		fmt.Sprintf("Chat: %s", shortChatID(m.chatID)),
	}
	if email := m.gw.UserEmail(); email != "" {
		statusParts = append(statusParts, fmt.Sprintf("Usuario: %s", email))
	}
	if m.store.PinnedChatID() == m.chatID && m.chatID != "" {
		statusParts = append(statusParts, "★ fijado")
	}
	status := truncateToWidth(strings.Join(statusParts, " | "), boxWidth-1)
	b.WriteString(m.styles.StatusBar.Render(status))
	b.WriteString("\n")

	if m.transientNotice != "" {
		notice := truncateToWidth(m.transientNotice, boxWidth-1)
		b.WriteString(m.styles.Notice.Render(notice))
		b.WriteString("\n")
	}

	promptedInput := "> " + m.textarea.View()
	b.WriteString(m.borderStyle.
		PaddingLeft(1).
		PaddingRight(1).
		Render(promptedInput))
	b.WriteString("\n")

	if m.suggestVisible && len(m.suggestItems) > 0 {
		max := len(m.suggestItems)
		if max > 8 {
			max = 8
		}
		nameStyle := m.styles.AssistantLabel
		descStyle := m.styles.Help
		for i := 0; i < max; i++ {
			item := m.suggestItems[i]
			line := fmt.Sprintf(" %s  %s", nameStyle.Render(item.name), descStyle.Render(item.desc))
			if i == m.suggestIndex {
				line = m.styles.PickerSelected.Render(fmt.Sprintf(" %s  %s", item.name, item.desc))
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// renderTimeline renders a thinking-event log, one line per event, newest
// last.
func (m *ChatTUI) renderTimeline(events []chat.ThinkingEvent) []string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		icon := "•"
		style := m.styles.TimelineEvent
		switch ev.Type {
		case chat.EventTypeTool:
			icon = "🔧"
		case chat.EventTypeToolResult:
			icon = "✅"
			style = m.styles.TimelineResult
		case chat.EventTypeError:
			icon = "❌"
			style = m.styles.ErrorMessage
		case chat.EventTypeCancelled:
			icon = "🛑"
		}
		stamp := ""
		if !ev.Timestamp.IsZero() {
			stamp = m.styles.Timestamp.Render(ev.Timestamp.Format("15:04:05")) + " "
		}
		lines = append(lines, stamp+style.Render(fmt.Sprintf("%s %s", icon, ev.Message)))
	}
	return lines
}

// sendMessage adds the user turn and opens the stream for the new history.
func (m *ChatTUI) sendMessage(content string) tea.Cmd {
	user := m.store.NewUserMessage(content)
	m.store.Add(user)

	m.isStreaming = true
	m.liveID = ""
	m.liveContent = ""
	m.liveEvents = nil

	sink := newEventSink()
	m.sink = sink

	ctrl := stream.New(m.gw, m.chatID, stream.Options{
		OnMessageStart: func(msg chat.Message) {
			m.store.Upsert(msg)
			sink.send(streamSignal{messageID: msg.ID})
		},
		OnMessageUpdate: func(msg chat.Message) {
			m.store.Upsert(msg)
			sink.send(streamSignal{messageID: msg.ID})
		},
		OnMessageComplete: func(msg chat.Message) {
			m.store.Upsert(msg)
			sink.send(streamSignal{messageID: msg.ID})
		},
		OnError: func(err error) {
			sink.send(streamSignal{err: err})
		},
		GetMessages: m.store.Messages,
	})
	m.controller = ctrl

	historySnapshot := m.store.Messages()
	start := func() tea.Msg {
		final, err := ctrl.Start(context.Background(), historySnapshot)
		sink.close()
		return streamFinishedMsg{message: final, err: err}
	}

	return tea.Batch(
		printAboveBlock("👤 Tú: "+m.styles.UserMessage.Render(content)),
		start,
		m.spinner.Tick,
		m.listenForStream(),
	)
}

func (m *ChatTUI) listenForStream() tea.Cmd {
	sink := m.sink
	return func() tea.Msg {
		if sink == nil {
			return nil
		}
		sig, ok := <-sink.ch
		return streamSignalMsg{sig: sig, ok: ok}
	}
}

// syncLiveMessage refreshes the live preview from the store copy of the
// in-flight assistant message.
func (m *ChatTUI) syncLiveMessage(messageID string) {
	m.liveID = messageID
	for _, msg := range m.store.Messages() {
		if msg.ID == messageID {
			m.liveContent = msg.Content
			m.liveEvents = msg.Events
			return
		}
	}
}

// finishStream prints the finished answer into scrollback and caches the
// transcript locally.
func (m *ChatTUI) finishStream(msg streamFinishedMsg) tea.Cmd {
	m.isStreaming = false
	m.liveContent = ""
	m.liveEvents = nil
	m.textarea.Focus()

	var final *chat.Message
	if msg.message != nil {
		final = msg.message
	} else if m.liveID != "" {
		for _, stored := range m.store.Messages() {
			if stored.ID == m.liveID {
				copied := stored
				final = &copied
				break
			}
		}
	}
	m.liveID = ""

	var cmds []tea.Cmd
	if final != nil {
		// The store may have the stopped/finalized copy already.
		for _, stored := range m.store.Messages() {
			if stored.ID == final.ID {
				copied := stored
				final = &copied
				break
			}
		}
		cmds = append(cmds, printAboveBlock(m.renderAssistant(*final)))
		m.cacheTranscript()
	}
	if msg.err != nil {
		cmds = append(cmds, printAboveBlock(m.styles.ErrorMessage.Render(fmt.Sprintf("❌ Error: %v", msg.err))))
	}
	if len(cmds) == 0 {
		return nil
	}
	return tea.Batch(cmds...)
}

func (m *ChatTUI) cacheTranscript() {
	if m.cache == nil {
		return
	}
	session := &chat.Session{
		ChatID:    m.chatID,
		UserEmail: m.gw.UserEmail(),
		Messages:  m.store.Messages(),
	}
	if err := m.cache.Save(session); err != nil {
		logging.Logger.Warn("failed to cache transcript", "chatId", m.chatID, "error", err)
	}
}

// renderAssistant renders a finished assistant turn: the thinking timeline
// first, then the markdown body.
func (m *ChatTUI) renderAssistant(msg chat.Message) string {
	var sections []string

	if len(msg.Events) > 0 {
		sections = append(sections, strings.Join(m.renderTimeline(msg.Events), "\n"))
	}

	content := msg.Content
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			content = strings.TrimRight(rendered, "\n")
		}
	}
	sections = append(sections, content)

	return m.styles.AssistantLabel.Render("🤖 Asistente:") + "\n" + strings.Join(sections, "\n\n")
}

// printTranscript replays an opened chat into scrollback.
func (m *ChatTUI) printTranscript(messages []chat.Message) tea.Cmd {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString("👤 Tú: " + m.styles.UserMessage.Render(msg.Content))
		case chat.RoleAssistant:
			b.WriteString(m.renderAssistant(msg))
		default:
			continue
		}
		b.WriteString("\n\n")
	}
	b.WriteString(m.styles.CommandMessage.Render(fmt.Sprintf("Conversación %s abierta (%d mensajes).", shortChatID(m.chatID), len(messages))))
	return printAboveBlock(b.String())
}

// handleCommand executes a slash command. Network-bound commands run inside
// the returned tea.Cmd so the UI stays responsive.
func (m *ChatTUI) handleCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	name := parts[0]
	args := parts[1:]

	switch name {
	case "/help":
		var b strings.Builder
		b.WriteString("Comandos disponibles:\n")
		for _, c := range m.commands {
			b.WriteString(fmt.Sprintf("  %-10s %s\n", c.name, c.desc))
		}
		return resultCmd(commandResultMsg{content: strings.TrimRight(b.String(), "\n")})

	case "/exit":
		return resultCmd(commandResultMsg{isQuit: true})

	case "/clear":
		return resultCmd(commandResultMsg{isClear: true})

	case "/status":
		pinned := "no"
		if m.store.PinnedChatID() == m.chatID && m.chatID != "" {
			pinned = "sí"
		}
		status := fmt.Sprintf("Chat: %s | Usuario: %s | Mensajes: %d | Fijado: %s",
			m.chatID, m.gw.UserEmail(), m.store.Len(), pinned)
		return resultCmd(commandResultMsg{content: status})

	case "/new":
		m.chatID = chat.NewChatID()
		m.controller = nil
		m.store.Clear()
		return resultCmd(commandResultMsg{content: "Conversación nueva: " + shortChatID(m.chatID)})

	case "/chats":
		gw := m.gw
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			chats, err := gw.UserChats(ctx)
			return chatsLoadedMsg{chats: chats, err: err}
		}

	case "/rename":
		if len(args) == 0 {
			return resultCmd(commandResultMsg{err: fmt.Errorf("uso: /rename <título>")})
		}
		title := strings.Join(args, " ")
		gw, chatID := m.gw, m.chatID
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := gw.RenameChat(ctx, chatID, title); err != nil {
				return commandResultMsg{err: err}
			}
			return commandResultMsg{content: "Conversación renombrada: " + title}
		}

	case "/delete":
		gw, chatID := m.gw, m.chatID
		cache := m.cache
		m.store.DropPinIfDeleted(chatID)
		if m.configManager != nil && m.configManager.GetPinnedChatID() == chatID {
			if err := m.configManager.SetPinnedChatID(""); err != nil {
				logging.Logger.Warn("failed to clear pinned chat", "error", err)
			}
		}
		m.chatID = chat.NewChatID()
		m.controller = nil
		m.store.Clear()
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if cache != nil {
				if err := cache.Delete(chatID); err != nil {
					logging.Logger.Warn("failed to drop cached transcript", "chatId", chatID, "error", err)
				}
			}
			if err := gw.DeleteChat(ctx, chatID); err != nil {
				return commandResultMsg{err: err}
			}
			return commandResultMsg{content: "Conversación borrada."}
		}

	case "/download":
		gw, chatID := m.gw, m.chatID
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			data, err := gw.DownloadChat(ctx, chatID)
			if err != nil {
				return commandResultMsg{err: err}
			}
			path := filepath.Join(".", fmt.Sprintf("polichat_%s.txt", chatID))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return commandResultMsg{err: err}
			}
			return commandResultMsg{content: "Conversación guardada en " + path}
		}

	case "/pin":
		pinned := m.store.TogglePin(m.chatID)
		if m.configManager != nil {
			if err := m.configManager.SetPinnedChatID(pinned); err != nil {
				logging.Logger.Warn("failed to persist pinned chat", "error", err)
			}
		}
		if pinned == m.chatID && pinned != "" {
			return resultCmd(commandResultMsg{content: "Conversación fijada."})
		}
		return resultCmd(commandResultMsg{content: "Conversación sin fijar."})

	case "/rate":
		if len(args) == 0 || (args[0] != "up" && args[0] != "down") {
			return resultCmd(commandResultMsg{err: fmt.Errorf("uso: /rate <up|down>")})
		}
		rating := chat.RatingPositive
		if args[0] == "down" {
			rating = chat.RatingNegative
		}
		target := ""
		for _, msg := range m.store.Messages() {
			if msg.Role == chat.RoleAssistant {
				target = msg.ID
			}
		}
		if target == "" {
			return resultCmd(commandResultMsg{err: fmt.Errorf("no hay respuesta que valorar")})
		}
		gw, chatID := m.gw, m.chatID
		store := m.store
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := gw.RateMessage(ctx, chatID, target, rating); err != nil {
				return commandResultMsg{err: err}
			}
			store.SetRating(target, rating)
			return commandResultMsg{content: "Valoración registrada."}
		}

	default:
		return resultCmd(commandResultMsg{err: fmt.Errorf("comando desconocido: %s", name)})
	}
}

// openChat loads a chat from the server, falling back to the local cache
// when the service is unreachable.
func (m *ChatTUI) openChat(chatID string) tea.Cmd {
	gw, cache := m.gw, m.cache
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		messages, err := gw.LoadChat(ctx, chatID)
		if err != nil || len(messages) == 0 {
			if cache != nil {
				if session, cacheErr := cache.Load(chatID); cacheErr == nil {
					return chatOpenedMsg{chatID: chatID, messages: session.Messages}
				}
			}
			if err != nil {
				return chatOpenedMsg{err: err}
			}
		}
		return chatOpenedMsg{chatID: chatID, messages: messages}
	}
}

func (m *ChatTUI) showTransientNotice(text string) tea.Cmd {
	m.transientNotice = strings.TrimSpace(text)
	m.transientNoticeID++
	currentID := m.transientNoticeID

	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return clearTransientNoticeMsg{id: currentID}
	})
}

func (m *ChatTUI) resetInput() {
	m.textarea.Reset()
	m.textarea.SetHeight(1)
	m.textarea.Blur()
	m.resetSuggestions()
}

func (m *ChatTUI) resetSuggestions() {
	m.suggestVisible = false
	m.suggestItems = nil
	m.suggestIndex = 0
}

func (m *ChatTUI) updateSuggestions() {
	value := strings.TrimLeft(m.textarea.Value(), " ")
	if !strings.HasPrefix(value, "/") || strings.ContainsAny(value, " \t\n") {
		m.resetSuggestions()
		return
	}

	var items []commandEntry
	for _, c := range m.commands {
		if strings.HasPrefix(c.name, value) {
			items = append(items, c)
		}
	}
	m.suggestItems = items
	m.suggestVisible = len(items) > 0
	if m.suggestIndex >= len(items) {
		m.suggestIndex = 0
	}
}

// adjustTextareaHeight grows the input box with its content, up to a cap.
func (m *ChatTUI) adjustTextareaHeight() {
	content := m.textarea.Value()
	if content == "" {
		m.textarea.SetHeight(1)
		return
	}

	lines := 1
	currentLineLength := 0
	textareaWidth := m.width - 8
	if textareaWidth < 1 {
		textareaWidth = 1
	}

	for _, char := range content {
		if char == '\n' {
			lines++
			currentLineLength = 0
		} else {
			currentLineLength++
			if currentLineLength >= textareaWidth {
				lines++
				currentLineLength = 0
			}
		}
	}

	maxHeight := 10
	if lines > maxHeight {
		lines = maxHeight
	}
	m.textarea.SetHeight(lines)
}

func resultCmd(msg commandResultMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func printAboveBlock(content string) tea.Cmd {
	return tea.Printf("%s\n\n", content)
}

func shortChatID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "…"
}

func truncateToWidth(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
