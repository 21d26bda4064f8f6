package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/polichat/polichat/api"
	"github.com/polichat/polichat/chat"
	"github.com/polichat/polichat/internal/logging"
)

// User-facing terminal strings. They are part of the transcript contract and
// must match what the rest of the product shows, byte for byte.
const (
	stoppedFallbackContent = "La respuesta fue detenida por el usuario."
	stoppedMarker          = "\n\n_[La respuesta fue detenida por el usuario]_"
	errorContent           = "Lo siento, ocurrió un error al procesar tu solicitud."
	completedEventMessage  = "Respuesta completada"
)

// State is the lifecycle of one streaming invocation. Terminal states do not
// transition further; a new Start begins a fresh cycle.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

// Options wires a consumer to the controller. All callbacks are optional and
// run synchronously on the streaming goroutine, strictly ordered: within one
// stream content only grows, events only append and invocations only advance.
type Options struct {
	OnMessageStart    func(chat.Message)
	OnMessageUpdate   func(chat.Message)
	OnMessageComplete func(chat.Message)
	OnError           func(error)

	// GetMessages returns the consumer's current message list. At stop time
	// it is the authoritative source for the streamed content so far; the
	// controller's own snapshot is only a fallback.
	GetMessages func() []chat.Message
}

// Controller owns the per-session streaming lifecycle: it opens the request,
// feeds the decoder, folds units through the reducer, publishes updates and
// persists the final transcript. One stream at a time per controller; callers
// serialize Start invocations (e.g. by disabling submit while loading).
type Controller struct {
	gw     *api.Client
	chatID string
	opts   Options

	mu      sync.Mutex
	cancel  context.CancelFunc
	current *chat.Message
	state   State
	loading bool
}

// New creates a controller bound to one chat session.
func New(gw *api.Client, chatID string, opts Options) *Controller {
	return &Controller{
		gw:     gw,
		chatID: chatID,
		opts:   opts,
		state:  StateIdle,
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Loading reports whether a stream is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Start opens the chat stream for the given history and blocks until the
// stream reaches a terminal state. It returns the final assistant message,
// or nil when no stream could be started. Cancellation via Stop is not an
// error: Stop finalizes the message itself and Start returns what it had.
func (c *Controller) Start(ctx context.Context, history []chat.Message) (*chat.Message, error) {
	if c.chatID == "" {
		logging.Logger.Error("no chatId available for streaming")
		return nil, fmt.Errorf("no chatId available for streaming")
	}

	streamCtx, cancel := context.WithCancel(ctx)

	var lastMessage *chat.Message
	if len(history) > 0 {
		lastMessage = &history[len(history)-1]
	}
	assistant := newAssistantMessage(lastMessage)

	c.mu.Lock()
	c.cancel = cancel
	c.current = &assistant
	c.state = StateRequesting
	c.loading = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.loading = false
		c.mu.Unlock()
	}()

	logging.Logger.Debug("starting stream", "chatId", c.chatID, "history", len(history))

	// The consumer sees the empty assistant bubble before any network I/O.
	if c.opts.OnMessageStart != nil {
		c.opts.OnMessageStart(chat.CloneMessage(assistant))
	}

	body, err := c.gw.OpenStream(streamCtx, c.chatID, history)
	if err != nil {
		if c.cancelled(streamCtx) {
			return c.snapshot(), nil
		}
		return c.failStream(ctx, history, assistant, err)
	}
	defer body.Close()

	c.setState(StateStreaming)

	var decoder LineDecoder
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, line := range decoder.Feed(string(buf[:n])) {
				unit, ok := DecodeLine(line)
				if !ok {
					continue
				}
				if unit.Type == UnitDone {
					continue
				}

				assistant = Reduce(assistant, unit)
				c.setCurrent(assistant)
				if c.opts.OnMessageUpdate != nil {
					c.opts.OnMessageUpdate(chat.CloneMessage(assistant))
				}
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if c.cancelled(streamCtx) {
			// Stop owns finalize-and-persist for the cancelled path.
			return c.snapshot(), nil
		}
		return c.failStream(ctx, history, assistant, readErr)
	}

	assistant.Events = append(assistant.Events, chat.ThinkingEvent{
		ID:        chat.NewEventID(),
		Timestamp: time.Now(),
		Type:      chat.EventTypeComplete,
		Message:   completedEventMessage,
	})
	c.setCurrent(assistant)
	c.setState(StateCompleted)

	if c.opts.OnMessageComplete != nil {
		c.opts.OnMessageComplete(chat.CloneMessage(assistant))
	}

	c.persist(ctx, mergeIntoHistory(history, assistant))
	return &assistant, nil
}

// Stop aborts the in-flight request and finalizes the partial answer into a
// coherent, persisted transcript. It never panics or propagates persistence
// failures: cancellation always completes the consumer-visible flow.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	current := c.current
	if cancel != nil {
		c.state = StateCancelled
		c.loading = false
	}
	c.mu.Unlock()

	if cancel == nil {
		logging.Logger.Debug("no active stream to stop")
		return
	}
	cancel()

	if current == nil {
		logging.Logger.Error("no assistant message reference found when stopping stream")
		return
	}
	updated := chat.CloneMessage(*current)

	// The consumer's list is ahead of our snapshot when UI batching applied
	// updates we have not round-tripped; prefer its copy when it has content.
	var consumerMessages []chat.Message
	if c.opts.GetMessages != nil {
		consumerMessages = c.opts.GetMessages()
	}
	content := updated.Content
	for _, msg := range consumerMessages {
		if msg.ID == updated.ID {
			if strings.TrimSpace(msg.Content) != "" {
				content = msg.Content
			}
			break
		}
	}

	if strings.TrimSpace(content) == "" {
		updated.Content = stoppedFallbackContent
	} else {
		updated.Content = strings.TrimSpace(content) + stoppedMarker
	}
	updated.Events = append(updated.Events, chat.ThinkingEvent{
		ID:        chat.NewEventID(),
		Timestamp: time.Now(),
		Type:      chat.EventTypeCancelled,
		Message:   stoppedFallbackContent,
	})
	c.setCurrent(updated)

	if c.opts.OnMessageUpdate != nil {
		c.opts.OnMessageUpdate(chat.CloneMessage(updated))
	}

	ctx, cancelPersist := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelPersist()

	// Merge against the server's copy first so a concurrent save from the
	// completion path is not clobbered; fall back to the consumer's list.
	base := consumerMessages
	if session, err := c.gw.GetChatSession(ctx, c.chatID); err != nil {
		logging.Logger.Error("failed to fetch existing chat session", "chatId", c.chatID, "error", err)
	} else if session != nil && len(session.Messages) > 0 {
		base = session.Messages
	}

	merged := mergeIntoHistory(base, updated)
	c.persist(ctx, merged)

	if c.opts.OnMessageComplete != nil {
		c.opts.OnMessageComplete(chat.CloneMessage(updated))
	}
}

// SaveMessageRating records a rating outside the streaming state machine.
// Failures propagate so the caller can surface them.
func (c *Controller) SaveMessageRating(ctx context.Context, messageID string, rating chat.Rating) error {
	if c.chatID == "" {
		return fmt.Errorf("no chatId available for rating")
	}
	return c.gw.RateMessage(ctx, c.chatID, messageID, rating)
}

// newAssistantMessage builds the empty in-flight reply. When the triggering
// user message targets an agent, the reply opens with a synthetic "calling"
// invocation so the UI shows the agent as already invoked.
func newAssistantMessage(lastMessage *chat.Message) chat.Message {
	assistant := chat.Message{
		ID:              chat.NewMessageID(),
		Role:            chat.RoleAssistant,
		Content:         "",
		CreatedAt:       time.Now(),
		ToolInvocations: []chat.ToolInvocation{},
		Events:          []chat.ThinkingEvent{},
	}

	if lastMessage != nil && lastMessage.AgentInfo != nil {
		assistant.ToolInvocations = append(assistant.ToolInvocations, chat.ToolInvocation{
			ToolCallID: chat.NewEventID(),
			ToolName:   lastMessage.AgentInfo.Name,
			ToolArgs:   map[string]interface{}{"agentId": lastMessage.AgentInfo.ID},
			State:      chat.ToolStateCalling,
			CreatedAt:  time.Now(),
		})
	}

	return assistant
}

// failStream finalizes a transport failure: fixed apology content, an error
// event, both completion callbacks, best-effort persistence, then OnError.
func (c *Controller) failStream(ctx context.Context, history []chat.Message, assistant chat.Message, cause error) (*chat.Message, error) {
	logging.Logger.Error("stream failed", "chatId", c.chatID, "error", cause)

	assistant.Content = errorContent
	assistant.Events = append(assistant.Events, chat.ThinkingEvent{
		ID:        chat.NewEventID(),
		Timestamp: time.Now(),
		Type:      chat.EventTypeError,
		Message:   fmt.Sprintf("Error: %v", cause),
	})
	c.setCurrent(assistant)
	c.setState(StateFailed)

	if c.opts.OnMessageUpdate != nil {
		c.opts.OnMessageUpdate(chat.CloneMessage(assistant))
	}
	if c.opts.OnMessageComplete != nil {
		c.opts.OnMessageComplete(chat.CloneMessage(assistant))
	}

	if len(history) > 0 {
		c.persist(ctx, mergeIntoHistory(history, assistant))
	}

	if c.opts.OnError != nil {
		c.opts.OnError(cause)
	}
	return &assistant, cause
}

// persist saves the transcript best-effort; the consumer's state is
// authoritative even when the write fails.
func (c *Controller) persist(ctx context.Context, messages []chat.Message) {
	if len(messages) == 0 {
		return
	}
	if err := c.gw.SaveChat(ctx, c.chatID, messages, ""); err != nil {
		logging.Logger.Error("failed to save chat", "chatId", c.chatID, "error", err)
		return
	}
	logging.Logger.Info("saved chat", "chatId", c.chatID, "messages", len(messages))
}

// mergeIntoHistory replaces the assistant message in place when its id is
// already present, and appends it otherwise.
func mergeIntoHistory(history []chat.Message, msg chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(history)+1)
	replaced := false
	for _, m := range history {
		if m.ID == msg.ID {
			out = append(out, msg)
			replaced = true
			continue
		}
		out = append(out, m)
	}
	if !replaced {
		out = append(out, msg)
	}
	return out
}

func (c *Controller) setCurrent(msg chat.Message) {
	c.mu.Lock()
	c.current = &msg
	c.mu.Unlock()
}

func (c *Controller) snapshot() *chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) cancelled(ctx context.Context) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateCancelled
}
