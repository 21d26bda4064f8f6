package chat

import (
	"strings"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
	RoleData      Role = "data"
	RoleTool      Role = "tool"
)

// Rating is a user's post-hoc judgement of an assistant message.
// The zero value means unrated.
type Rating string

const (
	RatingUnset    Rating = ""
	RatingPositive Rating = "positive"
	RatingNegative Rating = "negative"
)

// ToolInvocationState tracks the lifecycle of a single tool call.
// Transitions are monotonic: calling -> result, never back.
type ToolInvocationState string

const (
	ToolStateCalling ToolInvocationState = "calling"
	ToolStateResult  ToolInvocationState = "result"
)

// ToolInvocation is one tool call/result pair inside an assistant message,
// keyed by ToolCallID.
type ToolInvocation struct {
	ToolCallID string                 `json:"toolCallId"`
	ToolName   string                 `json:"toolName"`
	ToolArgs   map[string]interface{} `json:"toolArgs,omitempty"`
	State      ToolInvocationState    `json:"state"`
	Result     interface{}            `json:"result,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	EndAt      *time.Time             `json:"endAt,omitempty"`
}

// ThinkingEvent is one entry in the assistant's visual timeline. The event
// log is append-only; entries are never reordered or mutated.
type ThinkingEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
}

// Well-known ThinkingEvent types. The set is open-ended: the backend may emit
// types this client has never seen and they are carried through verbatim.
const (
	EventTypeTool       = "tool"
	EventTypeToolResult = "tool_result"
	EventTypeComplete   = "complete"
	EventTypeCancelled  = "cancelled"
	EventTypeError      = "error"
)

// AgentInfo tags a user message with the agent it targets. It is carried to
// the assistant reply so the reply can open with a synthetic "calling"
// invocation for that agent.
type AgentInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID              string           `json:"id"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	CreatedAt       time.Time        `json:"createdAt"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
	Events          []ThinkingEvent  `json:"events,omitempty"`
	Rating          Rating           `json:"rating,omitempty"`
	AgentInfo       *AgentInfo       `json:"agentInfo,omitempty"`
}

// Session is one persisted conversation.
type Session struct {
	ChatID    string    `json:"chatId"`
	UserEmail string    `json:"userEmail"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DeriveTitle builds a session title from the first message, truncated the
// way the backend expects (50 characters).
func DeriveTitle(messages []Message) string {
	if len(messages) == 0 {
		return defaultTitle
	}
	content := strings.TrimSpace(messages[0].Content)
	if content == "" {
		return defaultTitle
	}
	if idx := strings.IndexByte(content, '\n'); idx != -1 {
		content = content[:idx]
	}
	if r := []rune(content); len(r) > 50 {
		content = string(r[:50])
	}
	return content
}

const defaultTitle = "Nuevo Chat"

// CloneMessage returns a deep enough copy of m for handing across ownership
// boundaries: the slices are copied so appends on one side do not alias the
// other. ToolArgs maps and results are shared; only the reducer writes them
// and it always replaces whole entries.
func CloneMessage(m Message) Message {
	out := m
	if m.ToolInvocations != nil {
		out.ToolInvocations = make([]ToolInvocation, len(m.ToolInvocations))
		copy(out.ToolInvocations, m.ToolInvocations)
	}
	if m.Events != nil {
		out.Events = make([]ThinkingEvent, len(m.Events))
		copy(out.Events, m.Events)
	}
	return out
}
