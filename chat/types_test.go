package chat

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{
			name: "first message wins",
			messages: []Message{
				{Content: "¿Cuál es la política de viajes?"},
				{Content: "otra cosa"},
			},
			want: "¿Cuál es la política de viajes?",
		},
		{
			name:     "cut at first newline",
			messages: []Message{{Content: "primera línea\nsegunda línea"}},
			want:     "primera línea",
		},
		{
			name:     "truncated to 50 characters",
			messages: []Message{{Content: strings.Repeat("a", 80)}},
			want:     strings.Repeat("a", 50),
		},
		{
			name:     "truncation counts runes not bytes",
			messages: []Message{{Content: strings.Repeat("a", 49) + "ñúé"}},
			want:     strings.Repeat("a", 49) + "ñ",
		},
		{
			name:     "empty list falls back",
			messages: nil,
			want:     "Nuevo Chat",
		},
		{
			name:     "blank content falls back",
			messages: []Message{{Content: "   "}},
			want:     "Nuevo Chat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTitle(tt.messages)
			if got != tt.want {
				t.Errorf("DeriveTitle() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("DeriveTitle() = %q is not valid UTF-8", got)
			}
		})
	}
}

func TestIDFormats(t *testing.T) {
	tests := []struct {
		name    string
		gen     func() string
		pattern string
	}{
		{"message", NewMessageID, `^pwc_cl_user_msg_[a-z0-9]{10}$`},
		{"chat", NewChatID, `^chat_cl_[a-z0-9]{20}$`},
		{"event", NewEventID, `^evt_cl_[a-z0-9]{10}$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := regexp.MustCompile(tt.pattern)
			id := tt.gen()
			if !re.MatchString(id) {
				t.Errorf("id %q does not match %s", id, tt.pattern)
			}
			if tt.gen() == id {
				t.Error("two generated ids collided")
			}
		})
	}
}

func TestCloneMessageDetachesSlices(t *testing.T) {
	original := Message{
		ID:              "a1",
		Role:            RoleAssistant,
		Content:         "hola",
		ToolInvocations: []ToolInvocation{{ToolCallID: "t1", State: ToolStateCalling}},
		Events:          []ThinkingEvent{{ID: "e1", Type: EventTypeTool}},
	}

	clone := CloneMessage(original)
	clone.ToolInvocations[0].State = ToolStateResult
	clone.Events[0].Type = EventTypeError

	if original.ToolInvocations[0].State != ToolStateCalling {
		t.Error("invocation mutation leaked into original")
	}
	if original.Events[0].Type != EventTypeTool {
		t.Error("event mutation leaked into original")
	}
}

func TestThinkingEventTimestampRevival(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "iso 8601",
			raw:  `{"id":"e1","timestamp":"2026-03-15T10:30:00Z","type":"tool","message":"m"}`,
			want: time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "iso without zone",
			raw:  `{"id":"e1","timestamp":"2026-03-15T10:30:00","type":"tool","message":"m"}`,
			want: time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "epoch seconds",
			raw:  `{"id":"e1","timestamp":1742034600,"type":"tool","message":"m"}`,
			want: time.Unix(1742034600, 0).UTC(),
		},
		{
			name: "missing timestamp",
			raw:  `{"id":"e1","type":"tool","message":"m"}`,
			want: time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev ThinkingEvent
			if err := json.Unmarshal([]byte(tt.raw), &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !ev.Timestamp.Equal(tt.want) {
				t.Errorf("timestamp = %v, want %v", ev.Timestamp, tt.want)
			}
			if ev.ID != "e1" || ev.Type != "tool" || ev.Message != "m" {
				t.Errorf("fields not revived: %+v", ev)
			}
		})
	}
}
