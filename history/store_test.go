package history

import (
	"testing"

	"github.com/polichat/polichat/chat"
)

func TestStoreUpsert(t *testing.T) {
	s := NewStore()
	s.Add(chat.Message{ID: "a", Content: "uno"})
	s.Add(chat.Message{ID: "b", Content: "dos"})

	s.Upsert(chat.Message{ID: "a", Content: "uno actualizado"})
	if s.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", s.Len())
	}
	if got := s.Messages()[0].Content; got != "uno actualizado" {
		t.Errorf("expected in-place replacement, got %q", got)
	}

	s.Upsert(chat.Message{ID: "c", Content: "tres"})
	if s.Len() != 3 {
		t.Fatalf("expected append for unknown id, got %d messages", s.Len())
	}
}

func TestStoreMessagesReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Add(chat.Message{ID: "a", Content: "uno"})

	got := s.Messages()
	got[0].Content = "mutado"

	if s.Messages()[0].Content != "uno" {
		t.Error("mutating the returned slice leaked into the store")
	}
}

func TestStoreSetRating(t *testing.T) {
	s := NewStore()
	s.Add(chat.Message{ID: "a", Role: chat.RoleAssistant})

	s.SetRating("a", chat.RatingPositive)
	if got := s.Messages()[0].Rating; got != chat.RatingPositive {
		t.Errorf("expected positive rating, got %q", got)
	}

	// Unknown id is a no-op.
	s.SetRating("missing", chat.RatingNegative)
	if got := s.Messages()[0].Rating; got != chat.RatingPositive {
		t.Errorf("rating changed for wrong id: %q", got)
	}
}

func TestStoreTogglePin(t *testing.T) {
	s := NewStore()

	if got := s.TogglePin("chat_cl_a"); got != "chat_cl_a" {
		t.Fatalf("expected pin chat_cl_a, got %q", got)
	}

	// Pinning another chat replaces the previous pin.
	if got := s.TogglePin("chat_cl_b"); got != "chat_cl_b" {
		t.Fatalf("expected pin to move to chat_cl_b, got %q", got)
	}
	if got := s.PinnedChatID(); got != "chat_cl_b" {
		t.Fatalf("PinnedChatID = %q", got)
	}

	// Toggling the pinned chat unpins it.
	if got := s.TogglePin("chat_cl_b"); got != "" {
		t.Fatalf("expected unpin, got %q", got)
	}

	// Blank ids do not disturb the pin.
	s.SetPinnedChatID("chat_cl_c")
	if got := s.TogglePin("   "); got != "chat_cl_c" {
		t.Fatalf("blank toggle changed pin to %q", got)
	}

	s.DropPinIfDeleted("chat_cl_c")
	if got := s.PinnedChatID(); got != "" {
		t.Fatalf("expected pin cleared after delete, got %q", got)
	}
}

func TestStoreNewUserMessage(t *testing.T) {
	s := NewStore()
	msg := s.NewUserMessage("hola")

	if msg.Role != chat.RoleUser {
		t.Errorf("role = %q", msg.Role)
	}
	if msg.Content != "hola" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Error("expected id and timestamp to be set")
	}
	if s.Len() != 0 {
		t.Error("NewUserMessage must not add to the store")
	}
}
