package chat

import (
	"crypto/rand"
	"fmt"
)

// Client-side ids follow the backend's contract: a fixed prefix, an
// underscore separator and a short random suffix over [a-z0-9].
const idCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomID(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	for i := range b {
		b[i] = idCharset[b[i]%byte(len(idCharset))]
	}
	return string(b)
}

// NewMessageID generates an id for a client-created message.
func NewMessageID() string {
	return fmt.Sprintf("pwc_cl_user_msg_%s", randomID(10))
}

// NewChatID generates a stable chat id before any server roundtrip, so the
// client can reference the session while the first save is still in flight.
func NewChatID() string {
	return fmt.Sprintf("chat_cl_%s", randomID(20))
}

// NewEventID generates an id for a client-created ThinkingEvent.
func NewEventID() string {
	return fmt.Sprintf("evt_cl_%s", randomID(10))
}
