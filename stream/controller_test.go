package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polichat/polichat/api"
	"github.com/polichat/polichat/chat"
)

// chatBackend fakes the chat service: one streaming endpoint plus the
// transcript persistence surface.
type chatBackend struct {
	mu        sync.Mutex
	script    []string // protocol lines written to the stream, pre-framed
	hold      bool     // keep the stream open after the script until aborted
	saves     [][]chat.Message
	rateCalls int
	session   *chat.Session // returned by get-chat-session, nil -> 404
	streamed  chan struct{} // closed after the script has been flushed
}

func newChatBackend(script ...string) *chatBackend {
	return &chatBackend{script: script, streamed: make(chan struct{})}
}

func (b *chatBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saves)
}

func (b *chatBackend) rateCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rateCalls
}

func (b *chatBackend) lastSave() []chat.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.saves) == 0 {
		return nil
	}
	return b.saves[len(b.saves)-1]
}

func (b *chatBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "save-chat"):
		var payload struct {
			ChatID   string         `json:"chatId"`
			Messages []chat.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.saves = append(b.saves, payload.Messages)
		b.mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)

	case r.Method == http.MethodGet && strings.Contains(path, "get-chat-session"):
		b.mu.Lock()
		session := b.session
		b.mu.Unlock()
		if session == nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(session)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "rate-message"):
		b.mu.Lock()
		b.rateCalls++
		b.mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)

	case r.Method == http.MethodPost:
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "no flusher", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		for _, line := range b.script {
			fmt.Fprint(w, line)
		}
		flusher.Flush()
		close(b.streamed)
		if b.hold {
			<-r.Context().Done()
		}

	default:
		http.NotFound(w, r)
	}
}

func newTestController(t *testing.T, backend *chatBackend, chatID string, opts Options) (*Controller, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	gw, err := api.NewClient(
		api.WithBaseURL(server.URL+"/"),
		api.WithUserEmail("ana@example.com"),
		api.WithToken("tok-123"),
	)
	require.NoError(t, err)

	return New(gw, chatID, opts), server
}

func collectCallbacks(updates *[]chat.Message, completes *[]chat.Message, mu *sync.Mutex) Options {
	return Options{
		OnMessageUpdate: func(m chat.Message) {
			mu.Lock()
			*updates = append(*updates, m)
			mu.Unlock()
		},
		OnMessageComplete: func(m chat.Message) {
			mu.Lock()
			*completes = append(*completes, m)
			mu.Unlock()
		},
	}
}

func TestController_ScenarioToolLookup(t *testing.T) {
	backend := newChatBackend(
		"0: The policy states[END_MESSAGE]\n",
		`b: {"toolCallId":"t1","toolName":"lookup","state":"calling"}`+"[END_MESSAGE]\n",
		`b: {"toolCallId":"t1","state":"result","result":["doc1"]}`+"[END_MESSAGE]\n",
		"[DONE]",
	)

	var mu sync.Mutex
	var updates, completes []chat.Message
	opts := collectCallbacks(&updates, &completes, &mu)

	var started []chat.Message
	opts.OnMessageStart = func(m chat.Message) { started = append(started, m) }

	c, _ := newTestController(t, backend, "chat_cl_test1", opts)

	history := []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "¿Qué dice la política?", CreatedAt: time.Now()}}
	final, err := c.Start(context.Background(), history)
	require.NoError(t, err)
	require.NotNil(t, final)

	// Start callback fired with the empty bubble before any delta arrived.
	require.Len(t, started, 1)
	assert.Empty(t, started[0].Content)

	assert.Equal(t, "The policy states", final.Content)
	require.Len(t, final.ToolInvocations, 1)
	inv := final.ToolInvocations[0]
	assert.Equal(t, "t1", inv.ToolCallID)
	assert.Equal(t, chat.ToolStateResult, inv.State)
	assert.Equal(t, []interface{}{"doc1"}, inv.Result)

	// Timeline order: tool, tool_result, complete.
	require.Len(t, final.Events, 3)
	assert.Equal(t, chat.EventTypeTool, final.Events[0].Type)
	assert.Equal(t, chat.EventTypeToolResult, final.Events[1].Type)
	assert.Equal(t, chat.EventTypeComplete, final.Events[2].Type)
	assert.Equal(t, "Respuesta completada", final.Events[2].Message)

	assert.Equal(t, StateCompleted, c.State())

	require.Len(t, completes, 1)
	assert.Equal(t, final.Content, completes[0].Content)

	// Persisted transcript is history + the final assistant message.
	require.Equal(t, 1, backend.saveCount())
	saved := backend.lastSave()
	require.Len(t, saved, 2)
	assert.Equal(t, "u1", saved[0].ID)
	assert.Equal(t, final.ID, saved[1].ID)
}

func TestController_UpdatesAreMonotonic(t *testing.T) {
	backend := newChatBackend(
		"0: Hola[END_MESSAGE]\n",
		"0:  mundo[END_MESSAGE]\n",
		"0: !\n[END_MESSAGE]\n",
		"[DONE]",
	)

	var mu sync.Mutex
	var updates, completes []chat.Message
	c, _ := newTestController(t, backend, "chat_cl_test2", collectCallbacks(&updates, &completes, &mu))

	final, err := c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo!\n", final.Content)

	prev := ""
	for _, u := range updates {
		require.True(t, strings.HasPrefix(u.Content, prev),
			"content shrank between updates: %q -> %q", prev, u.Content)
		prev = u.Content
	}
}

func TestController_StopPreservesPartialContent(t *testing.T) {
	backend := newChatBackend("0: Partial answ[END_MESSAGE]\n")
	backend.hold = true

	var mu sync.Mutex
	var updates, completes []chat.Message
	c, _ := newTestController(t, backend, "chat_cl_test3", collectCallbacks(&updates, &completes, &mu))

	done := make(chan struct{})
	var final *chat.Message
	go func() {
		defer close(done)
		final, _ = c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	}()

	<-backend.streamed
	// Let the controller drain the flushed chunk before stopping.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) > 0 && updates[len(updates)-1].Content == "Partial answ"
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	<-done

	assert.Equal(t, StateCancelled, c.State())
	require.NotNil(t, final)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completes, 1)
	stopped := completes[0]
	assert.Equal(t, "Partial answ\n\n_[La respuesta fue detenida por el usuario]_", stopped.Content)

	last := stopped.Events[len(stopped.Events)-1]
	assert.Equal(t, chat.EventTypeCancelled, last.Type)

	// Persistence attempted exactly once, from the stop path.
	assert.Equal(t, 1, backend.saveCount())
}

func TestController_StopWithEmptyContentUsesFallback(t *testing.T) {
	backend := newChatBackend()
	backend.hold = true

	var mu sync.Mutex
	var updates, completes []chat.Message
	c, _ := newTestController(t, backend, "chat_cl_test4", collectCallbacks(&updates, &completes, &mu))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	}()

	<-backend.streamed
	c.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completes, 1)
	assert.Equal(t, "La respuesta fue detenida por el usuario.", completes[0].Content)
}

func TestController_StopPrefersConsumerMessageList(t *testing.T) {
	backend := newChatBackend("0: seen by controller[END_MESSAGE]\n")
	backend.hold = true

	var mu sync.Mutex
	var updates, completes []chat.Message
	opts := collectCallbacks(&updates, &completes, &mu)

	// The consumer list is ahead of the controller's snapshot.
	var consumerID string
	opts.GetMessages = func() []chat.Message {
		mu.Lock()
		defer mu.Unlock()
		return []chat.Message{{ID: consumerID, Role: chat.RoleAssistant, Content: "seen by controller plus UI batch"}}
	}
	opts.OnMessageStart = func(m chat.Message) {
		mu.Lock()
		consumerID = m.ID
		mu.Unlock()
	}

	c, _ := newTestController(t, backend, "chat_cl_test5", opts)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	}()

	<-backend.streamed
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) > 0
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, completes)
	assert.Equal(t,
		"seen by controller plus UI batch\n\n_[La respuesta fue detenida por el usuario]_",
		completes[0].Content)
}

func TestController_StopKeepsSnapshotWhenConsumerCopyIsBlank(t *testing.T) {
	backend := newChatBackend("0: seen by controller[END_MESSAGE]\n")
	backend.hold = true

	var mu sync.Mutex
	var updates, completes []chat.Message
	opts := collectCallbacks(&updates, &completes, &mu)

	// A consumer that has not rendered the message yet hands back a blank
	// copy; the controller's own content must survive.
	var consumerID string
	opts.GetMessages = func() []chat.Message {
		mu.Lock()
		defer mu.Unlock()
		return []chat.Message{{ID: consumerID, Role: chat.RoleAssistant, Content: ""}}
	}
	opts.OnMessageStart = func(m chat.Message) {
		mu.Lock()
		consumerID = m.ID
		mu.Unlock()
	}

	c, _ := newTestController(t, backend, "chat_cl_test5b", opts)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	}()

	<-backend.streamed
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range updates {
			if strings.Contains(m.Content, "seen by controller") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, completes)
	assert.Equal(t,
		"seen by controller\n\n_[La respuesta fue detenida por el usuario]_",
		completes[0].Content)
}

func TestController_StopMergesAgainstServerTranscript(t *testing.T) {
	backend := newChatBackend("0: partial[END_MESSAGE]\n")
	backend.hold = true
	backend.session = &chat.Session{
		ChatID: "chat_cl_test6",
		Messages: []chat.Message{
			{ID: "u1", Role: chat.RoleUser, Content: "hola"},
			{ID: "a0", Role: chat.RoleAssistant, Content: "respuesta anterior"},
		},
	}

	var mu sync.Mutex
	var updates, completes []chat.Message
	c, _ := newTestController(t, backend, "chat_cl_test6", collectCallbacks(&updates, &completes, &mu))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	}()

	<-backend.streamed
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) > 0
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	<-done

	// The save is based on the server's copy: both prior messages survive,
	// the stopped message is appended.
	saved := backend.lastSave()
	require.Len(t, saved, 3)
	assert.Equal(t, "u1", saved[0].ID)
	assert.Equal(t, "a0", saved[1].ID)
	assert.Contains(t, saved[2].Content, "partial")
}

func TestController_TransportFailureFinalizesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	gw, err := api.NewClient(api.WithBaseURL(server.URL + "/"))
	require.NoError(t, err)

	var mu sync.Mutex
	var updates, completes []chat.Message
	opts := collectCallbacks(&updates, &completes, &mu)
	var streamErr error
	opts.OnError = func(err error) { streamErr = err }

	c := New(gw, "chat_cl_test7", opts)

	final, err := c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	require.Error(t, err)
	require.NotNil(t, final)
	require.Error(t, streamErr)

	assert.Equal(t, "Lo siento, ocurrió un error al procesar tu solicitud.", final.Content)
	last := final.Events[len(final.Events)-1]
	assert.Equal(t, chat.EventTypeError, last.Type)
	assert.Equal(t, StateFailed, c.State())

	require.Len(t, completes, 1)
	assert.Equal(t, final.Content, completes[0].Content)
}

func TestController_MalformedToolUnitIsSkipped(t *testing.T) {
	backend := newChatBackend(
		"b: {not json}[END_MESSAGE]\n",
		"0: ok[END_MESSAGE]\n",
		"[DONE]",
	)

	var mu sync.Mutex
	var updates, completes []chat.Message
	c, _ := newTestController(t, backend, "chat_cl_test8", collectCallbacks(&updates, &completes, &mu))

	final, err := c.Start(context.Background(), []chat.Message{{ID: "u1", Role: chat.RoleUser, Content: "hola"}})
	require.NoError(t, err)

	assert.Equal(t, "ok", final.Content)
	assert.Empty(t, final.ToolInvocations)
	// Only the synthetic completion event.
	require.Len(t, final.Events, 1)
	assert.Equal(t, chat.EventTypeComplete, final.Events[0].Type)
}

func TestController_NoChatIDFailsFast(t *testing.T) {
	gw, err := api.NewClient(api.WithBaseURL("http://127.0.0.1:0/"))
	require.NoError(t, err)

	c := New(gw, "", Options{})
	final, err := c.Start(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, final)
}

func TestController_AgentInfoSeedsCallingInvocation(t *testing.T) {
	backend := newChatBackend("0: hola[END_MESSAGE]\n", "[DONE]")

	var started chat.Message
	opts := Options{OnMessageStart: func(m chat.Message) { started = m }}
	c, _ := newTestController(t, backend, "chat_cl_test9", opts)

	history := []chat.Message{{
		ID:        "u1",
		Role:      chat.RoleUser,
		Content:   "pregunta al agente",
		AgentInfo: &chat.AgentInfo{ID: "agent-7", Name: "normativa", Color: "#ff6600"},
	}}
	_, err := c.Start(context.Background(), history)
	require.NoError(t, err)

	require.Len(t, started.ToolInvocations, 1)
	inv := started.ToolInvocations[0]
	assert.Equal(t, "normativa", inv.ToolName)
	assert.Equal(t, chat.ToolStateCalling, inv.State)
	assert.Equal(t, "agent-7", inv.ToolArgs["agentId"])
}

func TestController_SaveMessageRating(t *testing.T) {
	backend := newChatBackend()
	c, _ := newTestController(t, backend, "chat_cl_test10", Options{})

	err := c.SaveMessageRating(context.Background(), "msg-1", chat.RatingPositive)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.rateCount())

	// Ratings are the one persistence path whose failures propagate.
	noChat := New(nil, "", Options{})
	require.Error(t, noChat.SaveMessageRating(context.Background(), "msg-1", chat.RatingNegative))
}
