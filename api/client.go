// Package api is the HTTP surface of the policy-chat backend: it opens the
// streaming completion request and persists, fetches and rates transcripts.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/polichat/polichat/chat"
)

const defaultTimeout = 30 * time.Second

// Client talks to the chat service. The zero value is not usable; construct
// with NewClient.
type Client struct {
	options    ClientOptions
	httpClient *http.Client
	// streamClient has no timeout: a completion stream stays open for as
	// long as the model keeps producing tokens.
	streamClient *http.Client
}

// NewClient creates a gateway client.
func NewClient(opts ...ClientOption) (*Client, error) {
	options := ClientOptions{
		Timeout: defaultTimeout,
		Headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.BaseURL == "" {
		return nil, fmt.Errorf("chat service base URL not provided")
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}
	// Never inherit a caller timeout on the stream side; share the transport
	// and cookie jar but keep the stream untimed.
	streamClient := &http.Client{
		Transport:     httpClient.Transport,
		CheckRedirect: httpClient.CheckRedirect,
		Jar:           httpClient.Jar,
	}

	return &Client{
		options:      options,
		httpClient:   httpClient,
		streamClient: streamClient,
	}, nil
}

// UserEmail returns the configured transcript owner.
func (c *Client) UserEmail() string {
	return c.options.UserEmail
}

// The backend mounts its routes directly on the base path; some are joined
// without a separator (the base URL carries the trailing slash), some with
// one. The exact shapes are part of the service contract.
func (c *Client) endpoint(path string) string {
	return c.options.BaseURL + path
}

// setHeaders sets the headers common to every request. Authorization is
// always present: bearer token when configured, empty value otherwise.
func (c *Client) setHeaders(req *http.Request) {
	auth := ""
	if c.options.Token != "" {
		auth = "Bearer " + c.options.Token
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

// OpenStream issues the streaming completion request for a chat and returns
// the raw body. The caller owns the reader and must close it; cancelling ctx
// aborts the transport mid-stream.
func (c *Client) OpenStream(ctx context.Context, chatID string, messages []chat.Message) (io.ReadCloser, error) {
	body, err := json.Marshal(map[string]interface{}{
		"chatId":   chatID,
		"messages": messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat service error: status %d, body: %s", resp.StatusCode, string(body))
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("chat service returned no body")
	}

	return resp.Body, nil
}

// SaveChat persists a full transcript. The title is derived from the first
// message when empty.
func (c *Client) SaveChat(ctx context.Context, chatID string, messages []chat.Message, title string) error {
	if len(chatID) < 5 {
		return fmt.Errorf("invalid chatId %q for saving messages", chatID)
	}
	if len(messages) == 0 {
		return fmt.Errorf("no messages to save for chat %s", chatID)
	}

	if title == "" {
		title = chat.DeriveTitle(messages)
	}

	payload := map[string]interface{}{
		"chatId":    chatID,
		"userEmail": c.options.UserEmail,
		"messages":  messages,
		"title":     title,
	}

	return c.post(ctx, c.endpoint("save-chat"), payload, nil)
}

// GetChatSession fetches the persisted transcript for a chat. Returns nil
// (no error) when the server has nothing for this chat yet.
func (c *Client) GetChatSession(ctx context.Context, chatID string) (*chat.Session, error) {
	u := c.endpoint("get-chat-session?chatId=" + url.QueryEscape(chatID))

	var session chat.Session
	if err := c.get(ctx, u, &session); err != nil {
		return nil, err
	}
	if len(session.Messages) == 0 {
		return nil, nil
	}
	if session.ChatID == "" {
		session.ChatID = chatID
	}
	return &session, nil
}

// RateMessage persists a rating for one message. Unlike transcript saves,
// rating failures propagate so the UI can surface them.
func (c *Client) RateMessage(ctx context.Context, chatID, messageID string, rating chat.Rating) error {
	payload := map[string]interface{}{
		"chatId":    chatID,
		"messageId": messageID,
		"rating":    rating,
		"userEmail": c.options.UserEmail,
	}
	if err := c.post(ctx, c.endpoint("/rate-message"), payload, nil); err != nil {
		return fmt.Errorf("failed to save rating: %w", err)
	}
	return nil
}

// LoadChat fetches the message history of an existing chat. The server wraps
// the messages either directly or under a chatSession envelope.
func (c *Client) LoadChat(ctx context.Context, chatID string) ([]chat.Message, error) {
	var envelope struct {
		Messages    []chat.Message `json:"messages"`
		ChatSession *struct {
			Messages []chat.Message `json:"messages"`
		} `json:"chatSession"`
	}
	if err := c.get(ctx, c.endpoint("/"+chatID), &envelope); err != nil {
		return nil, err
	}

	messages := envelope.Messages
	if len(messages) == 0 && envelope.ChatSession != nil {
		messages = envelope.ChatSession.Messages
	}
	return messages, nil
}

// CategorizedChats groups a user's sessions by age bucket, newest first
// within each bucket.
type CategorizedChats struct {
	Today     []chat.Session `json:"today"`
	Yesterday []chat.Session `json:"yesterday"`
	LastWeek  []chat.Session `json:"lastWeek"`
	LastMonth []chat.Session `json:"lastMonth"`
	Older     []chat.Session `json:"older"`
}

// UserChats lists the configured user's sessions, bucketed by recency.
func (c *Client) UserChats(ctx context.Context) (*CategorizedChats, error) {
	var chats CategorizedChats
	if err := c.get(ctx, c.endpoint("/user-chats"), &chats); err != nil {
		return nil, fmt.Errorf("failed to fetch user chats: %w", err)
	}
	return &chats, nil
}

// RenameChat updates a session title.
func (c *Client) RenameChat(ctx context.Context, chatID, title string) error {
	payload := map[string]interface{}{
		"chatId":    chatID,
		"title":     title,
		"userEmail": c.options.UserEmail,
	}
	return c.post(ctx, c.endpoint("/rename-chat"), payload, nil)
}

// DeleteChat removes a session server-side.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/"+chatID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	return c.doDiscard(req)
}

// DownloadChat fetches the plain-text export of a session.
func (c *Client) DownloadChat(ctx context.Context, chatID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/download/"+chatID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat service error: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Plumbing shared by the JSON endpoints.

func (c *Client) post(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	if out == nil {
		return c.doDiscard(req)
	}
	return c.doJSON(req, out)
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat service error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) doDiscard(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat service error: status %d, body: %s", resp.StatusCode, string(body))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
