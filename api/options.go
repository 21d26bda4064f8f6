package api

import (
	"net/http"
	"time"
)

// ClientOptions contains options for creating a gateway client.
type ClientOptions struct {
	BaseURL    string
	Token      string
	UserEmail  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Headers    map[string]string
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*ClientOptions)

// WithBaseURL sets the chat service base URL.
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		o.BaseURL = url
	}
}

// WithToken sets the bearer token.
func WithToken(token string) ClientOption {
	return func(o *ClientOptions) {
		o.Token = token
	}
}

// WithUserEmail sets the email attached to persisted transcripts.
func WithUserEmail(email string) ClientOption {
	return func(o *ClientOptions) {
		o.UserEmail = email
	}
}

// WithTimeout sets the request timeout for non-streaming calls.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.Timeout = timeout
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *ClientOptions) {
		o.HTTPClient = c
	}
}

// WithHeaders sets additional headers sent on every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}
