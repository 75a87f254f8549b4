// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/chatsapp/internal/model"
)

const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024
)

// StreamInit is the backend's answer to a stream initialization request.
type StreamInit struct {
	ConnectionID string
	StreamName   string
}

// Client talks to the chat backend's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	debug      bool
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Default(),
	}
}

// WithToken sets a bearer token sent on every request.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithRateLimit throttles requests to perSecond with the given burst.
// A non-positive rate disables throttling.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	if perSecond <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// WithLogger sets the logger used for request logging.
func (c *Client) WithLogger(logger *log.Logger, debug bool) *Client {
	if logger != nil {
		c.logger = logger
	}
	c.debug = debug
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation creates a conversation for the given models.
func (c *Client) CreateConversation(ctx context.Context, title string, modelIDs []string) (*model.Conversation, error) {
	reqBody := struct {
		Title    string   `json:"title"`
		ModelIDs []string `json:"modelIds"`
	}{Title: title, ModelIDs: modelIDs}

	body, err := c.do(ctx, http.MethodPost, "/conversations", nil, reqBody)
	if err != nil {
		return nil, err
	}

	var wc wireConversation
	if err := unwrap(body, "conversation", &wc); err != nil {
		return nil, decodeError(err)
	}
	if wc.ID == "" {
		return nil, decodeError(fmt.Errorf("conversation has no id"))
	}
	conv := wc.toModel()
	if conv.Title == "" {
		conv.Title = title
	}
	if len(conv.Models) == 0 {
		conv.Models = append([]string(nil), modelIDs...)
	}
	return conv, nil
}

// ListConversations returns the conversations known to the backend.
func (c *Client) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/conversations", nil, nil)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Conversations []wireConversation `json:"conversations"`
	}
	var list []wireConversation
	if err := json.Unmarshal(body, &list); err != nil {
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, decodeError(err)
		}
		list = wrapped.Conversations
	}

	convs := make([]*model.Conversation, 0, len(list))
	for _, wc := range list {
		convs = append(convs, wc.toModel())
	}
	return convs, nil
}

// GetConversation returns one conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	body, err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var wc wireConversation
	if err := unwrap(body, "conversation", &wc); err != nil {
		return nil, decodeError(err)
	}
	var withMessages struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &withMessages); err != nil {
		return nil, decodeError(err)
	}

	conv := wc.toModel()
	if conv.ID == "" {
		conv.ID = id
	}
	for _, wm := range withMessages.Messages {
		conv.Messages = append(conv.Messages, wm.toModel(conv.ID))
	}
	return conv, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// CreateMessage persists a message in a conversation.
func (c *Client) CreateMessage(ctx context.Context, conversationID, content string, role model.Role) (*model.Message, error) {
	reqBody := struct {
		Content string `json:"content"`
		Role    string `json:"role"`
	}{Content: content, Role: role.String()}

	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	body, err := c.do(ctx, http.MethodPost, path, nil, reqBody)
	if err != nil {
		return nil, err
	}

	var wm wireMessage
	if err := unwrap(body, "message", &wm); err != nil {
		return nil, decodeError(err)
	}
	if wm.ID == "" {
		return nil, decodeError(fmt.Errorf("message has no id"))
	}
	msg := wm.toModel(conversationID)
	if msg.Content == "" {
		msg.Content = content
	}
	if !msg.Role.Valid() {
		msg.Role = role
	}
	return msg, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// InitializeStream asks the backend to begin generating for an exchange.
func (c *Client) InitializeStream(ctx context.Context, conversationID, exchangeID string) (*StreamInit, error) {
	query := url.Values{}
	query.Set("exchangeId", exchangeID)
	query.Set("transport", "websocket")

	path := "/conversations/" + url.PathEscape(conversationID) + "/stream"
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ConnectionID      string `json:"connectionId"`
		ConnectionIDSnake string `json:"connection_id"`
		StreamName        string `json:"streamName"`
		StreamNameSnake   string `json:"stream_name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(err)
	}
	si := &StreamInit{ConnectionID: resp.ConnectionID, StreamName: resp.StreamName}
	if si.ConnectionID == "" {
		si.ConnectionID = resp.ConnectionIDSnake
	}
	if si.StreamName == "" {
		si.StreamName = resp.StreamNameSnake
	}
	return si, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody interface{}) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, networkError(err)
		}
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, &APIError{Message: "failed to marshal request", Cause: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, &APIError{Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	// Path only: headers may carry the token, bodies carry user content
	c.logger.Printf("API_REQUEST | method=%s path=%s", method, path)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("API_NETWORK_ERROR | method=%s path=%s error=%v", method, path, err)
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	c.logger.Printf("API_RESPONSE | method=%s path=%s status=%d duration=%v",
		method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	if c.debug {
		c.logger.Printf("API_RESPONSE_BODY | path=%s bytes=%d", path, len(body))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts a non-2xx response into an *APIError.
func handleErrorResponse(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: fmt.Sprintf("HTTP %d", status)}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			apiErr.Message = eb.Error
		}
		apiErr.Errors = eb.details()
	}
	return apiErr
}

func decodeError(err error) *APIError {
	return &APIError{Status: http.StatusOK, Message: "invalid response", Cause: err}
}
