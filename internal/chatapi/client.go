// Package chatapi is the HTTP client for the remote chat, greeting and quiz API.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/logger"
)

// DefaultTimeout bounds every request to the remote API.
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 4 << 10

// Greeting is the opening message for a session.
type Greeting struct {
	GreetingMessage string    `json:"greetingMessage"`
	SessionID       string    `json:"sessionId"`
	Timestamp       time.Time `json:"timestamp"`
}

type SendRequest struct {
	Message                  string `json:"message"`
	SessionID                string `json:"sessionId"`
	ConversationID           string `json:"conversationId,omitempty"`
	IncludeArchetypeAnalysis bool   `json:"includeArchetypeAnalysis"`
	UseEnhancedResponse      bool   `json:"useEnhancedResponse"`
}

type SessionMetadata struct {
	ConversationID string `json:"conversationId,omitempty"`
	MessageCount   int    `json:"messageCount,omitempty"`
}

type ReplyData struct {
	Response        string          `json:"response"`
	SessionMetadata SessionMetadata `json:"sessionMetadata"`
}

// SendResponse mirrors the remote envelope. Data is nil when the server sent none.
type SendResponse struct {
	Success bool       `json:"success"`
	Data    *ReplyData `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// QuizSubmission is the payload persisted remotely once a quiz is scored.
type QuizSubmission struct {
	QuizID         string                      `json:"quizId"`
	SessionID      string                      `json:"sessionId,omitempty"`
	Archetype      domain.Category             `json:"archetype"`
	TotalScores    map[domain.Category]float64 `json:"totalScores"`
	CoreCounts     map[domain.Category]int     `json:"coreCounts"`
	UsedTieBreaker bool                        `json:"usedTieBreaker"`
	TieRule        string                      `json:"tieRuleDescription,omitempty"`
	Answers        []domain.AnswerSubmission   `json:"answers"`
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("chat api http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// APIError is returned when the server answers 2xx with success=false.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "chat api: request rejected"
	}
	return "chat api: " + e.Message
}

type Client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for baseURL. A non-positive timeout uses DefaultTimeout.
func NewClient(log *logger.Logger, baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("chat api base url not configured")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse chat api base url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		log:        log.With("component", "chatapi"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) GetGreeting(ctx context.Context, sessionID string) (Greeting, error) {
	var g Greeting
	path := "/api/chat/greeting?sessionId=" + url.QueryEscape(sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &g); err != nil {
		return Greeting{}, err
	}
	return g, nil
}

// SendMessage posts one user turn. A success=false envelope becomes *APIError;
// a success envelope is returned as-is even when Data is missing.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (SendResponse, error) {
	var resp SendResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat/message", req, &resp); err != nil {
		return SendResponse{}, err
	}
	if !resp.Success {
		return resp, &APIError{Message: resp.Error}
	}
	return resp, nil
}

func (c *Client) SubmitQuiz(ctx context.Context, sub QuizSubmission) error {
	var resp SendResponse
	if err := c.do(ctx, http.MethodPost, "/api/quiz/submit", sub, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &APIError{Message: resp.Error}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("chat api request failed", "method", method, "path", stripQuery(path), "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warn("chat api non-2xx", "method", method, "path", stripQuery(path), "status", resp.StatusCode)
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", stripQuery(path), err)
	}
	c.log.Debug("chat api request", "method", method, "path", stripQuery(path), "elapsed", time.Since(start))
	return nil
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
