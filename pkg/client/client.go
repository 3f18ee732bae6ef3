package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/tutor-quest/internal/grading"
	"github.com/terra-clan/tutor-quest/internal/models"
)

// Client is a Go SDK for the tutor-quest API
type Client struct {
	baseURL    string
	adminKey   string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAdminKey sets the shared secret sent to admin endpoints
func WithAdminKey(key string) Option {
	return func(c *Client) {
		c.adminKey = key
	}
}

// NewClient creates a new tutor-quest client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the server
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// Questions lists the applicant-facing question set
func (c *Client) Questions(ctx context.Context) ([]models.QuestionView, error) {
	var data struct {
		Questions []models.QuestionView `json:"questions"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/catalog/questions", nil, false, &data); err != nil {
		return nil, err
	}
	return data.Questions, nil
}

// Items lists the purchasable catalog
func (c *Client) Items(ctx context.Context) ([]models.CatalogItem, error) {
	var data struct {
		Items []models.CatalogItem `json:"items"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/catalog/items", nil, false, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// Avatars lists the selectable avatars
func (c *Client) Avatars(ctx context.Context) ([]models.Avatar, error) {
	var data struct {
		Avatars []models.Avatar `json:"avatars"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/catalog/avatars", nil, false, &data); err != nil {
		return nil, err
	}
	return data.Avatars, nil
}

// Rules returns the reward rules
func (c *Client) Rules(ctx context.Context) (models.Rules, error) {
	var rules models.Rules
	err := c.call(ctx, http.MethodGet, "/api/v1/catalog/rules", nil, false, &rules)
	return rules, err
}

// StartSession opens a new live session
func (c *Client) StartSession(ctx context.Context) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, "/api/v1/sessions", nil)
}

// GetSession returns the current state of a session
func (c *Client) GetSession(ctx context.Context, token string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodGet, sessionPath(token, ""), nil)
}

// Answer records the answer at position
func (c *Client) Answer(ctx context.Context, token string, position int, text string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "answer"), models.AnswerRequest{Position: position, Text: text})
}

// Back moves the cursor to the previous question
func (c *Client) Back(ctx context.Context, token string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "back"), nil)
}

// Advance rewards the current question and moves forward
func (c *Client) Advance(ctx context.Context, token string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "advance"), nil)
}

// Purchase buys a catalog item
func (c *Client) Purchase(ctx context.Context, token, itemID string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "purchase"), models.PurchaseRequest{ItemID: itemID})
}

// UpdateIdentity replaces the applicant profile
func (c *Client) UpdateIdentity(ctx context.Context, token string, identity models.Identity) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPut, sessionPath(token, "identity"), identity)
}

// ChooseAvatar selects an avatar
func (c *Client) ChooseAvatar(ctx context.Context, token, avatarID string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPut, sessionPath(token, "avatar"), models.AvatarRequest{AvatarID: avatarID})
}

// ToggleFlag marks or unmarks the question at position for review
func (c *Client) ToggleFlag(ctx context.Context, token string, position int) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "flag"), models.PositionRequest{Position: position})
}

// Resume restores the stored draft of the current applicant
func (c *Client) Resume(ctx context.Context, token string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "resume"), nil)
}

// Reset clears progress but keeps identity and avatar
func (c *Client) Reset(ctx context.Context, token string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "reset"), nil)
}

// Submit finalizes the attempt
func (c *Client) Submit(ctx context.Context, token string) (*models.Outcome, error) {
	return c.outcome(ctx, http.MethodPost, sessionPath(token, "submit"), nil)
}

// ListSubmissions returns every stored submission (admin)
func (c *Client) ListSubmissions(ctx context.Context) (*models.SubmissionList, error) {
	var list models.SubmissionList
	if err := c.call(ctx, http.MethodGet, "/api/v1/admin/submissions", nil, true, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// ClearSubmissions deletes every stored submission (admin)
func (c *Client) ClearSubmissions(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/admin/submissions", nil, true, nil)
}

// Grades returns the puzzle report of every submission (admin)
func (c *Client) Grades(ctx context.Context) ([]grading.Report, error) {
	var data struct {
		Grades []grading.Report `json:"grades"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/admin/submissions/grades", nil, true, &data); err != nil {
		return nil, err
	}
	return data.Grades, nil
}

// ExportCSV returns the raw CSV export of all submissions (admin)
func (c *Client) ExportCSV(ctx context.Context) ([]byte, error) {
	status, body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/submissions/export.csv", nil, true)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, decodeError(status, body)
	}
	return body, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, false, nil)
}

// SessionConn is an open action channel for one session
type SessionConn struct {
	conn *websocket.Conn
	// Initial is the session state sent on connect
	Initial models.Outcome
}

// DialSession opens the WebSocket action channel of a session
func (c *Client) DialSession(ctx context.Context, token string) (*SessionConn, error) {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + sessionPath(token, "ws")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, decodeError(resp.StatusCode, body)
		}
		return nil, fmt.Errorf("failed to dial session: %w", err)
	}

	sc := &SessionConn{conn: conn}
	msg, err := sc.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if msg.Outcome != nil {
		sc.Initial = *msg.Outcome
	}
	return sc, nil
}

// Send applies one action and waits for its outcome
func (sc *SessionConn) Send(action models.Action) (*models.Outcome, error) {
	if err := sc.conn.WriteJSON(action); err != nil {
		return nil, fmt.Errorf("failed to send action: %w", err)
	}

	msg, err := sc.read()
	if err != nil {
		return nil, err
	}
	if msg.Type == "error" {
		if msg.Error == nil {
			return nil, &APIError{Code: "unknown", Message: "error frame without details"}
		}
		return nil, msg.Error
	}
	return msg.Outcome, nil
}

// Close closes the channel
func (sc *SessionConn) Close() error {
	return sc.conn.Close()
}

type sessionMessage struct {
	Type    string          `json:"type"`
	Outcome *models.Outcome `json:"outcome,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

func (sc *SessionConn) read() (sessionMessage, error) {
	var msg sessionMessage
	if err := sc.conn.ReadJSON(&msg); err != nil {
		return msg, fmt.Errorf("failed to read session message: %w", err)
	}
	return msg, nil
}

func sessionPath(token, action string) string {
	path := "/api/v1/sessions/" + token
	if action != "" {
		path += "/" + action
	}
	return path
}

func (c *Client) outcome(ctx context.Context, method, path string, payload interface{}) (*models.Outcome, error) {
	var out models.Outcome
	if err := c.call(ctx, method, path, payload, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call sends payload as JSON and decodes the envelope data into out
func (c *Client) call(ctx context.Context, method, path string, payload interface{}, admin bool, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, resp, err := c.doRequest(ctx, method, path, body, admin)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, resp)
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !result.Success {
		if result.Error == nil {
			return &APIError{StatusCode: status, Code: "unknown", Message: "request was not successful"}
		}
		result.Error.StatusCode = status
		return result.Error
	}

	if out != nil && len(result.Data) > 0 {
		if err := json.Unmarshal(result.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var result struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Error == nil {
		return &APIError{StatusCode: status, Code: "http_error", Message: strings.TrimSpace(string(body))}
	}
	result.Error.StatusCode = status
	return result.Error
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, admin bool) (int, []byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if admin && c.adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
