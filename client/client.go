// Package client is the Go SDK for the taskflow service. It covers the
// identity endpoints, task mutations and the live task stream.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/mohdragon010/taskflow/domain"
)

// User is the authenticated account as reported by the service.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// IdentityError is a rejected identity operation. Message is safe to show to
// the end user as-is.
type IdentityError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *IdentityError) Error() string {
	return e.Message
}

// Fallback messages for codes the server did not annotate, plus client-only
// conditions such as a blocked sign-in popup.
var identityMessages = map[string]string{
	"email-already-registered": "Email is already in use",
	"malformed-email":          "Invalid email address",
	"weak-password":            "Password should be at least 6 characters",
	"invalid-credentials":      "Invalid email or password",
	"federated-rejected":       "Federated sign-in failed. Please try again.",
	"popup-blocked":            "Popup blocked! Please allow popups for this site.",
}

const genericIdentityMessage = "Something went wrong, try again"

// Client talks to a taskflow service. It is safe for concurrent use.
type Client struct {
	baseURL string
	httpc   *http.Client
	stream  *http.Client
	logger  *log.Logger

	mu    sync.RWMutex
	token string
}

// New creates a Client for the service at baseURL.
func New(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		stream:  &http.Client{},
		logger:  logger,
	}
}

// SetToken installs a previously obtained session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current session token, empty when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type sessionResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Signup registers a new account and signs it in.
func (c *Client) Signup(ctx context.Context, email, password, displayName string) (User, error) {
	return c.openSession(ctx, "/api/signup", map[string]string{
		"email": email, "password": password, "displayName": displayName,
	})
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	return c.openSession(ctx, "/api/login", map[string]string{
		"email": email, "password": password,
	})
}

// FederatedLogin exchanges an external identity provider token for a session.
func (c *Client) FederatedLogin(ctx context.Context, idToken string) (User, error) {
	return c.openSession(ctx, "/api/federated", map[string]string{"idToken": idToken})
}

func (c *Client) openSession(ctx context.Context, path string, body any) (User, error) {
	var sr sessionResponse
	if err := c.do(ctx, http.MethodPost, path, body, &sr); err != nil {
		return User{}, err
	}
	c.SetToken(sr.Token)
	return sr.User, nil
}

// Logout ends the session on the server and clears the local token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
	c.SetToken("")
	return err
}

// CurrentUser resolves the session token to its account. A rejected token
// yields (nil, nil): not signed in is not an error.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var sr sessionResponse
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &sr)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusUnauthorized {
			return nil, nil
		}
		return nil, err
	}
	u := sr.User
	return &u, nil
}

// UpdateDisplayName changes the signed-in account's display name.
func (c *Client) UpdateDisplayName(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPatch, "/api/profile", map[string]string{"displayName": name}, nil)
}

// Tasks fetches the full task list.
func (c *Client) Tasks(ctx context.Context) ([]domain.Task, error) {
	var tr struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tr); err != nil {
		return nil, err
	}
	return tr.Tasks, nil
}

// CreateTask adds a task. The title is trimmed locally and empty titles are
// rejected without a request.
func (c *Client) CreateTask(ctx context.Context, title string) (domain.Task, error) {
	title, err := domain.NormalizeTitle(title)
	if err != nil {
		return domain.Task{}, err
	}
	var t domain.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", map[string]string{"title": title}, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// RenameTask replaces a task's title.
func (c *Client) RenameTask(ctx context.Context, id, title string) error {
	title, err := domain.NormalizeTitle(title)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, "/api/tasks/"+id, map[string]any{"title": title}, nil)
}

// ToggleTask flips a task's completion. The caller passes the completion
// state it currently sees; the server stores the negation.
func (c *Client) ToggleTask(ctx context.Context, id string, currentCompleted bool) error {
	return c.do(ctx, http.MethodPatch, "/api/tasks/"+id, map[string]any{"completed": !currentCompleted}, nil)
}

// DeleteTask removes a task. Deleting a task that no longer exists succeeds.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return nil
	}
	return err
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t := c.Token(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
}

// decodeError prefers the structured identity error shape and falls back to a
// plain status error with the raw body.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var ie IdentityError
	if err := sonic.ConfigStd.Unmarshal(raw, &ie); err == nil && ie.Code != "" {
		if ie.Message == "" {
			ie.Message = IdentityMessage(ie.Code)
		}
		return &ie
	}
	return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
}

// IdentityMessage maps an identity error code to its user-facing message.
// Unknown codes get a generic message.
func IdentityMessage(code string) string {
	if msg, ok := identityMessages[code]; ok {
		return msg
	}
	return genericIdentityMessage
}
