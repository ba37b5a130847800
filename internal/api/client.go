// Package api is the JSON/REST client for the chat backend. It speaks the
// envelope format the server uses everywhere: {"success": bool, ...} with the
// operation result nested under an operation-specific key.
package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/chat"
)

// TokenHeader is the request header carrying the auth token.
const TokenHeader = "token"

// Client issues authenticated requests against the REST surface. The token is
// attached to every request once set; ClearToken drops it.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &fasthttp.Client{},
	}
}

// SetToken attaches tok to all future requests.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// ClearToken removes the attached token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the currently attached token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// envelope mirrors the server response body. Only the fields relevant to a
// given endpoint are populated.
type envelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	Token          string          `json:"token"`
	User           *chat.User      `json:"user"`
	UserData       *chat.User      `json:"userData"`
	Users          []chat.User     `json:"users"`
	UnseenMessages map[string]int  `json:"unseenMessages"`
	Messages       []chat.Message  `json:"messages"`
	NewMessage     *chat.Message   `json:"newMessage"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if tok := c.Token(); tok != "" {
		req.Header.Set(TokenHeader, tok)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s body", path)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(b)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, errors.Wrapf(err, "decode %s response", path)
	}
	status := resp.StatusCode()
	if status >= fasthttp.StatusBadRequest || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fasthttp.StatusMessage(status)
		}
		return nil, &Error{Status: status, Message: msg}
	}
	return &env, nil
}

// Check resolves the session behind the attached token.
func (c *Client) Check(ctx context.Context) (chat.User, error) {
	env, err := c.do(ctx, fasthttp.MethodGet, "/api/auth/check", nil)
	if err != nil {
		return chat.User{}, err
	}
	if env.User == nil {
		return chat.User{}, errors.New("auth check: missing user in response")
	}
	return *env.User, nil
}

// Login exchanges credentials for a session and token via /api/auth/login or
// /api/auth/signup depending on mode.
func (c *Client) Login(ctx context.Context, mode chat.LoginMode, credentials map[string]string) (chat.User, string, string, error) {
	env, err := c.do(ctx, fasthttp.MethodPost, "/api/auth/"+string(mode), credentials)
	if err != nil {
		return chat.User{}, "", "", err
	}
	if env.UserData == nil || env.Token == "" {
		return chat.User{}, "", "", errors.New("login: incomplete response")
	}
	return *env.UserData, env.Token, env.Message, nil
}

// UpdateProfile mutates the identity's display fields and returns the updated
// user.
func (c *Client) UpdateProfile(ctx context.Context, payload chat.ProfilePayload) (chat.User, error) {
	env, err := c.do(ctx, fasthttp.MethodPut, "/api/auth/update-profile", payload)
	if err != nil {
		return chat.User{}, err
	}
	if env.User == nil {
		return chat.User{}, errors.New("update profile: missing user in response")
	}
	return *env.User, nil
}

// Users fetches the counterpart roster along with the initial unseen counts.
func (c *Client) Users(ctx context.Context) ([]chat.User, map[string]int, error) {
	env, err := c.do(ctx, fasthttp.MethodGet, "/api/messages/users", nil)
	if err != nil {
		return nil, nil, err
	}
	return env.Users, env.UnseenMessages, nil
}

// Messages fetches the full history with one counterpart.
func (c *Client) Messages(ctx context.Context, counterpartID string) ([]chat.Message, error) {
	env, err := c.do(ctx, fasthttp.MethodGet, "/api/messages/"+counterpartID, nil)
	if err != nil {
		return nil, err
	}
	return env.Messages, nil
}

// Send posts a message to the counterpart and returns the persisted record.
func (c *Client) Send(ctx context.Context, counterpartID string, payload chat.SendPayload) (chat.Message, error) {
	env, err := c.do(ctx, fasthttp.MethodPost, "/api/messages/send/"+counterpartID, payload)
	if err != nil {
		return chat.Message{}, err
	}
	if env.NewMessage == nil {
		return chat.Message{}, errors.New("send: missing message in response")
	}
	return *env.NewMessage, nil
}

// MarkSeen acknowledges a message as seen.
func (c *Client) MarkSeen(ctx context.Context, messageID string) error {
	_, err := c.do(ctx, fasthttp.MethodPut, "/api/messages/mark/"+messageID, nil)
	return err
}
