package chat

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/retry"
)

// LoginMode selects the credential-exchange endpoint.
type LoginMode string

const (
	ModeLogin  LoginMode = "login"
	ModeSignup LoginMode = "signup"
)

// tokenKey is the single fixed key the auth token is persisted under.
const tokenKey = "token"

// AuthAPI is the REST surface the session manager uses. SetToken/ClearToken
// control the token attached to every outbound request.
type AuthAPI interface {
	SetToken(tok string)
	ClearToken()
	Check(ctx context.Context) (User, error)
	Login(ctx context.Context, mode LoginMode, credentials map[string]string) (User, string, string, error)
	UpdateProfile(ctx context.Context, payload ProfilePayload) (User, error)
}

// TokenStore is the durable storage the token lives in across restarts.
// GetItem returns os.ErrNotExist when the key is absent.
type TokenStore interface {
	GetItem(key string) ([]byte, error)
	SetItem(key string, value []byte) error
	RemoveItem(key string) error
}

// SessionManager owns the identity lifecycle and the credential token. Its
// operations never raise auth or network faults to the caller as the only
// signal; every failure is also converted to a notification (or, for startup
// token rejection, swallowed).
type SessionManager struct {
	api      AuthAPI
	tokens   TokenStore
	notify   Notifier
	policies retry.Policies

	mu    sync.RWMutex
	user  *User
	token string
}

func NewSessionManager(authAPI AuthAPI, tokens TokenStore, notify Notifier, policies retry.Policies) *SessionManager {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &SessionManager{api: authAPI, tokens: tokens, notify: notify, policies: policies}
}

// Authenticated reports whether a session is active.
func (m *SessionManager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// User returns the session identity, if any.
func (m *SessionManager) User() (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return User{}, false
	}
	return *m.user, true
}

// Initialize resolves a session from the persisted token. A missing, stale or
// rejected token leaves the manager unauthenticated without notifying: the
// app stays usable at the login surface.
func (m *SessionManager) Initialize(ctx context.Context) bool {
	raw, err := m.tokens.GetItem(tokenKey)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			jww.WARN.Printf("read persisted token: %v", err)
		}
		return false
	}
	tok := string(raw)
	if tok == "" {
		return false
	}

	m.api.SetToken(tok)
	var user User
	err = m.policies.Auth.Do(ctx, func() error {
		var cerr error
		user, cerr = m.api.Check(ctx)
		return cerr
	})
	if err != nil {
		if errors.Is(err, ErrAuthRejected) {
			jww.INFO.Printf("persisted token rejected, starting unauthenticated")
		} else {
			jww.WARN.Printf("auth check failed: %v", err)
		}
		m.api.ClearToken()
		return false
	}

	m.mu.Lock()
	m.user = &user
	m.token = tok
	m.mu.Unlock()
	jww.INFO.Printf("session resolved for %s", user.ID)
	return true
}

// Login exchanges credentials for a session and token. On success the token
// is persisted and attached to all future requests; on failure state is left
// unchanged and the failure surfaces as a notification.
func (m *SessionManager) Login(ctx context.Context, mode LoginMode, credentials map[string]string) error {
	var (
		user User
		tok  string
		msg  string
	)
	err := m.policies.Auth.Do(ctx, func() error {
		var lerr error
		user, tok, msg, lerr = m.api.Login(ctx, mode, credentials)
		return lerr
	})
	if err != nil {
		m.notify.Notify(SeverityError, err.Error())
		return err
	}

	if err := m.tokens.SetItem(tokenKey, []byte(tok)); err != nil {
		// The session still works for this process; it just won't survive
		// a restart.
		jww.WARN.Printf("persist token: %v", err)
	}
	m.api.SetToken(tok)

	m.mu.Lock()
	m.user = &user
	m.token = tok
	m.mu.Unlock()

	if msg == "" {
		msg = "Logged in successfully"
	}
	m.notify.Notify(SeveritySuccess, msg)
	return nil
}

// Logout clears the credential state: persisted token, request token and the
// session identity. Calling it with no active session only re-clears empty
// state.
func (m *SessionManager) Logout() {
	if err := m.tokens.RemoveItem(tokenKey); err != nil {
		jww.WARN.Printf("remove persisted token: %v", err)
	}
	m.api.ClearToken()

	m.mu.Lock()
	m.user = nil
	m.token = ""
	m.mu.Unlock()

	m.notify.Notify(SeveritySuccess, "Logged out successfully")
}

// UpdateProfile mutates the session's display fields. On failure the session
// is left unchanged.
func (m *SessionManager) UpdateProfile(ctx context.Context, payload ProfilePayload) error {
	if !m.Authenticated() {
		return ErrNotAuthenticated
	}

	var user User
	err := m.policies.Network.Do(ctx, func() error {
		var uerr error
		user, uerr = m.api.UpdateProfile(ctx, payload)
		return uerr
	})
	if err != nil {
		m.notify.Notify(SeverityError, "Profile update failed")
		return err
	}

	m.mu.Lock()
	m.user = &user
	m.mu.Unlock()
	m.notify.Notify(SeveritySuccess, "Profile updated successfully")
	return nil
}
