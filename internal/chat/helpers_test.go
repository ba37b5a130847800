package chat

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingNotifier) Notify(severity Severity, text string) {
	r.mu.Lock()
	r.entries = append(r.entries, severity.String()+": "+text)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

// memTokenStore is an in-memory TokenStore.
type memTokenStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{items: map[string][]byte{}}
}

func (s *memTokenStore) GetItem(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return v, nil
}

func (s *memTokenStore) SetItem(key string, value []byte) error {
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
	return nil
}

func (s *memTokenStore) RemoveItem(key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *memTokenStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// stubMessageAPI implements MessageAPI with pluggable behavior.
type stubMessageAPI struct {
	mu         sync.Mutex
	messagesFn func(ctx context.Context, counterpartID string) ([]Message, error)
	sendFn     func(ctx context.Context, counterpartID string, payload SendPayload) (Message, error)
	markErr    error
	marked     []string
}

func (s *stubMessageAPI) Messages(ctx context.Context, counterpartID string) ([]Message, error) {
	if s.messagesFn != nil {
		return s.messagesFn(ctx, counterpartID)
	}
	return nil, nil
}

func (s *stubMessageAPI) Send(ctx context.Context, counterpartID string, payload SendPayload) (Message, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, counterpartID, payload)
	}
	return Message{}, nil
}

func (s *stubMessageAPI) MarkSeen(_ context.Context, messageID string) error {
	s.mu.Lock()
	s.marked = append(s.marked, messageID)
	s.mu.Unlock()
	return s.markErr
}

func (s *stubMessageAPI) markedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.marked))
	copy(out, s.marked)
	return out
}

// stubAuthAPI implements AuthAPI with canned responses.
type stubAuthAPI struct {
	mu         sync.Mutex
	token      string
	checkUser  User
	checkErr   error
	checkCalls int
	loginUser  User
	loginToken string
	loginMsg   string
	loginErr   error
	updateUser User
	updateErr  error
}

func (s *stubAuthAPI) SetToken(tok string) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

func (s *stubAuthAPI) ClearToken() { s.SetToken("") }

func (s *stubAuthAPI) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *stubAuthAPI) Check(context.Context) (User, error) {
	s.mu.Lock()
	s.checkCalls++
	s.mu.Unlock()
	return s.checkUser, s.checkErr
}

func (s *stubAuthAPI) Login(context.Context, LoginMode, map[string]string) (User, string, string, error) {
	return s.loginUser, s.loginToken, s.loginMsg, s.loginErr
}

func (s *stubAuthAPI) UpdateProfile(context.Context, ProfilePayload) (User, error) {
	return s.updateUser, s.updateErr
}

// stubRosterAPI implements RosterAPI with canned responses.
type stubRosterAPI struct {
	users  []User
	counts map[string]int
	err    error
}

func (s *stubRosterAPI) Users(context.Context) ([]User, map[string]int, error) {
	return s.users, s.counts, s.err
}

// fakeConn is a scripted Conn. ReadMessage blocks until a frame is pushed or
// the connection is closed.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.frames:
		return 1, b, nil
	case <-c.closed:
		return 0, nil, os.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	b, err := json.Marshal(Frame{Event: event, Data: raw})
	require.NoError(t, err)
	c.frames <- b
}

func (c *fakeConn) pushRaw(b []byte) { c.frames <- b }

// fakeDialer hands out fakeConns and records handshake URLs.
type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) dial(url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) latest() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
