package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/retry"
)

// State is the coordinator's auth lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// RosterAPI fetches the counterpart roster and the server-side unseen counts.
type RosterAPI interface {
	Users(ctx context.Context) ([]User, map[string]int, error)
}

// Coordinator wires the session, the push channel and the stores together.
// It owns all channel lifecycle decisions: it opens the channel when a
// session appears, routes every pushed message to exactly one of the
// conversation store or the unseen index, and tears everything down on
// logout. Constructed once at startup and passed to consumers; there is no
// package-level instance.
type Coordinator struct {
	session      *SessionManager
	channel      *PresenceChannel
	conversation *ConversationStore
	unseen       *UnseenIndex
	roster       RosterAPI
	notify       Notifier
	network      retry.Policy

	clearUnseenOnSelect bool

	mu       sync.Mutex
	state    State
	users    []User
	selected string
	events   <-chan Event
}

// CoordinatorConfig collects the collaborators for NewCoordinator.
type CoordinatorConfig struct {
	Session      *SessionManager
	Channel      *PresenceChannel
	Conversation *ConversationStore
	Unseen       *UnseenIndex
	Roster       RosterAPI
	Notify       Notifier
	Network      retry.Policy

	// ClearUnseenOnSelect makes selecting a counterpart reset its unseen
	// counter.
	ClearUnseenOnSelect bool
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	notify := cfg.Notify
	if notify == nil {
		notify = LogNotifier{}
	}
	return &Coordinator{
		session:             cfg.Session,
		channel:             cfg.Channel,
		conversation:        cfg.Conversation,
		unseen:              cfg.Unseen,
		roster:              cfg.Roster,
		notify:              notify,
		network:             cfg.Network,
		clearUnseenOnSelect: cfg.ClearUnseenOnSelect,
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SelectedCounterpart returns the id of the selected counterpart, or "".
func (c *Coordinator) SelectedCounterpart() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Presence is the live online-user set.
func (c *Coordinator) Presence() *PresenceSet { return c.channel.Presence() }

// Roster returns a snapshot of the counterpart roster.
func (c *Coordinator) Roster() []User {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]User, len(c.users))
	copy(out, c.users)
	return out
}

// Initialize resolves a persisted session, if any, and brings the client
// online when one exists. Returns whether a session was resolved.
func (c *Coordinator) Initialize(ctx context.Context) bool {
	if !c.session.Initialize(ctx) {
		return false
	}
	c.enterAuthenticated(ctx)
	return true
}

// Login exchanges credentials for a session and brings the client online.
func (c *Coordinator) Login(ctx context.Context, mode LoginMode, credentials map[string]string) error {
	c.setState(StateAuthenticating)
	if err := c.session.Login(ctx, mode, credentials); err != nil {
		c.setState(StateUnauthenticated)
		return err
	}
	c.enterAuthenticated(ctx)
	return nil
}

// enterAuthenticated opens the push channel, attaches exactly one router to
// its event stream and loads the roster. A channel failure leaves the session
// usable over REST; the caller may Redial.
func (c *Coordinator) enterAuthenticated(ctx context.Context) {
	c.setState(StateAuthenticated)

	user, ok := c.session.User()
	if !ok {
		return
	}

	events, err := c.channel.Open(user.ID)
	if err != nil {
		jww.ERROR.Printf("open push channel: %v", err)
	} else {
		c.mu.Lock()
		if c.events != events {
			c.events = events
			go c.route(events)
		}
		c.mu.Unlock()
	}

	if err := c.LoadRoster(ctx); err != nil {
		jww.WARN.Printf("initial roster load: %v", err)
	}
}

// route consumes one channel instance's event stream until it closes.
func (c *Coordinator) route(events <-chan Event) {
	for ev := range events {
		switch e := ev.(type) {
		case MessageEvent:
			c.handleMessage(e.Message)
		case RosterEvent:
			jww.DEBUG.Printf("%d users online", len(e.UserIDs))
		}
	}
	c.mu.Lock()
	if c.events == events {
		c.events = nil
	}
	c.mu.Unlock()
}

// handleMessage routes one pushed message. A message from the selected
// counterpart lands in the conversation, flagged seen and acknowledged; any
// other message only bumps the sender's unseen counter. Never both.
func (c *Coordinator) handleMessage(m Message) {
	if m.SenderID != "" && m.SenderID == c.SelectedCounterpart() {
		m.Seen = true
		if c.conversation.Append(m) {
			c.conversation.MarkSeen(m.ID)
		}
		return
	}
	c.unseen.Increment(m.SenderID)
}

// SelectCounterpart switches the open conversation and loads its history.
// The empty id clears the selection.
func (c *Coordinator) SelectCounterpart(ctx context.Context, counterpartID string) error {
	c.mu.Lock()
	c.selected = counterpartID
	c.mu.Unlock()

	if counterpartID == "" {
		c.conversation.Clear()
		return nil
	}
	if c.clearUnseenOnSelect {
		c.unseen.Clear(counterpartID)
	}
	return c.conversation.LoadHistory(ctx, counterpartID)
}

// Send posts a message to the selected counterpart.
func (c *Coordinator) Send(ctx context.Context, payload SendPayload) (Message, error) {
	return c.conversation.Send(ctx, payload)
}

// LoadRoster fetches the counterpart roster and seeds the unseen index with
// the server's counts.
func (c *Coordinator) LoadRoster(ctx context.Context) error {
	var (
		users  []User
		counts map[string]int
	)
	err := c.network.Do(ctx, func() error {
		var rerr error
		users, counts, rerr = c.roster.Users(ctx)
		return rerr
	})
	if err != nil {
		c.notify.Notify(SeverityError, "Could not load contacts")
		return errors.Wrap(err, "load roster")
	}

	c.mu.Lock()
	c.users = users
	c.mu.Unlock()
	c.unseen.Seed(counts)
	return nil
}

// Logout tears everything down: the channel first (which ends the router and
// clears presence), then the credential state, then the in-memory stores.
// Calling it while logged out is harmless.
func (c *Coordinator) Logout() {
	c.channel.Close()
	c.session.Logout()
	c.conversation.Clear()
	c.unseen.ClearAll()

	c.mu.Lock()
	c.users = nil
	c.selected = ""
	c.state = StateUnauthenticated
	c.events = nil
	c.mu.Unlock()
}
