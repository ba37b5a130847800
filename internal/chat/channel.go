package chat

import (
	"encoding/json"
	neturl "net/url"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Conn is the subset of a websocket connection the channel needs. Tests
// substitute scripted fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Dialer establishes a Conn to the given URL.
type Dialer func(url string) (Conn, error)

func wsDial(url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Event is a typed push-channel event delivered to the subscriber.
type Event interface {
	isEvent()
}

// RosterEvent carries the full set of online user ids.
type RosterEvent struct {
	UserIDs []string
}

func (RosterEvent) isEvent() {}

// MessageEvent carries one pushed message.
type MessageEvent struct {
	Message Message
}

func (MessageEvent) isEvent() {}

const eventBuffer = 64

// PresenceChannel holds the single persistent push connection of an
// authenticated session. Each successful Open yields exactly one event stream;
// the stream is closed when the connection goes away. The channel never
// redials on its own: after a drop the caller decides whether to Redial.
type PresenceChannel struct {
	url    string
	dial   Dialer
	notify Notifier

	presence *PresenceSet

	mu     sync.Mutex
	conn   Conn
	userID string
	events chan Event
}

func NewPresenceChannel(socketURL string, notify Notifier) *PresenceChannel {
	return newPresenceChannel(socketURL, notify, wsDial)
}

func newPresenceChannel(socketURL string, notify Notifier, dial Dialer) *PresenceChannel {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &PresenceChannel{
		url:      socketURL,
		dial:     dial,
		notify:   notify,
		presence: NewPresenceSet(),
	}
}

// Presence is the live online-user set. Shared read-only; only the channel
// mutates it.
func (ch *PresenceChannel) Presence() *PresenceSet { return ch.presence }

// Connected reports whether a live connection exists.
func (ch *PresenceChannel) Connected() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn != nil
}

// Open connects the channel for the given user and returns its event stream.
// Opening an already-open channel is a no-op that returns the existing
// stream.
func (ch *PresenceChannel) Open(userID string) (<-chan Event, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.conn != nil {
		jww.DEBUG.Printf("presence channel already open for %s", ch.userID)
		return ch.events, nil
	}

	conn, err := ch.dial(ch.url + "?userId=" + neturl.QueryEscape(userID))
	if err != nil {
		ch.notify.Notify(SeverityError, "Could not connect to chat server")
		return nil, errors.Wrap(err, "dial push channel")
	}

	ch.conn = conn
	ch.userID = userID
	ch.events = make(chan Event, eventBuffer)
	go ch.readPump(conn, ch.events)

	jww.INFO.Printf("presence channel open for %s", userID)
	return ch.events, nil
}

// Close tears the connection down. Closing an already-closed channel is a
// no-op.
func (ch *PresenceChannel) Close() {
	ch.mu.Lock()
	conn := ch.conn
	ch.conn = nil
	ch.events = nil
	ch.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	ch.presence.Clear()
	jww.INFO.Printf("presence channel closed")
}

// Redial closes any current connection and opens a fresh one for the last
// user. It is the explicit recovery action after a dropped connection.
func (ch *PresenceChannel) Redial() (<-chan Event, error) {
	ch.mu.Lock()
	userID := ch.userID
	ch.mu.Unlock()
	if userID == "" {
		return nil, errors.New("presence channel was never opened")
	}
	ch.Close()
	return ch.Open(userID)
}

// readPump decodes frames off one connection until it dies, forwarding events
// to the stream. It is the stream's only sender and closes it on exit.
func (ch *PresenceChannel) readPump(conn Conn, events chan Event) {
	defer close(events)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ch.mu.Lock()
			dropped := ch.conn == conn
			if dropped {
				ch.conn = nil
			}
			ch.mu.Unlock()
			if dropped {
				jww.WARN.Printf("push channel dropped: %v", err)
				ch.presence.Clear()
				ch.notify.Notify(SeverityError, "Connection to chat server lost")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			jww.WARN.Printf("malformed push frame: %v", err)
			continue
		}
		switch f.Event {
		case EventOnlineUsers:
			var ids []string
			if err := json.Unmarshal(f.Data, &ids); err != nil {
				jww.WARN.Printf("malformed %s payload: %v", f.Event, err)
				continue
			}
			ch.presence.Replace(ids)
			events <- RosterEvent{UserIDs: ids}
		case EventNewMessage:
			var m Message
			if err := json.Unmarshal(f.Data, &m); err != nil {
				jww.WARN.Printf("malformed %s payload: %v", f.Event, err)
				continue
			}
			events <- MessageEvent{Message: m}
		default:
			jww.DEBUG.Printf("ignoring unknown push event %q", f.Event)
		}
	}
}
