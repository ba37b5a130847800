package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/retry"
)

type fixture struct {
	co        *Coordinator
	session   *SessionManager
	channel   *PresenceChannel
	conv      *ConversationStore
	unseen    *UnseenIndex
	auth      *stubAuthAPI
	msgAPI    *stubMessageAPI
	rosterAPI *stubRosterAPI
	dialer    *fakeDialer
	tokens    *memTokenStore
	notifier  *recordingNotifier
}

func newFixture(clearUnseenOnSelect bool) *fixture {
	f := &fixture{
		auth: &stubAuthAPI{
			loginUser:  User{ID: "me", FullName: "Me"},
			loginToken: "tok",
			loginMsg:   "Logged in successfully",
			checkUser:  User{ID: "me", FullName: "Me"},
		},
		msgAPI: &stubMessageAPI{},
		rosterAPI: &stubRosterAPI{
			users: []User{{ID: "a", FullName: "Alice"}, {ID: "b", FullName: "Bruno"}},
		},
		dialer:   &fakeDialer{},
		tokens:   newMemTokenStore(),
		notifier: &recordingNotifier{},
		unseen:   NewUnseenIndex(),
	}
	policies := retry.Defaults()
	f.session = NewSessionManager(f.auth, f.tokens, f.notifier, policies)
	f.channel = newPresenceChannel("ws://test/ws", f.notifier, f.dialer.dial)
	f.conv = NewConversationStore(f.msgAPI, f.notifier, policies.Network)
	f.co = NewCoordinator(CoordinatorConfig{
		Session:             f.session,
		Channel:             f.channel,
		Conversation:        f.conv,
		Unseen:              f.unseen,
		Roster:              f.rosterAPI,
		Notify:              f.notifier,
		Network:             policies.Network,
		ClearUnseenOnSelect: clearUnseenOnSelect,
	})
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.co.Login(context.Background(), ModeLogin, nil))
}

func TestCoordinatorLoginBringsClientOnline(t *testing.T) {
	f := newFixture(true)
	f.rosterAPI.counts = map[string]int{"b": 2}

	f.login(t)

	assert.Equal(t, StateAuthenticated, f.co.State())
	assert.True(t, f.channel.Connected())
	require.Len(t, f.co.Roster(), 2)
	assert.Equal(t, 2, f.unseen.Count("b"), "roster fetch seeds unseen counts")

	// First roster push yields the authoritative presence set.
	f.dialer.latest().push(t, EventOnlineUsers, []string{"u2", "u3"})
	require.Eventually(t, func() bool {
		return f.co.Presence().Len() == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"u2", "u3"}, f.co.Presence().IDs())
}

func TestCoordinatorLoginFailure(t *testing.T) {
	f := newFixture(true)
	f.auth.loginErr = ErrAuthRejected

	require.Error(t, f.co.Login(context.Background(), ModeLogin, nil))
	assert.Equal(t, StateUnauthenticated, f.co.State())
	assert.False(t, f.channel.Connected())
}

func TestCoordinatorRoutesSelectedCounterpartMessage(t *testing.T) {
	f := newFixture(true)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))

	f.dialer.latest().push(t, EventNewMessage, Message{ID: "m1", SenderID: "a", ReceiverID: "me", Text: "hi"})

	require.Eventually(t, func() bool {
		return len(f.conv.Messages()) == 1
	}, time.Second, time.Millisecond)
	held := f.conv.Messages()[0]
	assert.True(t, held.Seen, "message delivered into the open conversation is seen")
	assert.Equal(t, "hi", held.Text)

	f.conv.ackWG.Wait()
	assert.Equal(t, []string{"m1"}, f.msgAPI.markedIDs(), "seen messages are acknowledged")
	assert.Zero(t, f.unseen.Count("a"), "a held message is never also counted unseen")
}

func TestCoordinatorRoutesOtherCounterpartMessage(t *testing.T) {
	f := newFixture(true)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))

	f.dialer.latest().push(t, EventNewMessage, Message{ID: "m2", SenderID: "b", ReceiverID: "me", Text: "hey"})

	require.Eventually(t, func() bool {
		return f.unseen.Count("b") == 1
	}, time.Second, time.Millisecond)
	assert.Empty(t, f.conv.Messages(), "conversation for a stays unchanged")
}

func TestCoordinatorDuplicatePushCountsNowhere(t *testing.T) {
	f := newFixture(true)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))

	m := Message{ID: "m1", SenderID: "a", ReceiverID: "me", Text: "hi"}
	f.co.handleMessage(m)
	f.co.handleMessage(m)

	assert.Len(t, f.conv.Messages(), 1)
	assert.Zero(t, f.unseen.Count("a"))
	f.conv.ackWG.Wait()
	assert.Equal(t, []string{"m1"}, f.msgAPI.markedIDs(), "duplicate is not re-acknowledged")
}

func TestCoordinatorCounterConservation(t *testing.T) {
	f := newFixture(false)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))

	// a selected: a->store, b and c ->unseen.
	f.co.handleMessage(Message{ID: "1", SenderID: "a"})
	f.co.handleMessage(Message{ID: "2", SenderID: "b"})
	f.co.handleMessage(Message{ID: "3", SenderID: "c"})
	f.co.handleMessage(Message{ID: "4", SenderID: "b"})

	require.NoError(t, f.co.SelectCounterpart(context.Background(), "b"))

	// b selected: b->store, a->unseen.
	f.co.handleMessage(Message{ID: "5", SenderID: "b"})
	f.co.handleMessage(Message{ID: "6", SenderID: "a"})

	// 4 of the 6 pushes arrived for a non-selected sender.
	assert.Equal(t, 4, f.unseen.Total())
	assert.Equal(t, 1, f.unseen.Count("a"))
	assert.Equal(t, 2, f.unseen.Count("b"))
	assert.Equal(t, 1, f.unseen.Count("c"))
	f.conv.ackWG.Wait()
}

func TestCoordinatorClearUnseenOnSelect(t *testing.T) {
	f := newFixture(true)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))
	f.co.handleMessage(Message{ID: "1", SenderID: "b"})
	require.Equal(t, 1, f.unseen.Count("b"))

	require.NoError(t, f.co.SelectCounterpart(context.Background(), "b"))
	assert.Zero(t, f.unseen.Count("b"))
}

func TestCoordinatorKeepUnseenOnSelect(t *testing.T) {
	f := newFixture(false)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))
	f.co.handleMessage(Message{ID: "1", SenderID: "b"})

	require.NoError(t, f.co.SelectCounterpart(context.Background(), "b"))
	assert.Equal(t, 1, f.unseen.Count("b"), "reset on select is opt-in")
}

func TestCoordinatorDeselect(t *testing.T) {
	f := newFixture(true)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))
	f.co.handleMessage(Message{ID: "1", SenderID: "a"})

	require.NoError(t, f.co.SelectCounterpart(context.Background(), ""))
	assert.Empty(t, f.conv.Messages())

	// With nothing selected every push counts as unseen.
	f.co.handleMessage(Message{ID: "2", SenderID: "a"})
	assert.Equal(t, 1, f.unseen.Count("a"))
	f.conv.ackWG.Wait()
}

func TestCoordinatorLogoutRoundTrip(t *testing.T) {
	f := newFixture(true)
	f.login(t)
	require.NoError(t, f.co.SelectCounterpart(context.Background(), "a"))
	f.co.handleMessage(Message{ID: "1", SenderID: "a"})
	f.co.handleMessage(Message{ID: "2", SenderID: "b"})
	f.dialer.latest().push(t, EventOnlineUsers, []string{"a", "b"})
	require.Eventually(t, func() bool { return f.co.Presence().Len() == 2 }, time.Second, time.Millisecond)

	f.co.Logout()

	assert.Equal(t, StateUnauthenticated, f.co.State())
	assert.False(t, f.channel.Connected())
	assert.False(t, f.session.Authenticated())
	assert.Zero(t, f.tokens.len(), "persisted token cleared")
	assert.Empty(t, f.conv.Messages())
	assert.Empty(t, f.conv.CounterpartID())
	assert.Zero(t, f.unseen.Total())
	assert.Zero(t, f.co.Presence().Len())
	assert.Empty(t, f.co.Roster())
	assert.Empty(t, f.co.SelectedCounterpart())
	f.conv.ackWG.Wait()

	// A second logout finds nothing left to clear.
	f.co.Logout()
	assert.Equal(t, StateUnauthenticated, f.co.State())
}

func TestCoordinatorReloginRoutesExactlyOnce(t *testing.T) {
	f := newFixture(true)
	f.login(t)
	f.co.Logout()
	f.login(t)

	require.Equal(t, 2, f.dialer.count(), "relogin dials a fresh connection")
	f.dialer.latest().push(t, EventNewMessage, Message{ID: "m1", SenderID: "b"})

	require.Eventually(t, func() bool {
		return f.unseen.Count("b") == 1
	}, time.Second, time.Millisecond)
	// Give a hypothetical duplicate router time to double-deliver.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.unseen.Count("b"))
}

func TestCoordinatorInitializeWithPersistedToken(t *testing.T) {
	f := newFixture(true)
	require.NoError(t, f.tokens.SetItem(tokenKey, []byte("tok")))

	assert.True(t, f.co.Initialize(context.Background()))
	assert.Equal(t, StateAuthenticated, f.co.State())
	assert.True(t, f.channel.Connected())
}

func TestCoordinatorInitializeRejectedToken(t *testing.T) {
	f := newFixture(true)
	f.auth.checkErr = ErrAuthRejected
	require.NoError(t, f.tokens.SetItem(tokenKey, []byte("stale")))

	assert.False(t, f.co.Initialize(context.Background()))
	assert.Equal(t, StateUnauthenticated, f.co.State())
	assert.False(t, f.channel.Connected())
	assert.Empty(t, f.notifier.all(), "rejected startup token is silent")
}
