package chat

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/retry"
)

// MessageAPI is the REST surface the conversation store uses.
type MessageAPI interface {
	Messages(ctx context.Context, counterpartID string) ([]Message, error)
	Send(ctx context.Context, counterpartID string, payload SendPayload) (Message, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// ConversationStore holds the message history of the one currently selected
// counterpart, in arrival order. Messages reach it from two independent
// paths, the history fetch and the push channel, so every insert is
// deduplicated by message id.
type ConversationStore struct {
	api     MessageAPI
	notify  Notifier
	network retry.Policy

	mu            sync.Mutex
	counterpartID string
	messages      []Message
	index         map[string]int
	gen           uint64
	loading       bool
	raced         []Message

	ackTimeout time.Duration
	ackWG      sync.WaitGroup
}

func NewConversationStore(msgAPI MessageAPI, notify Notifier, network retry.Policy) *ConversationStore {
	if notify == nil {
		notify = LogNotifier{}
	}
	return &ConversationStore{
		api:        msgAPI,
		notify:     notify,
		network:    network,
		index:      map[string]int{},
		ackTimeout: 10 * time.Second,
	}
}

// CounterpartID returns the id of the selected counterpart, or "".
func (s *ConversationStore) CounterpartID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterpartID
}

// Messages returns a snapshot of the held sequence.
func (s *ConversationStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LoadHistory selects counterpartID and replaces the held sequence with the
// fetched history. Pushes that land while the fetch is in flight are kept:
// they are re-merged by id after the replace. A response arriving after a
// later LoadHistory has started is discarded as stale.
func (s *ConversationStore) LoadHistory(ctx context.Context, counterpartID string) error {
	s.mu.Lock()
	s.counterpartID = counterpartID
	s.gen++
	gen := s.gen
	s.loading = true
	s.raced = nil
	s.mu.Unlock()

	var history []Message
	err := s.network.Do(ctx, func() error {
		var ferr error
		history, ferr = s.api.Messages(ctx, counterpartID)
		return ferr
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		jww.DEBUG.Printf("discarding stale history for %s", counterpartID)
		return nil
	}
	s.loading = false
	raced := s.raced
	s.raced = nil
	if err != nil {
		s.notify.Notify(SeverityError, "Could not load conversation")
		return errors.Wrapf(err, "load history for %s", counterpartID)
	}

	s.messages = nil
	s.index = map[string]int{}
	for _, m := range history {
		s.appendLocked(m)
	}
	for _, m := range raced {
		s.appendLocked(m)
	}
	return nil
}

// Append adds m at the tail unless a message with the same id is already
// held. Reports whether the message was added.
func (s *ConversationStore) Append(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counterpartID == "" {
		return false
	}
	if !s.appendLocked(m) {
		return false
	}
	if s.loading {
		s.raced = append(s.raced, m)
	}
	return true
}

func (s *ConversationStore) appendLocked(m Message) bool {
	if _, dup := s.index[m.ID]; dup {
		return false
	}
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	return true
}

// MarkSeen flips the local seen flag and acknowledges to the server in the
// background. An ack failure is logged; the local flag is never reverted.
func (s *ConversationStore) MarkSeen(messageID string) {
	s.mu.Lock()
	if i, ok := s.index[messageID]; ok {
		s.messages[i].Seen = true
	}
	s.mu.Unlock()

	s.ackWG.Add(1)
	go func() {
		defer s.ackWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout)
		defer cancel()
		if err := s.api.MarkSeen(ctx, messageID); err != nil {
			jww.WARN.Printf("mark seen %s: %v", messageID, err)
		}
	}()
}

// Send posts payload to the selected counterpart and appends the persisted
// message the server returns. The append is deduplicated, so a push copy of
// the same message arriving later (or earlier) is dropped.
func (s *ConversationStore) Send(ctx context.Context, payload SendPayload) (Message, error) {
	s.mu.Lock()
	counterpartID := s.counterpartID
	s.mu.Unlock()
	if counterpartID == "" {
		return Message{}, ErrNoSelection
	}

	var m Message
	err := s.network.Do(ctx, func() error {
		var serr error
		m, serr = s.api.Send(ctx, counterpartID, payload)
		return serr
	})
	if err != nil {
		s.notify.Notify(SeverityError, "Failed to send message")
		return Message{}, errors.Wrap(err, "send message")
	}

	s.mu.Lock()
	if s.counterpartID == counterpartID {
		if s.appendLocked(m) && s.loading {
			s.raced = append(s.raced, m)
		}
	}
	s.mu.Unlock()
	return m, nil
}

// Clear drops the selection and every held message.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	s.counterpartID = ""
	s.messages = nil
	s.index = map[string]int{}
	s.gen++
	s.loading = false
	s.raced = nil
	s.mu.Unlock()
}
