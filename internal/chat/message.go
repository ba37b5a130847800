package chat

import (
	"encoding/json"
	"time"
)

// User is a counterpart (or the local identity) as the server serializes it.
type User struct {
	ID         string `json:"_id"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
	Bio        string `json:"bio"`
}

// Message is one chat message. Either Text or Image (or both) is set.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SendPayload is the body of a send request.
type SendPayload struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// ProfilePayload carries the mutable identity fields for a profile update.
type ProfilePayload struct {
	FullName   string `json:"fullName,omitempty"`
	Bio        string `json:"bio,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Push-channel wire protocol: every frame is a JSON object carrying an event
// name and an event-specific payload.
const (
	EventOnlineUsers = "getOnlineUsers"
	EventNewMessage  = "newMessage"
)

// Frame is the envelope exchanged on the push channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
