// Package chattest runs an in-memory chat backend speaking the same REST and
// push-channel protocol as the real server. Integration tests and the demo
// binary point the client at it.
package chattest

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/chat"
)

type userRecord struct {
	user     chat.User
	password string
}

// pushConn serializes writes to one websocket.
type pushConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *pushConn) writeJSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

// Server is the fake backend. Zero persistence; everything lives in memory.
type Server struct {
	app    *fiber.App
	secret []byte
	ln     net.Listener

	mu      sync.Mutex
	users   map[string]*userRecord // by id
	byEmail map[string]string      // email -> id
	msgs    []*chat.Message
	conns   map[string]*pushConn // userID -> live socket
}

func NewServer() *Server {
	s := &Server{
		secret:  []byte("chattest-secret"),
		users:   map[string]*userRecord{},
		byEmail: map[string]string{},
		conns:   map[string]*pushConn{},
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/api/auth/signup", s.handleSignup)
	app.Post("/api/auth/login", s.handleLogin)
	app.Get("/api/auth/check", s.handleCheck)
	app.Put("/api/auth/update-profile", s.handleUpdateProfile)

	// /users must be registered before the :id route.
	app.Get("/api/messages/users", s.handleUsers)
	app.Put("/api/messages/mark/:id", s.handleMark)
	app.Post("/api/messages/send/:id", s.handleSend)
	app.Get("/api/messages/:id", s.handleHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleSocket))

	s.app = app
	return s
}

// Start listens on an ephemeral port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	s.ln = ln
	go func() { _ = s.app.Listener(ln) }()
	return nil
}

// URL is the REST base URL.
func (s *Server) URL() string { return "http://" + s.ln.Addr().String() }

// SocketURL is the push-channel endpoint.
func (s *Server) SocketURL() string { return "ws://" + s.ln.Addr().String() + "/ws" }

func (s *Server) Shutdown() { _ = s.app.Shutdown() }

// MintToken returns a valid token for userID, as login would.
func (s *Server) MintToken(userID string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) authenticate(c *fiber.Ctx) (*userRecord, bool) {
	raw := c.Get("token")
	if raw == "" {
		return nil, false
	}
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.secret, nil })
	if err != nil || !tok.Valid {
		return nil, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	sub, _ := claims["sub"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[sub]
	return rec, ok
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"success": false, "message": "Unauthorized"})
}

type credentials struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

func (s *Server) handleSignup(c *fiber.Ctx) error {
	var creds credentials
	if err := c.BodyParser(&creds); err != nil || creds.Email == "" || creds.Password == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "message": "Missing details"})
	}

	s.mu.Lock()
	if _, exists := s.byEmail[creds.Email]; exists {
		s.mu.Unlock()
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "message": "Account already exists"})
	}
	rec := &userRecord{
		user: chat.User{
			ID:       uuid.NewString(),
			Email:    creds.Email,
			FullName: creds.FullName,
			Bio:      creds.Bio,
		},
		password: creds.Password,
	}
	s.users[rec.user.ID] = rec
	s.byEmail[creds.Email] = rec.user.ID
	s.mu.Unlock()

	return c.JSON(fiber.Map{
		"success":  true,
		"userData": rec.user,
		"token":    s.MintToken(rec.user.ID),
		"message":  "Account created successfully",
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var creds credentials
	if err := c.BodyParser(&creds); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "message": "Missing details"})
	}

	s.mu.Lock()
	id, ok := s.byEmail[creds.Email]
	var rec *userRecord
	if ok {
		rec = s.users[id]
	}
	s.mu.Unlock()

	if rec == nil || rec.password != creds.Password {
		return c.Status(fiber.StatusUnauthorized).
			JSON(fiber.Map{"success": false, "message": "Invalid credentials"})
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"userData": rec.user,
		"token":    s.MintToken(rec.user.ID),
		"message":  "Logged in successfully",
	})
}

func (s *Server) handleCheck(c *fiber.Ctx) error {
	rec, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(fiber.Map{"success": true, "user": rec.user})
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	rec, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	var payload chat.ProfilePayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "message": "Bad payload"})
	}

	s.mu.Lock()
	if payload.FullName != "" {
		rec.user.FullName = payload.FullName
	}
	if payload.Bio != "" {
		rec.user.Bio = payload.Bio
	}
	if payload.ProfilePic != "" {
		rec.user.ProfilePic = payload.ProfilePic
	}
	user := rec.user
	s.mu.Unlock()

	return c.JSON(fiber.Map{"success": true, "user": user, "message": "Profile updated"})
}

func (s *Server) handleUsers(c *fiber.Ctx) error {
	rec, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}

	s.mu.Lock()
	users := make([]chat.User, 0, len(s.users)-1)
	for id, other := range s.users {
		if id != rec.user.ID {
			users = append(users, other.user)
		}
	}
	unseen := map[string]int{}
	for _, m := range s.msgs {
		if m.ReceiverID == rec.user.ID && !m.Seen {
			unseen[m.SenderID]++
		}
	}
	s.mu.Unlock()

	return c.JSON(fiber.Map{"success": true, "users": users, "unseenMessages": unseen})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	rec, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	other := c.Params("id")

	s.mu.Lock()
	history := make([]chat.Message, 0)
	for _, m := range s.msgs {
		if (m.SenderID == rec.user.ID && m.ReceiverID == other) ||
			(m.SenderID == other && m.ReceiverID == rec.user.ID) {
			history = append(history, *m)
		}
	}
	s.mu.Unlock()

	return c.JSON(fiber.Map{"success": true, "messages": history})
}

func (s *Server) handleSend(c *fiber.Ctx) error {
	rec, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	var payload chat.SendPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"success": false, "message": "Bad payload"})
	}

	m := &chat.Message{
		ID:         uuid.NewString(),
		SenderID:   rec.user.ID,
		// Params strings are backed by fiber's reusable request buffer; copy
		// before storing beyond the handler.
		ReceiverID: utils.CopyString(c.Params("id")),
		Text:       payload.Text,
		Image:      payload.Image,
		CreatedAt:  time.Now().UTC(),
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()

	// The receiver, if connected, gets a push copy. The sender does not.
	_ = s.Push(m.ReceiverID, *m)

	return c.JSON(fiber.Map{"success": true, "newMessage": m})
}

func (s *Server) handleMark(c *fiber.Ctx) error {
	if _, ok := s.authenticate(c); !ok {
		return unauthorized(c)
	}
	id := c.Params("id")

	s.mu.Lock()
	for _, m := range s.msgs {
		if m.ID == id {
			m.Seen = true
		}
	}
	s.mu.Unlock()

	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleSocket(conn *websocket.Conn) {
	userID := conn.Query("userId")
	if userID == "" {
		_ = conn.Close()
		return
	}
	pc := &pushConn{conn: conn}

	s.mu.Lock()
	s.conns[userID] = pc
	s.mu.Unlock()
	s.broadcastPresence()

	defer func() {
		s.mu.Lock()
		if s.conns[userID] == pc {
			delete(s.conns, userID)
		}
		s.mu.Unlock()
		s.broadcastPresence()
	}()

	// Clients send nothing after the handshake; read until the peer is gone.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcastPresence() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.conns))
	targets := make([]*pushConn, 0, len(s.conns))
	for id, pc := range s.conns {
		ids = append(ids, id)
		targets = append(targets, pc)
	}
	s.mu.Unlock()

	data, _ := json.Marshal(ids)
	frame := chat.Frame{Event: chat.EventOnlineUsers, Data: data}
	for _, pc := range targets {
		_ = pc.writeJSON(frame)
	}
}

// Push delivers a newMessage frame to userID's live socket, if any.
func (s *Server) Push(userID string, m chat.Message) error {
	s.mu.Lock()
	pc := s.conns[userID]
	s.mu.Unlock()
	if pc == nil {
		return errors.Errorf("user %s not connected", userID)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return pc.writeJSON(chat.Frame{Event: chat.EventNewMessage, Data: data})
}

// Seed registers a user directly, bypassing signup, and returns it.
func (s *Server) Seed(fullName, email, password, bio string) chat.User {
	rec := &userRecord{
		user: chat.User{
			ID:       uuid.NewString(),
			Email:    email,
			FullName: fullName,
			Bio:      bio,
		},
		password: password,
	}
	s.mu.Lock()
	s.users[rec.user.ID] = rec
	s.byEmail[email] = rec.user.ID
	s.mu.Unlock()
	return rec.user
}

// SeedMessage stores a message directly, bypassing send.
func (s *Server) SeedMessage(m chat.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, &m)
	s.mu.Unlock()
}

// MessageSeen reports the stored seen flag for a message id.
func (s *Server) MessageSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == id {
			return m.Seen
		}
	}
	return false
}

// Online returns the ids with a live socket.
func (s *Server) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}
