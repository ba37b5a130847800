package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/pelusa-v/pelusa-chat-client.git/internal/api"
	"github.com/pelusa-v/pelusa-chat-client.git/internal/chat"
	"github.com/pelusa-v/pelusa-chat-client.git/internal/chattest"
	"github.com/pelusa-v/pelusa-chat-client.git/internal/config"
	"github.com/pelusa-v/pelusa-chat-client.git/internal/retry"
	"github.com/pelusa-v/pelusa-chat-client.git/internal/storage"
)

func main() {
	embedded := flag.Bool("embedded", false, "run against an embedded in-memory backend")
	flag.Parse()

	jww.SetStdoutThreshold(jww.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		jww.FATAL.Fatalf("load config: %v", err)
	}

	var peer chat.User
	if *embedded {
		srv := chattest.NewServer()
		if err := srv.Start(); err != nil {
			jww.FATAL.Fatalf("start embedded backend: %v", err)
		}
		defer srv.Shutdown()
		peer = srv.Seed("Pelusa", "pelusa@example.com", "woof", "resident dog")

		cfg.BaseURL = srv.URL()
		cfg.SocketURL = srv.SocketURL()
		cfg.StateDir, err = os.MkdirTemp("", "pelusa-chat-demo")
		if err != nil {
			jww.FATAL.Fatalf("temp state dir: %v", err)
		}
		defer os.RemoveAll(cfg.StateDir)
	}

	client := api.New(cfg.BaseURL, cfg.RequestTimeout)
	tokens, err := storage.NewFileStore(cfg.StateDir)
	if err != nil {
		jww.FATAL.Fatalf("open token store: %v", err)
	}

	policies := retry.Defaults()
	if cfg.NetworkRetries > 0 {
		policies.Network = retry.Constant(retry.KindNetwork, cfg.RetryInterval, cfg.NetworkRetries)
		policies.Network.Permanent = api.IsAuth
	}

	notifier := chat.LogNotifier{}
	session := chat.NewSessionManager(client, tokens, notifier, policies)
	channel := chat.NewPresenceChannel(cfg.SocketURL, notifier)
	conversation := chat.NewConversationStore(client, notifier, policies.Network)
	unseen := chat.NewUnseenIndex()

	co := chat.NewCoordinator(chat.CoordinatorConfig{
		Session:             session,
		Channel:             channel,
		Conversation:        conversation,
		Unseen:              unseen,
		Roster:              client,
		Notify:              notifier,
		Network:             policies.Network,
		ClearUnseenOnSelect: cfg.ClearUnseenOnSelect,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !co.Initialize(ctx) && *embedded {
		err := co.Login(ctx, chat.ModeSignup, map[string]string{
			"fullName": "Demo User",
			"email":    "demo@example.com",
			"password": "demo-pass",
			"bio":      "just trying this out",
		})
		if err != nil {
			jww.FATAL.Fatalf("signup: %v", err)
		}
	}

	if co.State() != chat.StateAuthenticated {
		jww.INFO.Printf("no session; set CHAT_* env vars or run with -embedded")
		return
	}

	for _, u := range co.Roster() {
		jww.INFO.Printf("contact: %s (%s)", u.FullName, u.ID)
	}

	if *embedded {
		if err := co.SelectCounterpart(ctx, peer.ID); err != nil {
			jww.ERROR.Printf("select counterpart: %v", err)
		}
		if _, err := co.Send(ctx, chat.SendPayload{Text: "hello from the demo client"}); err != nil {
			jww.ERROR.Printf("send: %v", err)
		}
		jww.INFO.Printf("conversation holds %d message(s)", len(conversation.Messages()))
		jww.INFO.Printf("online now: %v", co.Presence().IDs())
		co.Logout()
		return
	}

	// Stay online until interrupted, then log out cleanly.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	co.Logout()
}
