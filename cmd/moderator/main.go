package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/roulette/chat-app/internal/messaging"
	"github.com/roulette/chat-app/internal/moderation"
)

func main() {
	log.Println("Starting roulette moderation service...")

	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "roulette-moderator"

	natsClient, err := messaging.Connect(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	filter := moderation.NewFilter()

	// Serve classification over request/reply. An empty reply never happens:
	// every request gets a verdict, and the chat server's gate fails open if
	// this service is down or slow.
	err = natsClient.Subscribe(messaging.SubjectModerationCheck, func(data []byte, reply func([]byte)) {
		var req moderation.CheckRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[moderator] failed to unmarshal request: %v", err)
			return
		}

		result := filter.Check(req.Text)

		resp := moderation.CheckResponse{
			Flagged: result.Blocked,
			Reason:  result.Reason,
		}
		if result.Blocked {
			log.Printf("[moderator] FLAGGED reason=%s term=%q", result.Reason, result.Term)
		}

		respData, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[moderator] failed to marshal response: %v", err)
			return
		}
		reply(respData)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to moderation checks: %v", err)
	}

	log.Printf("Roulette moderation service running")
	log.Printf("  nats_url: %s", natsConfig.URL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
}
