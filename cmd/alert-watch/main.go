package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/alertwise/go-emergency-alerts/internal/config"
	"github.com/alertwise/go-emergency-alerts/internal/dashboard"
	"github.com/alertwise/go-emergency-alerts/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	url := fmt.Sprintf("ws://%s:%d/ws/dashboard", cfg.Server.Host, cfg.Server.Port)
	slog.Info("connecting to dashboard stream", "url", url)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		logging.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg dashboard.Message
			if err := conn.ReadJSON(&msg); err != nil {
				slog.Error("stream closed", "error", err)
				return
			}
			slog.Info("event", "type", msg.EventType, "payload", msg.Payload)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-done:
	}
}
