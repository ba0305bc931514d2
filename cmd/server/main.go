package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment alone may configure the relay.
	_ = godotenv.Load()

	config, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	log.Info("Starting chatrelay server...")

	svc := chat.New(log, config.ClaimTTL)
	relay := server.New(config, log, svc)
	effective := relay.Config()
	log.Info("Relay configured",
		"port", effective.Port,
		"allowed_origins", effective.AllowedOrigins,
		"max_message_size", effective.MaxMessageSize,
		"rate_limit_burst", effective.RateLimit.Burst,
		"rate_limit_refill", effective.RateLimit.RefillInterval,
		"send_buffer_size", effective.SendBufferSize,
		"claim_ttl", effective.ClaimTTL)
	httpServer := server.CreateServer(effective.Port, relay.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	if err := server.ShutdownServer(httpServer, effective.ShutdownTimeout, log); err != nil {
		log.Warn("HTTP server did not shut down cleanly", "error", err)
	}
	if err := relay.Shutdown(effective.ShutdownTimeout); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}

	log.Info("Program stopped cleanly")
	return nil
}
