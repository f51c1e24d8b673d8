package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/httpapi"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, serves until a signal arrives and shuts
// everything down in reverse order. Returning instead of exiting lets every
// deferred cleanup run.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment alone may be enough.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharacterReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if config.DebugPort > 0 {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, RecordMapper)
	}

	// 3. Optional moderation
	var moderator *moderation.Moderator
	if config.ModerationWordsDir != "" {
		data, err := moderation.NewCensoredLoader(os.DirFS(config.ModerationWordsDir)).LoadAll(".")
		if err != nil {
			return exitConfig, fmt.Errorf("moderation words: %w", err)
		}
		moderator, err = moderation.NewModerator(data.Words, charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderation: %w", err)
		}
		logger.Info("Moderation enabled", "languages", data.Languages, "words", len(data.Words))
	}

	if err := httpapi.EnsureUploadDir(config.UploadDir, logger); err != nil {
		return exitRuntime, err
	}

	// 4. Relay core
	registry := runtime.NewRegistry()
	messageRepository := repositories.NewMessageRepository(db, logger)
	userRepository := repositories.NewUserRepository(db)
	broadcaster := workers.NewRoomBroadcaster(logger, registry,
		config.BroadcastShards, config.BroadcastBufferSize, config.SinkTimeout)
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(workers.NewChannelCapacityWorker(logger, broadcaster.Queues(),
		config.MetricInterval, config.LowCapacityThreshold))
	relay := runtime.NewRelay(logger, registry, messageRepository, broadcaster, supervisor, runtime.RelayOptions{
		HistoryLimit:     config.HistoryLimit,
		MaxContentLength: config.MaxContentLength,
		SinkTimeout:      config.SinkTimeout,
		Moderator:        moderator,
	})

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Start(ctx)
	}()

	// 6. Transport
	tokens := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(logger, userRepository, tokens)
	wsHandler := websocket.NewHandler(logger, relay, tokens,
		websocket.NewOriginPolicy(config.Origins(), logger), config.ConnectionBufferSize)
	router := httpapi.NewRouter(logger, authService, tokens.RequireAuth, wsHandler, httpapi.RouterOptions{
		AllowedOrigins: config.Origins(),
		SecureCookie:   config.SecureCookie,
		TokenDuration:  config.AuthTokenDuration,
		UploadDir:      config.UploadDir,
		UploadMaxBytes: config.UploadMaxBytes,
	})

	server := &http.Server{
		Addr:              config.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	exitCode := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		exitCode, runErr = exitRuntime, err
	}

	// 8. Graceful Shutdown
	// Hijacked WebSocket connections are not tracked by the server and are
	// closed explicitly, which disconnects them from the relay.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	wsHandler.CloseAll()
	relay.Stop()
	stop()
	<-relayDone
	logger.Info("Program stopped cleanly")

	return exitCode, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// RecordMapper renders stored messages and accounts in the debug inspector.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	record, err := repositories.DescribeRecord(key, val)
	if err != nil {
		row.Detail = "Error: decode failed"
		return row
	}
	row.Type = record.Kind
	row.Detail = record.Detail
	return row
}
