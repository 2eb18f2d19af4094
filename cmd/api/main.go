package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/persona-chat/backend/internal/config"
	"github.com/zhouzirui/persona-chat/backend/internal/handler"
	chatHandler "github.com/zhouzirui/persona-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/logging"
	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
	"github.com/zhouzirui/persona-chat/backend/internal/routing"
	"github.com/zhouzirui/persona-chat/backend/internal/service/ai"
	"github.com/zhouzirui/persona-chat/backend/internal/service/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/store/transcript"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Persona document is read once; an empty store keeps the server up so the
	// client can show why nothing can be selected.
	personaStore, err := persona.LoadStore(cfg.Personas.Path)
	if err != nil {
		logger.Error("failed to load personas", zap.String("path", cfg.Personas.Path), zap.Error(err))
	} else {
		logger.Info("personas loaded", zap.Int("count", len(personaStore.List())))
	}

	resolver := routing.NewResolver(cfg.Routing)
	logger.Info("endpoint routing ready",
		zap.String("region", cfg.Routing.Region),
		zap.Int("clusters", resolver.Clusters()),
	)

	// Initialize AI service
	var engine chat.Responder
	if aiService, err := newAIService(ctx, cfg, logger); err != nil {
		logger.Warn("failed to initialize AI service, chatting disabled",
			zap.String("backend", cfg.AI.Backend),
			zap.Error(err),
		)
	} else {
		engine = aiService
		logger.Info("AI service initialized", zap.String("backend", cfg.AI.Backend))
	}

	var history chatHandler.HistoryReader
	opts := chat.Options{
		IdleTimeout: cfg.Session.IdleTimeout,
		Logger:      logger,
	}
	if cfg.Session.AuditDBPath != "" {
		auditStore, err := transcript.Open(cfg.Session.AuditDBPath)
		if err != nil {
			logger.Warn("failed to open transcript audit log", zap.String("path", cfg.Session.AuditDBPath), zap.Error(err))
		} else {
			defer auditStore.Close()
			opts.Recorder = auditStore
			history = auditStore
			logger.Info("transcript audit log enabled", zap.String("path", cfg.Session.AuditDBPath))
		}
	}

	chatService := chat.NewService(resolver, engine, opts)

	router := handler.NewRouter(personaStore, chatService, history, logger)

	startServer(ctx, cfg.Server, router, logger)
}

// newAIService builds the configured inference backend and wraps it in the chat chain.
func newAIService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ai.Service, error) {
	var backend ai.Backend
	switch cfg.AI.Backend {
	case config.BackendArk:
		cm, err := cfg.AI.NewArkChatModel(ctx)
		if err != nil {
			return nil, err
		}
		backend = ai.NewArkBackend(cm)
	default:
		vm, err := ai.NewVertexChatModel(ctx, cfg.AI, cfg.Routing)
		if err != nil {
			return nil, err
		}
		backend = vm
	}
	return ai.NewService(ctx, backend, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("persona chat backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
