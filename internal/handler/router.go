package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/persona-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/handler/persona"
	"github.com/zhouzirui/persona-chat/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/persona-chat/backend/internal/middleware"
	personaModel "github.com/zhouzirui/persona-chat/backend/internal/model/persona"
	chatService "github.com/zhouzirui/persona-chat/backend/internal/service/chat"
	"github.com/zhouzirui/persona-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
// history may be nil when the transcript audit log is disabled.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, history chat.HistoryReader, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	personaHandler := persona.New(personas)
	chatHandler := chat.New(chatSvc, personas)
	if history != nil {
		chatHandler.WithHistory(history)
	}
	wsHandler := chat.NewWebSocketHandler(chatHandler, logger)
	streamHandler := stream.New(chatSvc, logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":    "ok",
				"personas":  len(personas.List()),
				"inference": chatSvc.Initialized(),
			})
		})

		// Register persona routes
		personaHandler.RegisterRoutes(api)

		// Register chat routes
		chatHandler.RegisterRoutes(api)

		// Message submission with progress events over SSE
		streamHandler.RegisterRoutes(api)

		// Session event loop over WebSocket
		wsHandler.RegisterRoutes(api)
	})

	return r
}
