package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/persona-chat/backend/internal/service/chat"
	"github.com/zhouzirui/persona-chat/backend/pkg/utils"
)

// Event names written to the stream.
const (
	EventPending   = "pending"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
	EventRender    = "render"
)

const defaultHeartbeat = 8 * time.Second

// Submitter applies one user message to a session.
type Submitter interface {
	Snapshot(ctx context.Context, sessionID string) (chat.Snapshot, error)
	Submit(ctx context.Context, sessionID, text string) (chat.Snapshot, error)
}

// Handler 通过 SSE 提交消息：先推送 pending，等待模型期间发送心跳，最后推送快照
type Handler struct {
	chatSvc   Submitter
	logger    *zap.Logger
	heartbeat time.Duration
}

// New creates a new stream handler
func New(chatSvc Submitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc:   chatSvc,
		logger:    logger.Named("stream"),
		heartbeat: defaultHeartbeat,
	}
}

// RegisterRoutes 注册流式提交路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// PendingEvent is sent as soon as the message is accepted for submission.
type PendingEvent struct {
	SessionID string    `json:"sessionId"`
	Turn      chat.Turn `json:"turn"`
	Message   string    `json:"message"`
}

type heartbeatEvent struct {
	Message string `json:"message"`
	Time    string `json:"time"`
}

type errorEvent struct {
	Error string `json:"error"`
}

type submitResult struct {
	snap chat.Snapshot
	err  error
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	if _, err := h.chatSvc.Snapshot(ctx, sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	done := make(chan submitResult, 1)
	go func() {
		snap, err := h.chatSvc.Submit(ctx, sessionID, userMessage)
		done <- submitResult{snap: snap, err: err}
	}()

	utils.SendSSEEvent(w, flusher, EventPending, PendingEvent{
		SessionID: sessionID,
		Turn:      chat.UserTurn(userMessage),
		Message:   "Thinking...",
	})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case res := <-done:
			if res.err != nil {
				h.logger.Info("submission failed", zap.String("session", sessionID), zap.Error(res.err))
				utils.SendSSEEvent(w, flusher, EventError, errorEvent{Error: res.err.Error()})
				if res.snap.SessionID == "" {
					return
				}
			}
			utils.SendSSEEvent(w, flusher, EventRender, res.snap)
			return
		case t := <-ticker.C:
			utils.SendSSEEvent(w, flusher, EventHeartbeat, heartbeatEvent{
				Message: "awaiting model response",
				Time:    t.UTC().Format(time.RFC3339),
			})
		case <-ctx.Done():
			h.logger.Info("client went away before the reply", zap.String("session", sessionID))
			return
		}
	}
}
