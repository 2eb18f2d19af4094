package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
	"github.com/zhouzirui/persona-chat/backend/internal/routing"
	"github.com/zhouzirui/persona-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/persona-chat/backend/internal/service/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/store/transcript"
	"github.com/zhouzirui/persona-chat/backend/pkg/utils"
)

// ErrPersonaNotFound is returned when a selection names no loaded persona.
var ErrPersonaNotFound = errors.New("persona not found")

// HistoryReader reads committed exchanges back from the audit log.
type HistoryReader interface {
	Session(ctx context.Context, sessionID string) ([]transcript.Entry, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc      *chatService.Service
	personaStore persona.Store
	history      HistoryReader
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, personaStore persona.Store) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		personaStore: personaStore,
	}
}

// WithHistory 启用审计日志查询；未设置时 history 路由返回 503
func (h *Handler) WithHistory(history HistoryReader) *Handler {
	h.history = history
	return h
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(s chi.Router) {
		s.Get("/", h.handleGetSession)
		s.Delete("/", h.handleDeleteSession)
		s.Post("/persona", h.handleSelectPersona)
		s.Post("/back", h.handleBack)
		s.Post("/messages", h.handleSubmitMessage)
		s.Get("/history", h.handleHistory)
	})
}

// SelectRequest 选择persona的请求体，按下标或名称二选一
type SelectRequest struct {
	PersonaIndex *int   `json:"personaIndex,omitempty"`
	PersonaName  string `json:"personaName,omitempty"`
}

// ResolvePersona 在 store 中查找请求指定的 persona，名称重复时取第一个
func ResolvePersona(store persona.Store, req SelectRequest) (persona.Persona, error) {
	if req.PersonaIndex != nil {
		if p, ok := store.FindByIndex(*req.PersonaIndex); ok {
			return p, nil
		}
		return persona.Persona{}, ErrPersonaNotFound
	}
	name := strings.TrimSpace(req.PersonaName)
	if name == "" {
		return persona.Persona{}, chatService.ErrPersonaRequired
	}
	if p, ok := store.FindByName(name); ok {
		return p, nil
	}
	return persona.Persona{}, ErrPersonaNotFound
}

// handleCreateSession 创建会话并进入persona选择
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	created, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snap, err := h.chatSvc.Present(r.Context(), created.SessionID)
	if err != nil {
		respondFailure(w, snap, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, snap)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.chatSvc.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondFailure(w, snap, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.EndSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondFailure(w, chat.Snapshot{}, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectPersona 绑定persona；cluster 未映射时仍返回 200，快照中带错误
func (h *Handler) handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	var payload SelectRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.Select(r.Context(), chi.URLParam(r, "sessionID"), payload)
	if err != nil && !errors.Is(err, routing.ErrEndpointUnmapped) {
		respondFailure(w, snap, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

// Select resolves the requested persona and binds it to the session.
func (h *Handler) Select(ctx context.Context, sessionID string, req SelectRequest) (chat.Snapshot, error) {
	p, err := ResolvePersona(h.personaStore, req)
	if err != nil {
		snap, snapErr := h.chatSvc.Snapshot(ctx, sessionID)
		if snapErr != nil {
			return chat.Snapshot{}, snapErr
		}
		return snap, err
	}
	return h.chatSvc.Select(ctx, sessionID, p)
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	snap, err := h.chatSvc.Back(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondFailure(w, snap, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

// handleSubmitMessage 提交一条用户消息并返回包含回复的快照
func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.chatSvc.Submit(r.Context(), chi.URLParam(r, "sessionID"), payload.Content)
	if err != nil {
		respondFailure(w, snap, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

// handleHistory 返回审计日志中的已提交轮次，会话结束后仍可查询
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "transcript audit log is disabled")
		return
	}

	entries, err := h.history.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}

// StatusFor maps a domain error to the HTTP status reported to the client.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, ErrPersonaNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrEmptyMessage), errors.Is(err, chatService.ErrPersonaRequired):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrNotChatting),
		errors.Is(err, chatService.ErrAlreadyChatting),
		errors.Is(err, routing.ErrEndpointUnmapped):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrInferenceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ai.ErrInferenceFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure 返回错误；会话存在时附带当前快照
func respondFailure(w http.ResponseWriter, snap chat.Snapshot, err error) {
	status := StatusFor(err)
	if snap.SessionID == "" {
		utils.RespondError(w, status, err.Error())
		return
	}
	snap.Error = err.Error()
	utils.RespondJSON(w, status, snap)
}
