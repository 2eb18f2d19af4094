package persona

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
	"github.com/zhouzirui/persona-chat/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建persona处理器
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
}

// handleListPersonas 列出所有persona，文档缺失或为空时返回 503
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas := h.personas.List()
	if len(personas) == 0 {
		message := "no personas loaded, cannot proceed"
		if err := h.personas.LoadErr(); err != nil {
			message = fmt.Sprintf("%s: %v", message, err)
		}
		utils.RespondError(w, http.StatusServiceUnavailable, message)
		return
	}
	utils.RespondJSON(w, http.StatusOK, personas)
}
