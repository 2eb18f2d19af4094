package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/persona-chat/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client actions accepted on the socket.
const (
	ActionSelect  = "select"
	ActionMessage = "message"
	ActionBack    = "back"
)

// Server frame types.
const (
	FrameRender = "render"
	FrameError  = "error"
)

// WebSocketHandler 以事件循环的方式驱动会话：每个动作一次状态迁移，随后推送快照
type WebSocketHandler struct {
	chat       *Handler
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatHandler *Handler, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		chat:       chatHandler,
		logger:     logger.Named("websocket"),
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type messagePayload struct {
	Content string `json:"content"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	snap, err := h.chat.chatSvc.Present(r.Context(), sessionID)
	if err != nil {
		respondFailure(w, snap, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.String("session", sessionID), zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("connection opened", zap.String("session", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, sessionID, FrameRender, snap)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read error", zap.String("session", sessionID), zap.Error(err))
			}
			return
		}

		snap, err := h.apply(ctx, sessionID, &msg)
		if errors.Is(err, chatService.ErrSessionNotFound) {
			h.send(conn, sessionID, FrameError, map[string]string{"message": err.Error()})
			return
		}
		if err != nil {
			h.send(conn, sessionID, FrameError, map[string]string{"message": err.Error()})
		}
		h.send(conn, sessionID, FrameRender, snap)

		// Pongs are only processed while reading, so a slow model call must not
		// eat into the wait for the next frame.
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

// apply runs one client action as a single session transition.
func (h *WebSocketHandler) apply(ctx context.Context, sessionID string, msg *inboundMessage) (chat.Snapshot, error) {
	switch msg.Type {
	case ActionSelect:
		var req SelectRequest
		if err := decodeData(msg.Data, &req); err != nil {
			return h.current(ctx, sessionID, err)
		}
		return h.chat.Select(ctx, sessionID, req)
	case ActionMessage:
		var payload messagePayload
		if err := decodeData(msg.Data, &payload); err != nil {
			return h.current(ctx, sessionID, err)
		}
		return h.chat.chatSvc.Submit(ctx, sessionID, payload.Content)
	case ActionBack:
		return h.chat.chatSvc.Back(ctx, sessionID)
	default:
		return h.current(ctx, sessionID, errors.New("unsupported message type: "+msg.Type))
	}
}

func (h *WebSocketHandler) current(ctx context.Context, sessionID string, cause error) (chat.Snapshot, error) {
	snap, err := h.chat.chatSvc.Snapshot(ctx, sessionID)
	if err != nil {
		return snap, err
	}
	return snap, cause
}

func decodeData(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return errors.New("missing data payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New("invalid data payload")
	}
	return nil
}

func (h *WebSocketHandler) send(conn *websocket.Conn, sessionID, frameType string, data interface{}) {
	msg := outgoingMessage{
		Type:      frameType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn("write failed", zap.String("session", sessionID), zap.String("frame", frameType), zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
