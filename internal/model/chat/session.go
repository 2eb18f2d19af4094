package chat

import (
	"time"

	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
)

// State is the position of a session in the selection/chat cycle.
type State string

const (
	StateUnselected State = "unselected"
	StateSelecting  State = "selecting"
	StateChatting   State = "chatting"
)

// Snapshot is the render model of a session after a transition.
type Snapshot struct {
	SessionID   string           `json:"sessionId"`
	State       State            `json:"state"`
	Persona     *persona.Persona `json:"persona,omitempty"`
	Endpoint    string           `json:"endpoint,omitempty"`
	Transcript  []Turn           `json:"transcript"`
	Error       string           `json:"error,omitempty"`
	Initialized bool             `json:"initialized"`
	CreatedAt   time.Time        `json:"createdAt"`
}
