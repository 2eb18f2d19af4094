package chat

import (
	"sync"
	"time"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
	"github.com/zhouzirui/persona-chat/backend/internal/routing"
)

// session is the mutable per-user state. mu is held for a whole transition,
// including the model call of a submission.
type session struct {
	id        string
	createdAt time.Time

	mu         sync.Mutex
	state      chat.State
	persona    *persona.Persona
	endpoint   routing.Endpoint
	routeErr   error
	transcript []chat.Turn
}

func newSession(id string, now time.Time) *session {
	return &session{
		id:         id,
		createdAt:  now,
		state:      chat.StateUnselected,
		transcript: make([]chat.Turn, 0, 16),
	}
}

// bind moves the session into Chatting with an empty transcript.
func (s *session) bind(p persona.Persona, ep routing.Endpoint, routeErr error) {
	s.state = chat.StateChatting
	s.persona = &p
	s.endpoint = ep
	s.routeErr = routeErr
	s.transcript = make([]chat.Turn, 0, 16)
}

// reset returns the session to Unselected.
func (s *session) reset() {
	s.state = chat.StateUnselected
	s.persona = nil
	s.endpoint = routing.Endpoint{}
	s.routeErr = nil
	s.transcript = make([]chat.Turn, 0, 16)
}

func (s *session) snapshot(initialized bool) chat.Snapshot {
	snap := chat.Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Endpoint:    s.endpoint.Path,
		Transcript:  chat.CloneTranscript(s.transcript),
		Initialized: initialized,
		CreatedAt:   s.createdAt,
	}
	if s.persona != nil {
		p := *s.persona
		snap.Persona = &p
	}
	if s.routeErr != nil {
		snap.Error = s.routeErr.Error()
	}
	return snap
}
