package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
	"github.com/zhouzirui/persona-chat/backend/internal/routing"
)

var (
	ErrPersonaRequired      = errors.New("persona is required")
	ErrSessionNotFound      = errors.New("session not found")
	ErrNotChatting          = errors.New("no persona selected")
	ErrAlreadyChatting      = errors.New("a persona is already selected, go back to selection first")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrInferenceUnavailable = errors.New("model client is not initialized")
)

// Resolver maps a persona cluster to its endpoint.
type Resolver interface {
	Resolve(cluster string) (routing.Endpoint, error)
}

// Responder produces the persona's reply to the last user turn.
type Responder interface {
	Respond(ctx context.Context, p persona.Persona, transcript []chat.Turn, ep routing.Endpoint) (chat.Turn, error)
}

// Recorder stores committed exchanges for audit/debug.
type Recorder interface {
	RecordExchange(ctx context.Context, sessionID string, p persona.Persona, exchange []chat.Turn) error
}

// Options tunes a Service. Zero values are usable.
type Options struct {
	IdleTimeout time.Duration
	Recorder    Recorder
	Logger      *zap.Logger
}

// Service owns every live session and applies the selection/chat transitions.
type Service struct {
	sessions *cache.Cache
	resolver Resolver
	engine   Responder
	recorder Recorder
	logger   *zap.Logger
}

// NewService builds the session registry. A nil engine means the model client
// could not be initialised: sessions still work but submissions fail.
func NewService(resolver Resolver, engine Responder, opts Options) *Service {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chat")

	sessions := cache.New(idle, idle/2)
	sessions.OnEvicted(func(id string, _ interface{}) {
		logger.Info("session ended", zap.String("session", id))
	})

	return &Service{
		sessions: sessions,
		resolver: resolver,
		engine:   engine,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// Initialized reports whether submissions can reach a model.
func (s *Service) Initialized() bool {
	return s.engine != nil
}

// CreateSession provisions an anonymous session in the Unselected state.
func (s *Service) CreateSession(_ context.Context) (chat.Snapshot, error) {
	sess := newSession(uuid.NewString(), time.Now().UTC())
	s.sessions.Set(sess.id, sess, cache.DefaultExpiration)
	s.logger.Info("session created", zap.String("session", sess.id))

	return sess.snapshot(s.Initialized()), nil
}

// EndSession tears a session down.
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return ErrSessionNotFound
	}
	s.sessions.Delete(sessionID)
	return nil
}

// Snapshot returns the current render model of a session.
func (s *Service) Snapshot(_ context.Context, sessionID string) (chat.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(s.Initialized()), nil
}

// Present marks that the persona list is being shown.
func (s *Service) Present(_ context.Context, sessionID string) (chat.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == chat.StateUnselected {
		sess.state = chat.StateSelecting
	}
	return sess.snapshot(s.Initialized()), nil
}

// Select binds p to the session with an empty transcript. When p's cluster has
// no endpoint the persona is still bound, the routing error is returned with
// the snapshot and every later submission fails with it.
func (s *Service) Select(_ context.Context, sessionID string, p persona.Persona) (chat.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == chat.StateChatting {
		return sess.snapshot(s.Initialized()), ErrAlreadyChatting
	}

	ep, routeErr := s.resolver.Resolve(p.Cluster)
	sess.bind(p, ep, routeErr)

	if routeErr != nil {
		s.logger.Warn("persona has no endpoint",
			zap.String("session", sessionID),
			zap.String("persona", p.DisplayName),
			zap.String("cluster", p.Cluster),
		)
		return sess.snapshot(s.Initialized()), routeErr
	}

	s.logger.Info("persona selected",
		zap.String("session", sessionID),
		zap.String("persona", p.DisplayName),
		zap.String("endpoint", ep.Path),
	)
	return sess.snapshot(s.Initialized()), nil
}

// Back returns the session to persona selection, dropping the conversation.
func (s *Service) Back(_ context.Context, sessionID string) (chat.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.reset()
	return sess.snapshot(s.Initialized()), nil
}

// Submit appends the user's message, asks the engine for a reply and appends
// it. On failure the transcript is restored to its pre-submission value and the
// error is returned with the snapshot. Nothing is retried.
func (s *Service) Submit(ctx context.Context, sessionID, text string) (chat.Snapshot, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return chat.Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != chat.StateChatting || sess.persona == nil {
		return sess.snapshot(s.Initialized()), ErrNotChatting
	}
	if sess.routeErr != nil {
		return sess.snapshot(s.Initialized()), sess.routeErr
	}
	if !s.Initialized() {
		return sess.snapshot(false), ErrInferenceUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return sess.snapshot(true), ErrEmptyMessage
	}

	before := len(sess.transcript)
	userTurn := chat.UserTurn(text)
	sess.transcript = append(sess.transcript, userTurn)

	reply, err := s.engine.Respond(ctx, *sess.persona, chat.CloneTranscript(sess.transcript), sess.endpoint)
	if err != nil {
		sess.transcript = sess.transcript[:before]
		s.logger.Warn("submission rolled back",
			zap.String("session", sessionID),
			zap.Int("transcript", before),
			zap.Error(err),
		)
		return sess.snapshot(true), err
	}

	sess.transcript = append(sess.transcript, reply)
	s.record(ctx, sessionID, *sess.persona, []chat.Turn{userTurn, reply})

	return sess.snapshot(true), nil
}

func (s *Service) record(ctx context.Context, sessionID string, p persona.Persona, exchange []chat.Turn) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordExchange(ctx, sessionID, p, exchange); err != nil {
		s.logger.Error("failed to record exchange", zap.String("session", sessionID), zap.Error(err))
	}
}

// lookup finds a live session and refreshes its idle timer.
func (s *Service) lookup(sessionID string) (*session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	value, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess := value.(*session)
	_ = s.sessions.Replace(sessionID, sess, cache.DefaultExpiration)
	return sess, nil
}
