package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
	"github.com/zhouzirui/persona-chat/backend/internal/routing"
)

var (
	ErrInferenceFailed = errors.New("error calling the model endpoint")
	ErrNoPendingTurn   = errors.New("transcript must end with a user turn")
)

// Service is the chat engine: it turns a persona and transcript into one
// request against the persona's endpoint.
type Service struct {
	backend Backend
	chain   compose.Runnable[map[string]any, *schema.Message]
	logger  *zap.Logger
}

// NewService compiles the prompt chain around backend.
func NewService(ctx context.Context, backend Backend, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(backend)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		backend: backend,
		chain:   runnable,
		logger:  logger.Named("ai"),
	}, nil
}

// Respond generates the persona's reply to the last turn of transcript, which
// must be the pending user turn. Nothing is retried.
func (s *Service) Respond(ctx context.Context, p persona.Persona, transcript []chat.Turn, ep routing.Endpoint) (chat.Turn, error) {
	if len(transcript) == 0 || transcript[len(transcript)-1].Role != chat.RoleUser {
		return chat.Turn{}, ErrNoPendingTurn
	}

	history, err := buildHistoryMessages(transcript[:len(transcript)-1])
	if err != nil {
		return chat.Turn{}, err
	}

	input := map[string]any{
		"system":  BuildSystemInstruction(p),
		"history": history,
		"query":   transcript[len(transcript)-1].Content,
	}

	target := s.backend.Target(ep)
	s.logger.Info("chatting with persona",
		zap.String("persona", p.DisplayName),
		zap.String("cluster", ep.Cluster),
		zap.String("endpoint", target),
		zap.Int("history", len(history)),
	)

	response, err := s.chain.Invoke(ctx, input, compose.WithChatModelOption(model.WithModel(target)))
	if err != nil {
		s.logger.Error("model call failed", zap.String("endpoint", target), zap.Error(err))
		return chat.Turn{}, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}

	s.inspectFinishReason(response, target)

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return chat.Turn{}, fmt.Errorf("%w: %w", ErrInferenceFailed, ErrEmptyResponse)
	}

	return chat.AssistantTurn(text), nil
}

// inspectFinishReason only logs; a truncated reply is still returned as is.
func (s *Service) inspectFinishReason(response *schema.Message, target string) {
	if response.ResponseMeta == nil || response.ResponseMeta.FinishReason == "" {
		s.logger.Warn("finish reason unavailable", zap.String("endpoint", target))
		return
	}

	reason := response.ResponseMeta.FinishReason
	fields := []zap.Field{zap.String("endpoint", target), zap.String("finish_reason", reason)}
	if usage := response.ResponseMeta.Usage; usage != nil {
		fields = append(fields, zap.Int("completion_tokens", usage.CompletionTokens))
	}

	if isLengthLimited(reason) {
		s.logger.Warn("response was truncated, max output tokens too low", fields...)
		return
	}
	s.logger.Info("response generated", fields...)
}

func isLengthLimited(reason string) bool {
	return strings.EqualFold(reason, "MAX_TOKENS") || strings.EqualFold(reason, "length")
}

func buildHistoryMessages(turns []chat.Turn) ([]*schema.Message, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		default:
			return nil, fmt.Errorf("unsupported transcript role %q", turn.Role)
		}
	}

	return history, nil
}
