package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/zhouzirui/persona-chat/backend/internal/config"
	"github.com/zhouzirui/persona-chat/backend/internal/routing"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// contentGenerator is the part of *genai.Models the chat model needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Decoding holds the fixed per-deployment generation settings.
type Decoding struct {
	Temperature     float32
	MaxOutputTokens int
	TopK            int
}

// DecodingFrom extracts the decoding settings from cfg.
func DecodingFrom(cfg config.AIConfig) Decoding {
	return Decoding{
		Temperature:     float32(cfg.Temperature),
		MaxOutputTokens: cfg.MaxOutputTokens,
		TopK:            cfg.TopK,
	}
}

// VertexChatModel calls Vertex AI endpoints through the genai SDK. The endpoint
// resource name arrives per call as the model option.
type VertexChatModel struct {
	models   contentGenerator
	decoding Decoding
}

// NewVertexChatModel authenticates and creates the process-wide genai client.
func NewVertexChatModel(ctx context.Context, cfg config.AIConfig, table routing.Table) (*VertexChatModel, error) {
	project := table.ProjectID
	if project == "" {
		project = table.ProjectNumber
	}
	if project == "" {
		return nil, fmt.Errorf("vertex backend requires GCP_PROJECT_ID or projectId in the routing config")
	}

	creds, err := resolveCredentials(cfg)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     project,
		Location:    table.Region,
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newVertexChatModel(client.Models, DecodingFrom(cfg)), nil
}

func newVertexChatModel(models contentGenerator, decoding Decoding) *VertexChatModel {
	return &VertexChatModel{models: models, decoding: decoding}
}

// Target implements Backend.
func (m *VertexChatModel) Target(ep routing.Endpoint) string {
	return ep.Path
}

// GetType names the component in eino callbacks.
func (m *VertexChatModel) GetType() string {
	return "Vertex"
}

// Generate implements model.BaseChatModel.
func (m *VertexChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	temperature := m.decoding.Temperature
	maxTokens := m.decoding.MaxOutputTokens
	options := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, opts...)

	if options.Model == nil || *options.Model == "" {
		return nil, errors.New("vertex: no endpoint given for this call")
	}

	system, contents, err := toGenAIContents(input)
	if err != nil {
		return nil, err
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: options.Temperature,
		TopK:        genai.Ptr(float32(m.decoding.TopK)),
	}
	if options.MaxTokens != nil {
		genCfg.MaxOutputTokens = int32(*options.MaxTokens)
	}
	if system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := m.models.GenerateContent(ctx, *options.Model, contents, genCfg)
	if err != nil {
		return nil, err
	}

	return fromGenAIResponse(resp)
}

// Stream implements model.BaseChatModel with a single-chunk stream.
func (m *VertexChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// toGenAIContents splits system messages off into the system instruction and
// maps the conversation, assistant turns becoming "model" turns. Order is kept.
func toGenAIContents(input []*schema.Message) (string, []*genai.Content, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(input))

	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.User:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			return "", nil, fmt.Errorf("vertex: unsupported message role %q", msg.Role)
		}
	}

	return strings.Join(system, "\n\n"), contents, nil
}

func fromGenAIResponse(resp *genai.GenerateContentResponse) (*schema.Message, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return nil, ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}

	msg := schema.AssistantMessage(text.String(), nil)
	msg.ResponseMeta = &schema.ResponseMeta{FinishReason: string(candidate.FinishReason)}
	if usage := resp.UsageMetadata; usage != nil {
		msg.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return msg, nil
}
