package ai

import (
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/persona-chat/backend/internal/routing"
)

// Backend is a chat model whose target model is chosen per call from the
// persona's endpoint.
type Backend interface {
	model.BaseChatModel
	// Target returns the model name passed to the backend for ep.
	Target(ep routing.Endpoint) string
}

type arkBackend struct {
	model.BaseChatModel
}

// NewArkBackend adapts an Ark chat model. Ark addresses models by endpoint id,
// so the routing table maps clusters to Ark endpoint ids.
func NewArkBackend(cm model.BaseChatModel) Backend {
	return arkBackend{BaseChatModel: cm}
}

func (arkBackend) Target(ep routing.Endpoint) string {
	return ep.ID
}
