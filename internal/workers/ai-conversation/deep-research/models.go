// internal/workers/ai-conversation/deep-research/models.go
package deepresearch

import (
	"deepsearch-workers/internal/research"
	"deepsearch-workers/internal/research/chat"
)

type Input struct {
	Conversation chat.Conversation `json:"conversation"`
	SystemPrompt string            `json:"systemPrompt"`
}

type Output struct {
	ResearchStatus string            `json:"researchStatus"`
	SystemMessage  string            `json:"systemMessage"`
	Evidence       research.Evidence `json:"evidence"`
	Rounds         int               `json:"rounds"`
}
