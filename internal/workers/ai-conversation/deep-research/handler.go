// internal/workers/ai-conversation/deep-research/handler.go
package deepresearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "deepsearch-workers/internal/common/errors"
	"deepsearch-workers/internal/common/validation"
	"deepsearch-workers/internal/research"
	"deepsearch-workers/internal/research/chat"
	"deepsearch-workers/internal/research/search"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "deep-research"
)

var (
	ErrInvalidRequest = errors.New("INVALID_RESEARCH_REQUEST")
	ErrResearchFailed = errors.New("RESEARCH_FAILED")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Researcher runs the research loop for one conversation.
type Researcher interface {
	Run(ctx context.Context, conv chat.Conversation) (*research.Outcome, error)
	Prompts() research.Prompts
}

type Handler struct {
	config     *Config
	researcher Researcher
	errHandler *apperrors.ErrorHandler
	logger     Logger
}

func NewHandler(config *Config, researcher Researcher, log Logger) *Handler {
	log = log.With(map[string]interface{}{
		"taskType": TaskType,
	})
	return &Handler{
		config:     config,
		researcher: researcher,
		errHandler: apperrors.NewErrorHandler(log, classifiers...),
		logger:     log,
	}
}

var classifiers = []apperrors.Classifier{
	{Sentinel: ErrInvalidRequest, Code: apperrors.ErrCodeInvalidRequest},
	{Sentinel: search.ErrSearchFailed, Code: apperrors.ErrCodeSearchFailed},
	{Sentinel: chat.ErrTransport, Code: apperrors.ErrCodeChatTransportFailed},
	{Sentinel: research.ErrParse, Code: apperrors.ErrCodeResearchParseFailed},
	{Sentinel: context.DeadlineExceeded, Code: apperrors.ErrCodeResearchTimeout},
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Errorf("%w: parse input: %v", ErrInvalidRequest, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateConversation(input.Conversation); err != nil {
		return nil, err
	}

	prompts := h.researcher.Prompts()
	outcome, err := h.researcher.Run(ctx, input.Conversation)
	if err != nil {
		if !h.config.DegradeOnFailure {
			return nil, fmt.Errorf("%w: %w", ErrResearchFailed, err)
		}
		h.logger.Warn("research failed, answering without evidence", map[string]interface{}{
			"error": err.Error(),
		})
		return &Output{
			ResearchStatus: string(research.StatusFailed),
			SystemMessage:  research.ComposeSystemMessage(nil, prompts, input.SystemPrompt),
			Evidence:       research.Evidence{},
		}, nil
	}

	evidence := outcome.Evidence
	if evidence == nil {
		evidence = research.Evidence{}
	}

	h.logger.Info("research completed", map[string]interface{}{
		"status":   outcome.Status,
		"rounds":   outcome.Rounds,
		"evidence": len(evidence),
	})

	return &Output{
		ResearchStatus: string(outcome.Status),
		SystemMessage:  research.ComposeSystemMessage(outcome, prompts, input.SystemPrompt),
		Evidence:       evidence,
		Rounds:         outcome.Rounds,
	}, nil
}

func validateConversation(conv chat.Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	result, err := validation.ValidateJSON(validation.ResearchRequestSchema, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !result.Valid {
		return apperrors.NewInvalidRequestError(fmt.Errorf("%w: %s", ErrInvalidRequest, result.Error()))
	}
	return nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)

	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	h.errHandler.HandleJobError(context.Background(), client, job, err)
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
