// internal/common/aws/run_events.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"deepsearch-workers/internal/research"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const runEventSubject = "research.run.completed"

// RunEvent is the message body published for every finished research run.
// Summaries are left out; consumers fetch the run by id when they need them.
type RunEvent struct {
	Type           string          `json:"type"`
	RunID          string          `json:"runId"`
	SessionID      string          `json:"sessionId"`
	ConversationID string          `json:"conversationId"`
	Status         research.Status `json:"status"`
	Rounds         int             `json:"rounds"`
	EvidenceURLs   []string        `json:"evidenceUrls"`
	Error          string          `json:"error,omitempty"`
	DurationMs     int64           `json:"durationMs"`
}

// RunEventPublisher announces finished runs on an SNS topic.
type RunEventPublisher struct {
	client   *SNSClient
	topicARN string
}

func NewRunEventPublisher(client *SNSClient, topicARN string) *RunEventPublisher {
	return &RunEventPublisher{client: client, topicARN: topicARN}
}

func (p *RunEventPublisher) Record(ctx context.Context, run research.RunRecord) error {
	event := RunEvent{
		Type:           runEventSubject,
		RunID:          run.RunID,
		SessionID:      run.SessionID,
		ConversationID: run.ConversationID,
		Status:         run.Status,
		Rounds:         run.Rounds,
		EvidenceURLs:   run.Evidence.URLs(),
		Error:          run.Error,
		DurationMs:     run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode run event: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(p.topicARN),
		Subject:  awssdk.String(runEventSubject),
		Message:  awssdk.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(string(run.Status)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish run event %s: %w", run.RunID, err)
	}
	return nil
}

var _ research.Recorder = (*RunEventPublisher)(nil)
