package research

import "time"

type Status string

const (
	StatusEvidence    Status = "evidence"
	StatusNoResearch  Status = "no_research"
	StatusSearchError Status = "search_error"
	// StatusFailed is only used for run records; Run returns an error instead.
	StatusFailed Status = "failed"
)

// Outcome is the result of a research run.
type Outcome struct {
	Status   Status   `json:"status"`
	Preamble string   `json:"preamble,omitempty"`
	Evidence Evidence `json:"evidence"`
	Rounds   int      `json:"rounds"`
}

// Value is the caller-facing result: nil when no research was needed,
// SearchErrorMarker when searching failed, and the evidence preamble
// otherwise.
func (o *Outcome) Value() *string {
	switch o.Status {
	case StatusNoResearch:
		return nil
	case StatusSearchError:
		s := SearchErrorMarker
		return &s
	default:
		s := o.Preamble
		return &s
	}
}

// ComposeSystemMessage builds the system instruction for the caller's main
// chat call. A nil outcome stands for a run that failed outright and is
// answered like a search error.
func ComposeSystemMessage(o *Outcome, prompts Prompts, original string) string {
	if o == nil {
		return prompts.SearchErrorPreamble + original
	}
	switch o.Status {
	case StatusNoResearch:
		return original
	case StatusSearchError:
		return prompts.SearchErrorPreamble + original
	default:
		return o.Preamble + original
	}
}

// RunRecord describes a finished run for archival.
type RunRecord struct {
	RunID          string    `json:"runId"`
	SessionID      string    `json:"sessionId"`
	ConversationID string    `json:"conversationId"`
	Query          string    `json:"query"`
	Status         Status    `json:"status"`
	Rounds         int       `json:"rounds"`
	Evidence       Evidence  `json:"evidence"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}
