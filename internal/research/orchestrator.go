package research

import (
	"context"
	"fmt"
	"time"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"
	"deepsearch-workers/internal/research/chat"
	"deepsearch-workers/internal/research/fetch"
	"deepsearch-workers/internal/research/notify"
	"deepsearch-workers/internal/research/search"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "deepsearch-workers/research"

// Recorder receives every finished run. Failures are logged, never returned.
type Recorder interface {
	Record(ctx context.Context, run RunRecord) error
}

// Observer receives run-level measurements.
type Observer interface {
	RecordRun(ctx context.Context, outcome string, duration time.Duration, evidence int)
}

type Options struct {
	// MaxRounds caps research cycles per run; 0 means no cap. When the cap
	// is reached the evidence gathered so far is used as if sufficient.
	MaxRounds   int
	FanoutLimit int
	Prompts     Prompts
	Recorders   []Recorder
	Observer    Observer
}

// Orchestrator drives research runs. One Orchestrator serves many sessions;
// a run holds no state outside its own call.
type Orchestrator struct {
	planner  *Planner
	selector *Selector
	fanout   *Fanout
	judge    *Judge
	sink     notify.Sink
	prompts  Prompts
	opts     Options
	tracer   trace.Tracer
	logger   logger.Logger
	newID    func() string
	now      func() time.Time
}

func NewOrchestrator(c PrivateChat, provider search.Provider, fetcher fetch.Fetcher, sink notify.Sink, opts Options, log logger.Logger) *Orchestrator {
	prompts := opts.Prompts.WithDefaults()
	log = log.With(map[string]interface{}{"component": "research"})
	if sink == nil {
		sink = notify.Discard{}
	}
	return &Orchestrator{
		planner:  NewPlanner(c, prompts, log),
		selector: NewSelector(c, provider, prompts, log),
		fanout:   NewFanout(fetcher, c, prompts, opts.FanoutLimit, log),
		judge:    NewJudge(c, prompts, log),
		sink:     sink,
		prompts:  prompts,
		opts:     opts,
		tracer:   otel.Tracer(tracerName),
		logger:   log,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Prompts returns the effective prompt set.
func (o *Orchestrator) Prompts() Prompts {
	return o.prompts
}

// Run researches conv until the model is satisfied, needs no searches, or a
// search fails. Any other failure is returned as an error and the caller
// should answer without research.
func (o *Orchestrator) Run(ctx context.Context, conv chat.Conversation) (*Outcome, error) {
	runID := o.newID()
	session := conv.SessionID()
	started := o.now()
	log := o.logger.With(map[string]interface{}{"runId": runID, "sessionId": session})

	ctx, span := o.tracer.Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("research.run_id", runID),
		attribute.String("research.session_id", session),
	))
	defer span.End()

	outcome, err := o.loop(ctx, conv, log)

	status := StatusFailed
	record := RunRecord{
		RunID:          runID,
		SessionID:      session,
		ConversationID: conv.ConversationID,
		Query:          conv.LastUserMessage(),
		StartedAt:      started,
		FinishedAt:     o.now(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		record.Error = err.Error()
		log.Error("research run failed", map[string]interface{}{"error": err.Error()})
	} else {
		status = outcome.Status
		record.Rounds = outcome.Rounds
		record.Evidence = outcome.Evidence
		span.SetAttributes(
			attribute.String("research.status", string(status)),
			attribute.Int("research.rounds", outcome.Rounds),
			attribute.Int("research.evidence", len(outcome.Evidence)),
		)
		log.Info("research run finished", map[string]interface{}{
			"status":   status,
			"rounds":   outcome.Rounds,
			"evidence": len(outcome.Evidence),
		})
	}
	record.Status = status

	metrics.ResearchRuns.WithLabelValues(string(status)).Inc()
	if o.opts.Observer != nil {
		o.opts.Observer.RecordRun(ctx, string(status), record.FinishedAt.Sub(started), len(record.Evidence))
	}
	for _, r := range o.opts.Recorders {
		if rerr := r.Record(ctx, record); rerr != nil {
			log.Warn("failed to record research run", map[string]interface{}{"error": rerr.Error()})
		}
	}

	return outcome, err
}

func (o *Orchestrator) loop(ctx context.Context, conv chat.Conversation, log logger.Logger) (*Outcome, error) {
	session := conv.SessionID()
	var evidence Evidence

	for round := 1; ; round++ {
		roundLog := log.With(map[string]interface{}{"round": round})

		var (
			queries []string
			none    bool
		)
		err := o.stage(ctx, "plan", func(ctx context.Context) error {
			var err error
			queries, none, err = o.planner.IdentifySearches(ctx, conv, evidence)
			return err
		})
		if err != nil {
			return nil, err
		}
		if none {
			o.sink.Notify(ctx, session, ProgressNoResearch)
			// evidence from earlier rounds is not answered with
			return &Outcome{Status: StatusNoResearch, Evidence: Evidence{}, Rounds: round - 1}, nil
		}
		metrics.ResearchRounds.Inc()

		o.sink.Notify(ctx, session, ProgressSearching)
		var selection string
		err = o.stage(ctx, "select", func(ctx context.Context) error {
			var err error
			selection, err = o.selector.SelectURLs(ctx, conv, queries)
			return err
		})
		if err != nil {
			if IsSearchError(err) {
				roundLog.Warn("search failed, abandoning research", map[string]interface{}{"error": err.Error()})
				return &Outcome{Status: StatusSearchError, Evidence: evidence, Rounds: round}, nil
			}
			return nil, err
		}

		o.sink.Notify(ctx, session, ProgressBrowsing)
		var delta Evidence
		err = o.stage(ctx, "summarize", func(ctx context.Context) error {
			urls, err := ParseURLList(selection)
			if err != nil {
				roundLog.Error("url selection is not a list", map[string]interface{}{
					"reply": selection,
					"error": err.Error(),
				})
				return err
			}
			delta, err = o.fanout.Summarize(ctx, conv, urls)
			return err
		})
		if err != nil {
			return nil, err
		}
		evidence = append(append(Evidence{}, evidence...), delta...)

		o.sink.Notify(ctx, session, ProgressChecking)
		var sufficient bool
		err = o.stage(ctx, "judge", func(ctx context.Context) error {
			var err error
			sufficient, err = o.judge.IsSufficient(ctx, conv, evidence)
			return err
		})
		if err != nil {
			return nil, err
		}

		if !sufficient && o.opts.MaxRounds > 0 && round >= o.opts.MaxRounds {
			roundLog.Warn("research round cap reached, answering with current evidence", map[string]interface{}{
				"maxRounds": o.opts.MaxRounds,
				"evidence":  len(evidence),
			})
			sufficient = true
		}
		if !sufficient {
			continue
		}

		o.sink.Notify(ctx, session, ProgressAnswering)
		serialized, err := evidence.Serialize()
		if err != nil {
			return nil, fmt.Errorf("%w: serialize evidence: %v", ErrParse, err)
		}
		return &Outcome{
			Status:   StatusEvidence,
			Preamble: o.prompts.BackgroundInfoPreamble + serialized + "\n\nOriginal System Prompt:\n\n",
			Evidence: evidence,
			Rounds:   round,
		}, nil
	}
}

func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "research."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
