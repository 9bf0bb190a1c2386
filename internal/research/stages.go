// Package research runs the iterative research loop: plan searches, search,
// pick pages, summarize them concurrently, judge the evidence and repeat.
package research

import (
	"context"
	"errors"
	"fmt"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"
	"deepsearch-workers/internal/research/chat"
	"deepsearch-workers/internal/research/fetch"
	"deepsearch-workers/internal/research/search"

	"golang.org/x/sync/errgroup"
)

// PrivateChat issues a side-channel call derived from conv. *chat.Invoker
// implements it.
type PrivateChat interface {
	Invoke(ctx context.Context, conv chat.Conversation, preamble, systemMessage string) (string, error)
}

func invokeStage(ctx context.Context, c PrivateChat, stage string, conv chat.Conversation, preamble, systemMessage string) (string, error) {
	reply, err := c.Invoke(ctx, conv, preamble, systemMessage)
	if err != nil {
		metrics.ResearchPrivateCalls.WithLabelValues(stage, "error").Inc()
		return "", fmt.Errorf("%s: %w", stage, err)
	}
	metrics.ResearchPrivateCalls.WithLabelValues(stage, "ok").Inc()
	return reply, nil
}

// ==========================
// Planner
// ==========================

type Planner struct {
	chat    PrivateChat
	prompts Prompts
	logger  logger.Logger
}

func NewPlanner(c PrivateChat, prompts Prompts, log logger.Logger) *Planner {
	return &Planner{chat: c, prompts: prompts, logger: log}
}

// IdentifySearches asks which searches to run. prior is nil before the first
// summarization round; afterwards it is the evidence so far (possibly empty)
// and only additional searches are requested. none is true when the model
// replied with NoSearchesRequired.
func (p *Planner) IdentifySearches(ctx context.Context, conv chat.Conversation, prior Evidence) (queries []string, none bool, err error) {
	preamble := p.prompts.IdentifySearches
	if prior != nil {
		serialized, err := prior.Serialize()
		if err != nil {
			return nil, false, fmt.Errorf("%w: serialize evidence: %v", ErrParse, err)
		}
		preamble = p.prompts.IdentifyAdditionalSearches + serialized + originalPromptHeading
	}

	reply, err := invokeStage(ctx, p.chat, "plan", conv, preamble, "")
	if err != nil {
		return nil, false, err
	}
	if reply == NoSearchesRequired {
		return nil, true, nil
	}

	list := NormalizeList(reply)
	if list.Kind == NotAList {
		p.logger.Error("search plan is not a list", map[string]interface{}{
			"reply": reply,
			"error": list.Err.Error(),
		})
		return nil, false, list.Err
	}
	return list.Items, false, nil
}

// ==========================
// URL selection
// ==========================

type Selector struct {
	chat     PrivateChat
	provider search.Provider
	prompts  Prompts
	logger   logger.Logger
}

func NewSelector(c PrivateChat, provider search.Provider, prompts Prompts, log logger.Logger) *Selector {
	return &Selector{chat: c, provider: provider, prompts: prompts, logger: log}
}

// SelectURLs runs the queries and asks the model which results to browse.
// The reply is returned unparsed. A failed search returns an error wrapping
// search.ErrSearchFailed and no chat call is made.
func (s *Selector) SelectURLs(ctx context.Context, conv chat.Conversation, queries []string) (string, error) {
	results, err := search.GetResults(ctx, s.provider, queries, s.logger)
	if err != nil {
		return "", err
	}
	if results == nil {
		results = []search.Result{}
	}

	serialized, err := marshalIndent(results)
	if err != nil {
		return "", fmt.Errorf("%w: serialize results: %v", ErrParse, err)
	}

	s.logger.Debug("search results gathered", map[string]interface{}{
		"queries": len(queries),
		"results": len(results),
	})
	return invokeStage(ctx, s.chat, "select", conv, "", s.prompts.GetURLsToBrowse+serialized+originalPromptHeading)
}

// ==========================
// Summarization fan-out
// ==========================

type Fanout struct {
	fetcher fetch.Fetcher
	chat    PrivateChat
	prompts Prompts
	limit   int
	logger  logger.Logger
}

// NewFanout builds the fan-out. limit <= 0 runs every URL at once.
func NewFanout(fetcher fetch.Fetcher, c PrivateChat, prompts Prompts, limit int, log logger.Logger) *Fanout {
	return &Fanout{fetcher: fetcher, chat: c, prompts: prompts, limit: limit, logger: log}
}

// Summarize fetches and summarizes every URL concurrently and waits for all
// of them. Output follows input order. Unavailable pages are dropped. A
// failed chat call fails the whole batch once every task has finished.
func (f *Fanout) Summarize(ctx context.Context, conv chat.Conversation, urls []string) (Evidence, error) {
	metrics.ResearchFanoutWidth.Observe(float64(len(urls)))

	slots := make([]*EvidenceItem, len(urls))
	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}

	for i, u := range urls {
		g.Go(func() error {
			content, ok := f.fetcher.Fetch(ctx, u)
			if !ok {
				f.logger.Debug("dropping unavailable page", map[string]interface{}{"url": u})
				return nil
			}
			summary, err := invokeStage(ctx, f.chat, "summarize", conv, "", f.prompts.summarizeURL(u, content))
			if err != nil {
				return fmt.Errorf("summarize %s: %w", u, err)
			}
			slots[i] = &EvidenceItem{URL: u, Summary: summary}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(Evidence, 0, len(urls))
	for _, item := range slots {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

// ==========================
// Sufficiency judge
// ==========================

type Judge struct {
	chat    PrivateChat
	prompts Prompts
	logger  logger.Logger
}

func NewJudge(c PrivateChat, prompts Prompts, log logger.Logger) *Judge {
	return &Judge{chat: c, prompts: prompts, logger: log}
}

// IsSufficient is false only when the reply is exactly MoreInformationNeeded.
func (j *Judge) IsSufficient(ctx context.Context, conv chat.Conversation, evidence Evidence) (bool, error) {
	serialized, err := evidence.Serialize()
	if err != nil {
		return false, fmt.Errorf("%w: serialize evidence: %v", ErrParse, err)
	}

	reply, err := invokeStage(ctx, j.chat, "judge", conv, j.prompts.IsBackgroundInfoSufficient+serialized+originalPromptHeading, "")
	if err != nil {
		return false, err
	}
	if reply == MoreInformationNeeded {
		j.logger.Warn("more information needed, searching again", map[string]interface{}{
			"evidence": len(evidence),
		})
		return false, nil
	}
	return true, nil
}

// IsSearchError reports whether err came from the search provider.
func IsSearchError(err error) bool {
	return errors.Is(err, search.ErrSearchFailed)
}
