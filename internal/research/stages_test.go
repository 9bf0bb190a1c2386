package research

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/research/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fanout
// ==========================

func TestFanout_PreservesInputOrder(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]page{
		"https://example.com/a": {text: "A", delay: 50 * time.Millisecond},
		"https://example.com/b": {text: "B"},
		"https://example.com/c": {text: "C", delay: 20 * time.Millisecond},
	}}
	f := NewFanout(fetcher, newScriptedChat(), DefaultPrompts(), 0, logger.NewTestLogger(t))

	got, err := f.Summarize(context.Background(), testConversation(), []string{
		"https://example.com/a", "https://example.com/b", "https://example.com/c",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}, got.URLs())
}

func TestFanout_DropsUnavailablePages(t *testing.T) {
	c := newScriptedChat()
	f := NewFanout(pages("https://example.com/ok"), c, DefaultPrompts(), 0, logger.NewTestLogger(t))

	got, err := f.Summarize(context.Background(), testConversation(), []string{"https://example.com/missing", "https://example.com/ok"})
	require.NoError(t, err)
	assert.Equal(t, Evidence{{URL: "https://example.com/ok", Summary: "summary of https://example.com/ok"}}, got)

	calls := c.callsFor("summarize")
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Preamble)
	assert.True(t, strings.HasPrefix(calls[0].SystemMessage,
		"The Original System Prompt that follows is your primary objective, but for this chat you identified the following URL for further research to give your answer: https://example.com/ok. "))
	assert.True(t, strings.HasSuffix(calls[0].SystemMessage, "Page Content:\n\ncontent of https://example.com/ok\n\nOriginal System Prompt:\n\n"))
}

func TestFanout_EmptyBatch(t *testing.T) {
	f := NewFanout(pages(), newScriptedChat(), DefaultPrompts(), 0, logger.NewNoOpLogger())
	got, err := f.Summarize(context.Background(), testConversation(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestFanout_LimitBoundsConcurrency(t *testing.T) {
	var inflight, peak int32
	c := newScriptedChat()
	c.summarize = func(url string) (string, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return "s", nil
	}

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	f := NewFanout(pages(urls...), c, DefaultPrompts(), 2, logger.NewNoOpLogger())

	got, err := f.Summarize(context.Background(), testConversation(), urls)
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestFanout_WaitsForAllBeforeFailing(t *testing.T) {
	var finished int32
	c := newScriptedChat()
	c.summarize = func(url string) (string, error) {
		if url == "https://example.com/bad" {
			return "", fmt.Errorf("%w: boom", chat.ErrTransport)
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&finished, 1)
		return "ok", nil
	}
	f := NewFanout(pages("https://example.com/bad", "https://example.com/slow"), c, DefaultPrompts(), 0, logger.NewNoOpLogger())

	got, err := f.Summarize(context.Background(), testConversation(), []string{"https://example.com/bad", "https://example.com/slow"})
	assert.ErrorIs(t, err, chat.ErrTransport)
	assert.Nil(t, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}

// ==========================
// Planner and judge
// ==========================

func TestPlanner_SentinelMustMatchExactly(t *testing.T) {
	tests := []struct {
		reply    string
		wantNone bool
		wantErr  bool
	}{
		{reply: NoSearchesRequired, wantNone: true},
		{reply: NoSearchesRequired + "\n", wantErr: true},
		{reply: "no searches required.", wantErr: true},
		{reply: `"weather today"`},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			c := newScriptedChat()
			c.plan = []string{tt.reply}
			p := NewPlanner(c, DefaultPrompts(), logger.NewTestLogger(t))

			queries, none, err := p.IdentifySearches(context.Background(), testConversation(), nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNone, none)
			if !tt.wantNone {
				assert.Equal(t, []string{"weather today"}, queries)
			}
		})
	}
}

func TestPlanner_EmptyPriorEvidenceAsksForAdditionalSearches(t *testing.T) {
	c := newScriptedChat()
	c.plan = []string{`["x"]`}
	p := NewPlanner(c, DefaultPrompts(), logger.NewNoOpLogger())

	_, _, err := p.IdentifySearches(context.Background(), testConversation(), Evidence{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts().IdentifyAdditionalSearches+"[]\n\nOriginal System Prompt:\n", c.callsFor("plan")[0].Preamble)
}

func TestJudge_OnlyExactInsufficientSentinelMeansNo(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{reply: MoreInformationNeeded, want: false},
		{reply: SufficientInformation, want: true},
		{reply: "More information needed", want: true},
		{reply: "¯\\_(ツ)_/¯", want: true},
		{reply: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			c := newScriptedChat()
			c.judge = []string{tt.reply}
			j := NewJudge(c, DefaultPrompts(), logger.NewTestLogger(t))

			got, err := j.IsSufficient(context.Background(), testConversation(), Evidence{{URL: "u", Summary: "s"}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ==========================
// Outcome
// ==========================

func TestComposeSystemMessage(t *testing.T) {
	prompts := DefaultPrompts()
	original := "You are a helpful assistant."

	assert.Equal(t, original, ComposeSystemMessage(&Outcome{Status: StatusNoResearch}, prompts, original))
	assert.Equal(t, prompts.SearchErrorPreamble+original, ComposeSystemMessage(&Outcome{Status: StatusSearchError}, prompts, original))
	assert.Equal(t, prompts.SearchErrorPreamble+original, ComposeSystemMessage(nil, prompts, original))
	assert.Equal(t, "PRE"+original, ComposeSystemMessage(&Outcome{Status: StatusEvidence, Preamble: "PRE"}, prompts, original))
}

func TestPrompts_WithDefaults(t *testing.T) {
	p := Prompts{SearchErrorPreamble: "custom"}.WithDefaults()
	assert.Equal(t, "custom", p.SearchErrorPreamble)
	assert.Equal(t, DefaultPrompts().IdentifySearches, p.IdentifySearches)
	assert.Equal(t, "see u: {x} $1 c", Prompts{SummarizeURL: "see {url}: {content}"}.summarizeURL("u", "{x} $1 c"))
}
