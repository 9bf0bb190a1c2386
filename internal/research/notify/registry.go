// Package notify delivers short progress strings to live per-session
// channels. Delivery is best effort: nothing here ever fails a research run.
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"
)

var ErrChannelClosed = errors.New("NOTIFICATION_CHANNEL_CLOSED")

// Sink is what the research orchestrator writes progress to.
type Sink interface {
	Notify(ctx context.Context, sessionID, message string)
}

// Channel is one live connection to a client.
type Channel interface {
	Send(ctx context.Context, message string) error
}

// Registry maps session ids to their live channel. A session has at most one
// channel; registering again replaces the previous one.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		channels: map[string]Channel{},
		logger:   log.With(map[string]interface{}{"component": "notify"}),
	}
}

func (r *Registry) Register(sessionID string, ch Channel) {
	r.mu.Lock()
	r.channels[sessionID] = ch
	r.mu.Unlock()

	r.logger.Debug("session registered", map[string]interface{}{"sessionId": sessionID})
}

// Unregister removes the session's channel, but only if it is still ch. A
// reconnect that already replaced ch is left alone.
func (r *Registry) Unregister(sessionID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.channels[sessionID]; ok && current == ch {
		delete(r.channels, sessionID)
	}
}

// Sessions lists the registered session ids in sorted order.
func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) lookup(sessionID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[sessionID]
	return ch, ok
}

// Has reports whether sessionID has a live channel in this process.
func (r *Registry) Has(sessionID string) bool {
	_, ok := r.lookup(sessionID)
	return ok
}

// Notify sends message to the session's channel. A missing channel or a
// failed send is logged and otherwise ignored.
func (r *Registry) Notify(ctx context.Context, sessionID, message string) {
	ch, ok := r.lookup(sessionID)
	if !ok {
		metrics.ResearchNotifications.WithLabelValues("no_channel").Inc()
		r.logger.Warn("no progress channel for session", map[string]interface{}{
			"sessionId": sessionID,
			"message":   message,
		})
		return
	}

	if err := ch.Send(ctx, message); err != nil {
		metrics.ResearchNotifications.WithLabelValues("failed").Inc()
		r.logger.Error("progress delivery failed", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		if errors.Is(err, ErrChannelClosed) {
			r.Unregister(sessionID, ch)
		}
		return
	}
	metrics.ResearchNotifications.WithLabelValues("delivered").Inc()
}

// Discard is a Sink that drops everything, for callers without a client.
type Discard struct{}

func (Discard) Notify(context.Context, string, string) {}

var (
	_ Sink = (*Registry)(nil)
	_ Sink = Discard{}
)
