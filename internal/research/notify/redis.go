package notify

import (
	"context"
	"strings"

	"deepsearch-workers/internal/common/logger"
	"deepsearch-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher sends progress to a Redis channel per session, for
// deployments where the WebSocket may live in another process.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger logger.Logger
}

func NewRedisPublisher(client *redis.Client, prefix string, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, logger: log}
}

func (p *RedisPublisher) Notify(ctx context.Context, sessionID, message string) {
	if err := p.client.Publish(ctx, p.prefix+sessionID, message).Err(); err != nil {
		metrics.ResearchNotifications.WithLabelValues("failed").Inc()
		p.logger.Error("progress publish failed", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return
	}
	metrics.ResearchNotifications.WithLabelValues("published").Inc()
}

// RedisRelay forwards published progress into the local registry.
type RedisRelay struct {
	client   *redis.Client
	prefix   string
	registry *Registry
	logger   logger.Logger
}

func NewRedisRelay(client *redis.Client, prefix string, registry *Registry, log logger.Logger) *RedisRelay {
	return &RedisRelay{client: client, prefix: prefix, registry: registry, logger: log}
}

// Run subscribes to every session channel and relays until ctx is done.
// ready, if non-nil, is closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	r.logger.Info("progress relay subscribed", map[string]interface{}{"pattern": r.prefix + "*"})

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			sessionID := strings.TrimPrefix(msg.Channel, r.prefix)
			// Sessions connected to another process are not ours to report.
			if !r.registry.Has(sessionID) {
				continue
			}
			r.registry.Notify(ctx, sessionID, msg.Payload)
		}
	}
}

var _ Sink = (*RedisPublisher)(nil)
