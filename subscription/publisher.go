package subscription

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/mohdragon010/taskflow/domain"
)

// QueueSink forwards change events to a durable queue for downstream
// consumers.
type QueueSink interface {
	EnqueueChange(ctx context.Context, ev domain.ChangeEvent) error
}

// Publisher fans change events out over the pub/sub channel and, best
// effort, onto the durable event queue. Failures are logged, never surfaced:
// a mutation that already committed must not fail over its notification.
type Publisher struct {
	redis   *redis.Client
	channel string
	queue   QueueSink
	logger  *log.Logger
}

// NewPublisher creates a Publisher. The queue sink may be nil.
func NewPublisher(rc *redis.Client, channel string, queue QueueSink, logger *log.Logger) *Publisher {
	return &Publisher{redis: rc, channel: channel, queue: queue, logger: logger}
}

// Publish announces a change event.
func (p *Publisher) Publish(ctx context.Context, ev domain.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Errorf("marshal change event: %v", err)
		return
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Errorf("publish change event: %v", err)
	}
	if p.queue != nil {
		if err := p.queue.EnqueueChange(ctx, ev); err != nil {
			p.logger.Errorf("enqueue change event: %v", err)
		}
	}
}
